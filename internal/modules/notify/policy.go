// README: Fixed recipient/message policy per lifecycle event.
package notify

import (
	"fmt"
	"strings"
	"time"

	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
)

// Plan returns the notices an event produces. It has no side effects.
func Plan(e Event) []Notice {
	var out []Notice
	add := func(ch Channel, to account.Contact, party *Party, title, text string) {
		n := Notice{Kind: e.Kind, Channel: ch, To: to, Title: title, Text: text}
		if party != nil {
			n.OrderID = party.OrderID
		} else if len(e.Customers) > 0 {
			n.OrderID = e.Customers[0].OrderID
		}
		out = append(out, n)
	}

	switch e.Kind {
	case KindNearbyOrder:
		text := fmt.Sprintf("Nearby order alert: %dL of %s at %s, %s depot. Open the app to review.",
			e.TotalLiters, e.FuelType, e.Company, e.Depot)
		for _, o := range e.Owners {
			add(ChannelSMS, o, nil, "Nearby order", text)
		}

	case KindPrivateSuggested:
		text := fmt.Sprintf("New order %s: %dL of %s from %s (%s, %s depot) fits vehicle %s at %.0f%% utilization. Please accept it.",
			firstNumber(e), e.TotalLiters, e.FuelType, e.Company, e.Source, e.Depot, e.VehicleIdentity, e.Utilization*100)
		for _, o := range e.Owners {
			add(ChannelSMS, o, nil, "New order match", text)
			add(ChannelLive, o, nil, "New order match", text)
		}

	case KindGroupMerged:
		ownerText := fmt.Sprintf("Shared order group ready: %dL of %s from %s (%s depot) for vehicle %s. %s Please accept it.",
			e.TotalLiters, e.FuelType, e.Company, e.Depot, e.VehicleIdentity, describePlan(e.Customers))
		for _, o := range e.Owners {
			add(ChannelSMS, o, nil, "Shared order group", ownerText)
			add(ChannelLive, o, nil, "Shared order group", ownerText)
		}
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "Order matched", fmt.Sprintf(
				"Your order %s was matched with another order. The combined %dL is waiting for truck owner acceptance.",
				p.OrderNumber, e.TotalLiters))
		}

	case KindWaitingForVehicle:
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "Waiting for vehicle", fmt.Sprintf(
				"Your order %s found a match, but no vehicle can carry the combined %dL yet. Please wait; we will notify you.",
				p.OrderNumber, e.TotalLiters))
		}

	case KindOrderAccepted:
		for i := range e.Customers {
			p := &e.Customers[i]
			text := fmt.Sprintf("Your order %s was accepted with vehicle %s.", p.OrderNumber, e.VehicleIdentity)
			if len(p.Compartments) > 0 {
				text += " Compartments: " + describeAssignments(p.Compartments) + "."
			}
			add(ChannelSMS, p.Contact, p, "Order accepted", text)
		}

	case KindDriverAssigned:
		if e.Driver != nil {
			for i := range e.Customers {
				p := &e.Customers[i]
				add(ChannelSMS, p.Contact, p, "Driver assigned", fmt.Sprintf(
					"Driver %s (%s) will deliver your order %s with vehicle %s.",
					e.Driver.Name, e.Driver.Phone, p.OrderNumber, e.VehicleIdentity))
			}
			text := fmt.Sprintf("You are assigned %s: %dL of %s from %s, %s depot, vehicle %s. Deliveries: %s.",
				firstNumber(e), e.TotalLiters, e.FuelType, e.Company, e.Depot, e.VehicleIdentity, describeDeliveries(e.Customers))
			add(ChannelSMS, *e.Driver, nil, "New assignment", text)
			add(ChannelLive, *e.Driver, nil, "New assignment", text)
		}

	case KindTripStarted:
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "On delivery", fmt.Sprintf(
				"Your order %s is on the way with vehicle %s.", p.OrderNumber, e.VehicleIdentity))
		}

	case KindTripCompleted:
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "Delivered", fmt.Sprintf(
				"Your order %s has been delivered. Thank you.", p.OrderNumber))
		}

	case KindOrderCancelled:
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "Order cancelled", fmt.Sprintf("Order %s was cancelled.", p.OrderNumber))
		}
		for _, o := range e.Owners {
			add(ChannelLive, o, nil, "Order cancelled", fmt.Sprintf("Order %s was cancelled and no longer needs a vehicle.", firstNumber(e)))
		}

	case KindMatchReminder:
		for i := range e.Customers {
			p := &e.Customers[i]
			add(ChannelSMS, p.Contact, p, "Still waiting", fmt.Sprintf(
				"Your shared order %s has waited %s without a match. You can keep waiting or place it as a private order.",
				p.OrderNumber, waitText(e.Waited)))
		}

	case KindUnacceptedReminder:
		text := fmt.Sprintf("Order %s (%dL of %s, %s depot) is still waiting for truck owner acceptance.",
			firstNumber(e), e.TotalLiters, e.FuelType, e.Depot)
		for _, s := range e.Staff {
			add(ChannelLive, s, nil, "Pending order", text)
		}
		for _, o := range e.Owners {
			add(ChannelLive, o, nil, "Pending order", text)
		}
	}
	return out
}

func firstNumber(e Event) string {
	if len(e.Customers) == 0 {
		return ""
	}
	return e.Customers[0].OrderNumber
}

func describeAssignments(as []allocation.Assignment) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = fmt.Sprintf("%s %dL", a.Label, a.Liters)
	}
	return strings.Join(parts, ", ")
}

func describePlan(customers []Party) string {
	var parts []string
	for _, p := range customers {
		if len(p.Compartments) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p.OrderNumber, describeAssignments(p.Compartments)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Compartments " + strings.Join(parts, "; ") + "."
}

func describeDeliveries(customers []Party) string {
	parts := make([]string, len(customers))
	for i, p := range customers {
		d := fmt.Sprintf("%s %dL to %s", p.OrderNumber, p.Liters, p.Station)
		if p.District != "" {
			d += " (" + p.District + ")"
		}
		if p.Contact.Phone != "" {
			d += " tel " + p.Contact.Phone
		}
		parts[i] = d
	}
	return strings.Join(parts, "; ")
}

// waitText words a wait in whole hours or minutes.
func waitText(d time.Duration) string {
	m := int64(d.Round(time.Minute) / time.Minute)
	switch {
	case m <= 0:
		return "a while"
	case m == 60:
		return "1 hour"
	case m%60 == 0:
		return fmt.Sprintf("%d hours", m/60)
	case m == 1:
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

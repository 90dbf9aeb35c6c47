// README: Builds notification events for a cohort, resolving recipient contacts.
package order

import (
	"context"
	"log"

	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/types"
)

// Describe assembles the notification event for a cohort. Contacts that cannot
// be resolved are logged and reduced to their user id so live notices still
// reach the inbox.
func (s *Service) Describe(ctx context.Context, kind notify.Kind, cohort []*Order, v *fleet.Vehicle, d *fleet.Driver) notify.Event {
	e := notify.Event{Kind: kind}
	if len(cohort) == 0 {
		return e
	}
	lead := cohort[0]
	e.GroupID = cloneID(lead.SharedGroupID)
	e.FuelType = string(lead.FuelType)
	e.Depot = lead.Depot
	e.Source = lead.Source
	e.Company = lead.CompanyName()
	for _, o := range cohort {
		e.TotalLiters += o.Capacity
		p := notify.Party{
			Contact:      s.contact(ctx, o.CustomerID),
			OrderID:      o.ID,
			OrderNumber:  o.Number,
			Liters:       o.Capacity,
			Station:      o.StationName(),
			District:     o.District,
			Compartments: o.Compartments,
		}
		e.Customers = append(e.Customers, p)
	}
	if v != nil {
		e.VehicleIdentity = v.Identity
		e.Owners = []account.Contact{s.contact(ctx, v.OwnerID)}
		if v.TankCapacity > 0 {
			e.Utilization = float64(e.TotalLiters) / float64(v.TankCapacity)
		}
	}
	if d != nil {
		e.Driver = &account.Contact{UserID: d.ID, Name: d.FullName(), Phone: d.Phone, DeviceToken: d.DeviceToken}
	}
	if kind == notify.KindUnacceptedReminder {
		staff, err := s.contacts.Staff(ctx)
		if err != nil {
			log.Printf("order: staff contacts: %v", err)
		}
		e.Staff = staff
	}
	return e
}

func (s *Service) contact(ctx context.Context, id types.ID) account.Contact {
	c, err := s.contacts.Contact(ctx, id)
	if err != nil {
		log.Printf("order: contact %s: %v", id, err)
		return account.Contact{UserID: id}
	}
	return c
}

func (s *Service) notify(ctx context.Context, e notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, e)
}

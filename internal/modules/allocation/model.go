// README: Allocation inputs and the compartment plan produced by the allocator.
package allocation

import "fuelhaul/internal/types"

// Demand is one customer's requested liters. Index in the input slice is the arrival order.
type Demand struct {
	CustomerID types.ID `json:"customer_id"`
	Liters     int64    `json:"liters"`
}

// Compartment is a physical tank section; slice order is the vehicle's physical order.
type Compartment struct {
	Label    string `json:"label"`
	Capacity int64  `json:"capacity"`
}

type Share struct {
	CustomerID types.ID `json:"customer_id"`
	Liters     int64    `json:"liters"`
}

type CompartmentPlan struct {
	Label    string  `json:"label"`
	Capacity int64   `json:"capacity"`
	Shares   []Share `json:"shares"`
	Free     int64   `json:"free"`
}

type Residual struct {
	CustomerID types.ID `json:"customer_id"`
	Liters     int64    `json:"liters"`
}

// Plan is the allocator's output. Unmet is empty when every demand was served.
type Plan struct {
	Compartments []CompartmentPlan `json:"compartments"`
	Unmet        []Residual        `json:"unmet,omitempty"`
}

func (p Plan) Complete() bool {
	return len(p.Unmet) == 0
}

func (p Plan) UnmetLiters() int64 {
	var n int64
	for _, r := range p.Unmet {
		n += r.Liters
	}
	return n
}

// ByLabel maps compartment label to the shares loaded into it. Empty compartments are omitted.
func (p Plan) ByLabel() map[string][]Share {
	out := make(map[string][]Share, len(p.Compartments))
	for _, c := range p.Compartments {
		if len(c.Shares) > 0 {
			out[c.Label] = c.Shares
		}
	}
	return out
}

// For returns the (label, liters) pairs assigned to one customer in physical order.
func (p Plan) For(customerID types.ID) []Assignment {
	var out []Assignment
	for _, c := range p.Compartments {
		for _, s := range c.Shares {
			if s.CustomerID == customerID {
				out = append(out, Assignment{Label: c.Label, Liters: s.Liters})
			}
		}
	}
	return out
}

func (p Plan) AllocatedTo(customerID types.ID) int64 {
	var n int64
	for _, a := range p.For(customerID) {
		n += a.Liters
	}
	return n
}

// Assignment is one compartment's contribution to a single order.
type Assignment struct {
	Label  string `json:"label"`
	Liters int64  `json:"liters"`
}

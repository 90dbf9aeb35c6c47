// README: Largest-first compartment allocator over an index queue; inputs are never mutated.
package allocation

import "sort"

type Mode int

const (
	// ModeSplit lets a compartment carry several customers until it is full.
	ModeSplit Mode = iota
	// ModeExclusive closes a compartment once the customer it serves is satisfied.
	ModeExclusive
)

// Allocate walks compartments in physical order, feeding them demands sorted by
// liters descending (ties keep arrival order). A demand larger than the current
// compartment fills it and carries its residual into the next one.
func Allocate(demands []Demand, compartments []Compartment, mode Mode) Plan {
	queue := make([]int, 0, len(demands))
	for i, d := range demands {
		if d.Liters > 0 {
			queue = append(queue, i)
		}
	}
	sort.SliceStable(queue, func(a, b int) bool {
		return demands[queue[a]].Liters > demands[queue[b]].Liters
	})

	remaining := make([]int64, len(demands))
	for i, d := range demands {
		remaining[i] = d.Liters
	}

	plan := Plan{Compartments: make([]CompartmentPlan, len(compartments))}
	head := 0
	for ci, c := range compartments {
		cp := CompartmentPlan{Label: c.Label, Capacity: c.Capacity}
		free := c.Capacity
		for free > 0 && head < len(queue) {
			di := queue[head]
			take := remaining[di]
			if take > free {
				take = free
			}
			cp.Shares = append(cp.Shares, Share{CustomerID: demands[di].CustomerID, Liters: take})
			remaining[di] -= take
			free -= take
			if remaining[di] > 0 {
				break
			}
			head++
			if mode == ModeExclusive {
				break
			}
		}
		if free < 0 {
			free = 0
		}
		cp.Free = free
		plan.Compartments[ci] = cp
	}

	for _, di := range queue[head:] {
		if remaining[di] > 0 {
			plan.Unmet = append(plan.Unmet, Residual{CustomerID: demands[di].CustomerID, Liters: remaining[di]})
		}
	}
	return plan
}

func TotalCapacity(compartments []Compartment) int64 {
	var n int64
	for _, c := range compartments {
		n += c.Capacity
	}
	return n
}

func TotalDemand(demands []Demand) int64 {
	var n int64
	for _, d := range demands {
		n += d.Liters
	}
	return n
}

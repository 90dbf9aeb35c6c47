// README: Utilization-band vehicle selection for a required capacity.
package fleet

import (
	"math"
	"sort"

	"fuelhaul/internal/types"
)

type Band string

const (
	BandPrimary  Band = "primary"
	BandFallback Band = "fallback"
	// BandPartial is a merged load below the primary band; only SelectForMerge yields it.
	BandPartial Band = "partial"
)

// Utilization bands in percent of nominal tank capacity.
const (
	primaryMinPct  = 95
	fallbackMaxPct = 105
)

type Fit struct {
	Vehicle     Vehicle `json:"vehicle"`
	Utilization float64 `json:"utilization"`
	Band        Band    `json:"band"`
}

// CapacityHint is offered when no vehicle fits: the order size that would
// fill the closest vehicle to the bottom of the primary band.
type CapacityHint struct {
	VehicleID         types.ID `json:"vehicle_id"`
	TankCapacity      int64    `json:"tank_capacity"`
	SuggestedCapacity int64    `json:"suggested_capacity"`
}

type Selection struct {
	Required int64 `json:"required"`
	// Primary: utilization in [0.95, 1.0], closest to full first. For a
	// merged load it also holds partial fits below 0.95.
	Primary []Fit `json:"primary,omitempty"`
	// Fallback: utilization in (1.0, 1.05], closest to 1.0 first.
	Fallback []Fit         `json:"fallback,omitempty"`
	Hint     *CapacityHint `json:"hint,omitempty"`
}

func (s Selection) Found() bool {
	return len(s.Primary) > 0 || len(s.Fallback) > 0
}

// Best is the first primary fit, else the fallback closest to 1.0.
func (s Selection) Best() (Fit, bool) {
	if len(s.Primary) > 0 {
		return s.Primary[0], true
	}
	if len(s.Fallback) > 0 {
		return s.Fallback[0], true
	}
	return Fit{}, false
}

// Candidates lists every fit in preference order.
func (s Selection) Candidates() []Fit {
	out := make([]Fit, 0, len(s.Primary)+len(s.Fallback))
	out = append(out, s.Primary...)
	return append(out, s.Fallback...)
}

// SelectVehicles classifies selectable vehicles by how required liters would fill their tanks.
func SelectVehicles(vehicles []Vehicle, required int64) Selection {
	return selectBy(vehicles, required, classify)
}

// SelectForMerge is SelectVehicles for the combined demand of a shared group:
// any tank the load does not exceed is a candidate, fullest first, and the
// five percent overfill stays the fallback.
func SelectForMerge(vehicles []Vehicle, required int64) Selection {
	return selectBy(vehicles, required, classifyMerged)
}

func selectBy(vehicles []Vehicle, required int64, rule func(required, tank int64) (Band, bool)) Selection {
	sel := Selection{Required: required}
	if required <= 0 {
		return sel
	}
	var pool []Vehicle
	for _, v := range vehicles {
		if v.Selectable() && v.TankCapacity > 0 {
			pool = append(pool, v)
		}
	}

	for _, v := range pool {
		band, ok := rule(required, v.TankCapacity)
		if !ok {
			continue
		}
		f := Fit{Vehicle: v, Utilization: utilization(required, v.TankCapacity), Band: band}
		if band != BandFallback {
			sel.Primary = append(sel.Primary, f)
		} else {
			sel.Fallback = append(sel.Fallback, f)
		}
	}
	sort.SliceStable(sel.Primary, func(i, j int) bool {
		if sel.Primary[i].Utilization != sel.Primary[j].Utilization {
			return sel.Primary[i].Utilization > sel.Primary[j].Utilization
		}
		return sel.Primary[i].Vehicle.ID < sel.Primary[j].Vehicle.ID
	})
	sort.SliceStable(sel.Fallback, func(i, j int) bool {
		if sel.Fallback[i].Utilization != sel.Fallback[j].Utilization {
			return sel.Fallback[i].Utilization < sel.Fallback[j].Utilization
		}
		return sel.Fallback[i].Vehicle.ID < sel.Fallback[j].Vehicle.ID
	})

	if !sel.Found() {
		sel.Hint = nearestHint(pool, required)
	}
	return sel
}

// classify uses integer arithmetic so band edges are exact.
func classify(required, tank int64) (Band, bool) {
	switch {
	case required <= tank && 100*required >= primaryMinPct*tank:
		return BandPrimary, true
	case required > tank && 100*required <= fallbackMaxPct*tank:
		return BandFallback, true
	}
	return "", false
}

func classifyMerged(required, tank int64) (Band, bool) {
	if required <= tank && 100*required < primaryMinPct*tank {
		return BandPartial, true
	}
	return classify(required, tank)
}

func utilization(required, tank int64) float64 {
	return float64(required) / float64(tank)
}

func suggestedCapacity(tank int64) int64 {
	return int64(math.Round(float64(tank) * primaryMinPct / 100))
}

func nearestHint(pool []Vehicle, required int64) *CapacityHint {
	var best *CapacityHint
	var bestGap int64
	for _, v := range pool {
		target := suggestedCapacity(v.TankCapacity)
		gap := target - required
		if gap < 0 {
			gap = -gap
		}
		if best == nil || gap < bestGap || (gap == bestGap && v.ID < best.VehicleID) {
			best = &CapacityHint{VehicleID: v.ID, TankCapacity: v.TankCapacity, SuggestedCapacity: target}
			bestGap = gap
		}
	}
	return best
}

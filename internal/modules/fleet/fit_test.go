package fleet

import (
	"fmt"
	"math/rand"
	"testing"

	"fuelhaul/internal/types"
)

func tanker(id string, tank int64, status VehicleStatus) Vehicle {
	return Vehicle{ID: types.ID(id), TankCapacity: tank, Status: status}
}

func TestSelectVehicles_PrimaryAtLowerEdge(t *testing.T) {
	sel := SelectVehicles([]Vehicle{tanker("v1", 1000, VehicleApproved)}, 950)
	best, ok := sel.Best()
	if !ok {
		t.Fatal("expected a fit")
	}
	if best.Band != BandPrimary || best.Utilization != 0.95 {
		t.Errorf("best = %s %.4f, want primary 0.95", best.Band, best.Utilization)
	}
}

func TestSelectVehicles_FallbackWithinFivePercent(t *testing.T) {
	sel := SelectVehicles([]Vehicle{tanker("v1", 1000, VehicleAvailable)}, 1030)
	best, ok := sel.Best()
	if !ok {
		t.Fatal("expected a fallback fit")
	}
	if best.Band != BandFallback {
		t.Errorf("band = %s, want fallback", best.Band)
	}
	if len(sel.Primary) != 0 {
		t.Errorf("unexpected primary fits: %+v", sel.Primary)
	}
}

func TestSelectVehicles_PrefersPrimaryOverFallback(t *testing.T) {
	sel := SelectVehicles([]Vehicle{
		tanker("over", 9800, VehicleApproved),
		tanker("exact", 10400, VehicleApproved),
	}, 10000)
	best, _ := sel.Best()
	if best.Vehicle.ID != "exact" || best.Band != BandPrimary {
		t.Errorf("best = %s/%s, want exact/primary", best.Vehicle.ID, best.Band)
	}
	if c := sel.Candidates(); len(c) != 2 || c[1].Vehicle.ID != "over" {
		t.Errorf("candidates = %+v", c)
	}
}

func TestSelectVehicles_FallbackClosestToOne(t *testing.T) {
	sel := SelectVehicles([]Vehicle{
		tanker("a", 9600, VehicleApproved), // 1.0417
		tanker("b", 9900, VehicleApproved), // 1.0101
		tanker("c", 9700, VehicleApproved), // 1.0309
	}, 10000)
	best, ok := sel.Best()
	if !ok || best.Vehicle.ID != "b" {
		t.Fatalf("best = %+v, want b", best)
	}
}

func TestSelectVehicles_SkipsUnselectableStatuses(t *testing.T) {
	sel := SelectVehicles([]Vehicle{
		tanker("busy", 1000, VehicleBusy),
		tanker("submitted", 1000, VehicleSubmitted),
		tanker("rejected", 1000, VehicleRejected),
	}, 1000)
	if sel.Found() {
		t.Fatalf("expected no fit, got %+v", sel)
	}
	if sel.Hint != nil {
		t.Errorf("no selectable vehicle means no hint, got %+v", sel.Hint)
	}
}

func TestSelectVehicles_NoFitSuggestsNearestCapacity(t *testing.T) {
	sel := SelectVehicles([]Vehicle{
		tanker("small", 5000, VehicleApproved),  // target 4750
		tanker("large", 20000, VehicleApproved), // target 19000
	}, 8000)
	if sel.Found() {
		t.Fatal("expected no fit")
	}
	if sel.Hint == nil || sel.Hint.VehicleID != "small" || sel.Hint.SuggestedCapacity != 4750 {
		t.Errorf("hint = %+v, want small/4750", sel.Hint)
	}
}

func TestSelectVehicles_RejectsBeyondFallback(t *testing.T) {
	sel := SelectVehicles([]Vehicle{tanker("v1", 1000, VehicleApproved)}, 1051)
	if sel.Found() {
		t.Fatalf("1.051 utilization must not fit: %+v", sel)
	}
	sel = SelectVehicles([]Vehicle{tanker("v1", 1000, VehicleApproved)}, 949)
	if sel.Found() {
		t.Fatalf("0.949 utilization must not fit: %+v", sel)
	}
}

func TestSelectVehicles_BandProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		var pool []Vehicle
		for i := 0; i < 1+rng.Intn(8); i++ {
			pool = append(pool, tanker(fmt.Sprintf("v%d", i), int64(1000+rng.Intn(30000)), VehicleApproved))
		}
		required := int64(1 + rng.Intn(32000))
		sel := SelectVehicles(pool, required)
		for _, f := range sel.Primary {
			if f.Utilization < 0.95 || f.Utilization > 1.0 {
				t.Fatalf("primary utilization %.5f outside [0.95, 1.0]", f.Utilization)
			}
		}
		for _, f := range sel.Fallback {
			if f.Utilization <= 1.0 || f.Utilization > 1.05 {
				t.Fatalf("fallback utilization %.5f outside (1.0, 1.05]", f.Utilization)
			}
		}
	}
}

func TestSelectForMerge_AcceptsAnyLoadUpToFull(t *testing.T) {
	pool := []Vehicle{
		tanker("v-big", 8000, VehicleApproved),
		tanker("v-tight", 7100, VehicleApproved),
		tanker("v-over", 6800, VehicleApproved),
		tanker("v-small", 6000, VehicleApproved),
	}
	sel := SelectForMerge(pool, 7000)
	got := make([]string, 0, 3)
	for _, f := range sel.Candidates() {
		got = append(got, string(f.Vehicle.ID)+":"+string(f.Band))
	}
	want := []string{"v-tight:primary", "v-big:partial", "v-over:fallback"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
	if sel.Hint != nil {
		t.Errorf("unexpected hint %+v", sel.Hint)
	}

	// The private rule still refuses the underfilled tank.
	if sel := SelectVehicles([]Vehicle{tanker("v-big", 8000, VehicleApproved)}, 7000); sel.Found() {
		t.Errorf("private selection accepted 0.875 utilization: %+v", sel)
	}
}

// README: Order service tests (state machine, flows, group atomicity, invalid requests).
package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

// TestCanTransition verifies the state machine transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusNone, StatusPending, true},
		{StatusPending, StatusRequested, true},
		{StatusRequested, StatusAccepted, true},
		{StatusAccepted, StatusAssigned, true},
		{StatusAssigned, StatusOnDelivery, true},
		{StatusOnDelivery, StatusCompleted, true},
		// cancel from every pre-Assigned state
		{StatusPending, StatusCancelled, true},
		{StatusRequested, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, false},
		{StatusOnDelivery, StatusCancelled, false},
		// terminal states have no outgoing transitions
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusRequested, false},
		// skipping states
		{StatusPending, StatusAccepted, false},
		{StatusRequested, StatusAssigned, false},
		{StatusAccepted, StatusOnDelivery, false},
		// backwards
		{StatusAccepted, StatusRequested, false},
		{StatusOnDelivery, StatusAssigned, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// Every allowed transition other than cancel moves strictly forward.
func TestTransitionsAreMonotonic(t *testing.T) {
	for from, nexts := range AllowedTransitions {
		for _, to := range nexts {
			if to == StatusCancelled {
				continue
			}
			if Rank(to) <= Rank(from) {
				t.Errorf("%s -> %s moves backwards (rank %d -> %d)", from, to, Rank(from), Rank(to))
			}
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if len(AllowedTransitions[s]) != 0 || !Terminal(s) {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestNewOrderNumber(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 5, 9, 0, time.UTC)
	cases := []struct {
		customer types.ID
		count    int
		want     string
	}{
		{"user42", 0, "OD-20261019080509-42-0001"},
		{"cust-7a", 2, "OD-20261019080509-70-0003"},
		{"5", 9, "OD-20261019080509-05-0010"},
		{"", 0, "OD-20261019080509-00-0001"},
	}
	for _, tc := range cases {
		if got := NewOrderNumber(tc.customer, at, tc.count); got != tc.want {
			t.Errorf("NewOrderNumber(%q, %d) = %q, want %q", tc.customer, tc.count, got, tc.want)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := func() CreateCommand {
		return CreateCommand{
			Actor:     customer("c1"),
			FuelType:  FuelDiesel,
			Route:     RouteShared,
			Capacity:  4000,
			Source:    "Kigamboni",
			Depot:     "Dar",
			District:  "Ubungo",
			Stations:  []StationRef{{ID: "st1", Name: "Mbezi", District: "Ubungo"}},
			Companies: []Company{{Name: "Puma"}},
		}
	}
	cases := map[string]func(*CreateCommand){
		"unknown fuel":      func(c *CreateCommand) { c.FuelType = "Jet" },
		"zero capacity":     func(c *CreateCommand) { c.Capacity = 0 },
		"negative capacity": func(c *CreateCommand) { c.Capacity = -5 },
		"missing source":    func(c *CreateCommand) { c.Source = " " },
		"no stations":       func(c *CreateCommand) { c.Stations = nil },
		"no company":        func(c *CreateCommand) { c.Companies = nil },
		"unknown route":     func(c *CreateCommand) { c.Route = "express" },
		"private no time":   func(c *CreateCommand) { c.Route = RoutePrivate },
		"negative distance": func(c *CreateCommand) { c.DistanceKm = -1 },
	}
	for name, mutate := range cases {
		cmd := base()
		mutate(&cmd)
		if _, err := h.svc.Create(ctx, cmd); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", name, err)
		}
	}

	cmd := base()
	cmd.Actor = owner("o1")
	if _, err := h.svc.Create(ctx, cmd); !errors.Is(err, policy.ErrForbidden) {
		t.Errorf("truck owner placing an order: err = %v, want ErrForbidden", err)
	}
}

func TestCreateNumbersDailySequence(t *testing.T) {
	h := newHarness(t)
	a := h.place(t, "cust01", RouteShared, 1000)
	b := h.place(t, "cust01", RouteShared, 1000)
	if a.Number[len(a.Number)-4:] != "0001" || b.Number[len(b.Number)-4:] != "0002" {
		t.Errorf("numbers = %s, %s; want sequences 0001 and 0002", a.Number, b.Number)
	}
	if a.Status != StatusPending || a.Merged || a.SharedGroupID != nil {
		t.Errorf("new order should be unmerged Pending, got %+v", a)
	}
}

func TestPrivateOrderFlowHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T100AAA", 1000, 500, 500)
	d := h.driver(t, "owner1", "LIC-1")

	o := h.place(t, "cust01", RoutePrivate, 950)
	if _, err := h.svc.Propose(ctx, ProposeCommand{
		OrderID:      o.ID,
		Vehicle:      Candidate{VehicleID: v.ID, Utilization: 0.95},
		Compartments: []allocation.Assignment{{Label: "A", Liters: 500}, {Label: "B", Liters: 450}},
	}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	assertStatus(t, h, o.ID, StatusRequested)

	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: o.ID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	assertStatus(t, h, o.ID, StatusAccepted)

	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: o.ID, DriverID: d.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	assertStatus(t, h, o.ID, StatusAssigned)
	h.assertDriver(t, d.ID, fleet.DriverBusy)
	h.assertVehicle(t, v.ID, fleet.VehicleBusy)
	sgs, _ := h.store.ListSuggestions(ctx, o.ID)
	if len(sgs) != 1 || sgs[0].Status != SuggestionUsed {
		t.Fatalf("suggestion should be Used, got %+v", sgs)
	}

	driver := policy.Actor{ID: d.ID, Role: policy.RoleDriver}
	if _, err := h.svc.StartTrip(ctx, TripCommand{Actor: driver, OrderID: o.ID}); err != nil {
		t.Fatalf("start trip: %v", err)
	}
	assertStatus(t, h, o.ID, StatusOnDelivery)

	done, err := h.svc.EndTrip(ctx, TripCommand{Actor: driver, OrderID: o.ID})
	if err != nil {
		t.Fatalf("end trip: %v", err)
	}
	if done.TripStartedAt == nil || done.TripEndedAt == nil {
		t.Errorf("trip timestamps not recorded: %+v", done)
	}
	assertStatus(t, h, o.ID, StatusCompleted)
	h.assertDriver(t, d.ID, fleet.DriverAvailable)
	h.assertVehicle(t, v.ID, fleet.VehicleApproved)

	events := h.store.Events(o.ID)
	want := []Status{StatusPending, StatusRequested, StatusAccepted, StatusAssigned, StatusOnDelivery, StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("expected %d state events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.ToStatus != want[i] {
			t.Errorf("event %d to %s, want %s", i, e.ToStatus, want[i])
		}
	}
	if got := h.pub.count(); got != len(want) {
		t.Errorf("published %d lifecycle events, want %d", got, len(want))
	}
	h.notes.expect(t, notify.KindOrderAccepted, notify.KindDriverAssigned, notify.KindTripStarted, notify.KindTripCompleted)
}

// The merged cohort shares one group and carries the compartment plan.
func TestMergeSetsGroupAndCompartments(t *testing.T) {
	h := newHarness(t)
	v := h.vehicle(t, "owner1", "T200BBB", 8000, 4000, 4000)
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)

	cohort := h.merge(t, v, []*fleet.Vehicle{v}, a, b)
	if len(cohort) != 2 {
		t.Fatalf("cohort size = %d", len(cohort))
	}
	got := map[types.ID]*Order{}
	for _, id := range []types.ID{a.ID, b.ID} {
		o, err := h.svc.Find(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		got[id] = o
	}
	ga, gb := got[a.ID], got[b.ID]
	if !ga.Merged || !gb.Merged || ga.SharedGroupID == nil || gb.SharedGroupID == nil || *ga.SharedGroupID != *gb.SharedGroupID {
		t.Fatalf("merged orders must share one group: %+v / %+v", ga, gb)
	}
	if ga.Status != StatusRequested || gb.Status != StatusRequested {
		t.Errorf("statuses = %s, %s; want Requested", ga.Status, gb.Status)
	}
	if len(ga.Compartments) != 1 || ga.Compartments[0] != (allocation.Assignment{Label: "A", Liters: 4000}) {
		t.Errorf("order a compartments = %+v", ga.Compartments)
	}
	if len(gb.Compartments) != 1 || gb.Compartments[0] != (allocation.Assignment{Label: "B", Liters: 3000}) {
		t.Errorf("order b compartments = %+v", gb.Compartments)
	}
}

func TestMergeRejectsIncompletePlan(t *testing.T) {
	h := newHarness(t)
	v := h.vehicle(t, "owner1", "T300CCC", 6000, 3000, 3000)
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)
	plan := allocation.Allocate([]allocation.Demand{{CustomerID: a.ID, Liters: 4000}, {CustomerID: b.ID, Liters: 3000}}, v.Compartments, allocation.ModeSplit)

	_, err := h.svc.Merge(context.Background(), MergeCommand{OrderIDs: []types.ID{a.ID, b.ID}, GroupID: types.NewID(), Vehicle: v.ID, Plan: plan})
	if !errors.Is(err, ErrAllocationOverflow) {
		t.Fatalf("err = %v, want ErrAllocationOverflow", err)
	}
	assertStatus(t, h, a.ID, StatusPending)
	assertStatus(t, h, b.ID, StatusPending)
}

func TestMergeConflictLeavesOrdersUntouched(t *testing.T) {
	h := newHarness(t)
	v := h.vehicle(t, "owner1", "T400DDD", 8000, 4000, 4000)
	a := h.place(t, "cust01", RouteShared, 3000)
	b := h.place(t, "cust02", RouteShared, 3000)
	c := h.place(t, "cust03", RouteShared, 3000)
	h.merge(t, v, []*fleet.Vehicle{v}, a, b)

	plan := allocation.Allocate([]allocation.Demand{{CustomerID: c.ID, Liters: 3000}, {CustomerID: b.ID, Liters: 3000}}, v.Compartments, allocation.ModeSplit)
	_, err := h.svc.Merge(context.Background(), MergeCommand{OrderIDs: []types.ID{c.ID, b.ID}, GroupID: types.NewID(), Vehicle: v.ID, Plan: plan})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	oc, _ := h.svc.Find(context.Background(), c.ID)
	if oc.Status != StatusPending || oc.Merged || oc.SharedGroupID != nil {
		t.Errorf("order c must be rolled back to unmerged Pending, got %+v", oc)
	}
	if n := len(h.store.Events(c.ID)); n != 1 {
		t.Errorf("order c has %d events after rollback, want 1", n)
	}
}

// Group atomicity: a failure while accepting the second member leaves the
// whole cohort Requested.
func TestGroupAcceptIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T500EEE", 8000, 4000, 4000)
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)
	h.merge(t, v, []*fleet.Vehicle{v}, a, b)
	published := h.pub.count()

	h.store.failOn, h.store.failAfter = StatusAccepted, 1
	_, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: b.ID})
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	assertStatus(t, h, a.ID, StatusRequested)
	assertStatus(t, h, b.ID, StatusRequested)
	if h.pub.count() != published {
		t.Errorf("lifecycle events published for a rolled back accept")
	}
	h.notes.expect(t)

	h.store.failOn = ""
	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: b.ID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	assertStatus(t, h, a.ID, StatusAccepted)
	assertStatus(t, h, b.ID, StatusAccepted)
	h.notes.expect(t, notify.KindOrderAccepted)
	if e := h.notes.last(); len(e.Customers) != 2 {
		t.Errorf("accept notice should reach both customers, got %d", len(e.Customers))
	}
}

func TestAcceptWithOtherVehicleReplans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v1 := h.vehicle(t, "owner1", "T600FFF", 8000, 4000, 4000)
	v2 := h.vehicle(t, "owner1", "T601FFF", 7200, 3000, 3000, 1200)
	v3 := h.vehicle(t, "owner1", "T602FFF", 6000, 3000, 3000)
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)
	h.merge(t, v1, []*fleet.Vehicle{v1, v2, v3}, a, b)

	_, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: a.ID, VehicleID: &v3.ID})
	if !errors.Is(err, ErrAllocationOverflow) {
		t.Fatalf("err = %v, want ErrAllocationOverflow", err)
	}
	assertStatus(t, h, a.ID, StatusRequested)

	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: a.ID, VehicleID: &v2.ID}); err != nil {
		t.Fatalf("accept with v2: %v", err)
	}
	oa, _ := h.svc.Find(ctx, a.ID)
	if oa.VehicleID == nil || *oa.VehicleID != v2.ID {
		t.Fatalf("vehicle = %v, want %s", oa.VehicleID, v2.ID)
	}
	var total int64
	for _, as := range oa.Compartments {
		total += as.Liters
	}
	if total != 4000 {
		t.Errorf("order a allocated %dL on v2, want 4000", total)
	}
}

func TestAcceptRequiresOwnedSuggestedVehicle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T700GGG", 1000, 1000)
	other := h.vehicle(t, "owner1", "T701GGG", 1000, 1000)
	o := h.propose(t, "cust01", 950, v)

	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner2"), OrderID: o.ID}); !errors.Is(err, policy.ErrForbidden) {
		t.Errorf("foreign owner: err = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: o.ID, VehicleID: &other.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unsuggested vehicle: err = %v, want ErrInvalidState", err)
	}
	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: customer("cust01"), OrderID: o.ID}); !errors.Is(err, policy.ErrForbidden) {
		t.Errorf("customer accepting: err = %v, want ErrForbidden", err)
	}
	assertStatus(t, h, o.ID, StatusRequested)
}

// A busy driver cannot take a second order.
func TestAssignBusyDriverFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v1 := h.vehicle(t, "owner1", "T800HHH", 1000, 1000)
	v2 := h.vehicle(t, "owner1", "T801HHH", 1000, 1000)
	d := h.driver(t, "owner1", "LIC-8")
	first := h.accepted(t, "cust01", 950, v1)
	second := h.accepted(t, "cust02", 960, v2)

	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: first.ID, DriverID: d.ID}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: second.ID, DriverID: d.ID})
	if !errors.Is(err, ErrInvalidState) || !errors.Is(err, fleet.ErrDriverUnavailable) {
		t.Fatalf("err = %v, want ErrInvalidState wrapping ErrDriverUnavailable", err)
	}
	assertStatus(t, h, second.ID, StatusAccepted)
	h.assertVehicle(t, v2.ID, fleet.VehicleApproved)
}

func TestMergedCohortMovesTogether(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T900JJJ", 8000, 4000, 4000)
	d := h.driver(t, "owner1", "LIC-9")
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)
	h.merge(t, v, []*fleet.Vehicle{v}, a, b)

	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: a.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: b.ID, DriverID: d.ID}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []types.ID{a.ID, b.ID} {
		o, _ := h.svc.Find(ctx, id)
		if o.Status != StatusAssigned || o.DriverID == nil || *o.DriverID != d.ID {
			t.Errorf("order %s = %s driver %v, want Assigned to %s", o.Number, o.Status, o.DriverID, d.ID)
		}
	}
	dr, _ := h.fleet.Driver(ctx, d.ID)
	oa, _ := h.svc.Find(ctx, a.ID)
	if dr.AssignedOrder == nil || *dr.AssignedOrder != *oa.SharedGroupID {
		t.Errorf("driver bound to %v, want group %s", dr.AssignedOrder, *oa.SharedGroupID)
	}

	driver := policy.Actor{ID: d.ID, Role: policy.RoleDriver}
	if _, err := h.svc.StartTrip(ctx, TripCommand{Actor: driver, OrderID: a.ID}); err != nil {
		t.Fatal(err)
	}
	assertStatus(t, h, b.ID, StatusOnDelivery)
	if _, err := h.svc.EndTrip(ctx, TripCommand{Actor: driver, OrderID: b.ID}); err != nil {
		t.Fatal(err)
	}
	assertStatus(t, h, a.ID, StatusCompleted)
	h.assertDriver(t, d.ID, fleet.DriverAvailable)
	h.assertVehicle(t, v.ID, fleet.VehicleApproved)
}

func TestCancelMergedCohort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T110KKK", 8000, 4000, 4000)
	a := h.place(t, "cust01", RouteShared, 4000)
	b := h.place(t, "cust02", RouteShared, 3000)
	h.merge(t, v, []*fleet.Vehicle{v}, a, b)

	if _, err := h.svc.Cancel(ctx, CancelCommand{Actor: customer("cust02"), OrderID: a.ID}); !errors.Is(err, policy.ErrForbidden) {
		t.Errorf("cancelling another customer's order: err = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Cancel(ctx, CancelCommand{Actor: customer("cust01"), OrderID: a.ID, Reason: "changed plans"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, id := range []types.ID{a.ID, b.ID} {
		o, _ := h.svc.Find(ctx, id)
		if o.Status != StatusCancelled || o.CancelReason == nil || *o.CancelReason != "changed plans" {
			t.Errorf("order %s not cancelled with reason: %+v", o.Number, o)
		}
		sgs, _ := h.store.ListSuggestions(ctx, id)
		for _, sg := range sgs {
			if sg.Status != SuggestionRejected {
				t.Errorf("suggestion %s is %s, want Rejected", sg.ID, sg.Status)
			}
		}
	}
	h.notes.expect(t, notify.KindOrderCancelled)
	if e := h.notes.last(); len(e.Owners) != 1 || len(e.Customers) != 2 {
		t.Errorf("cancel notice recipients: owners=%d customers=%d", len(e.Owners), len(e.Customers))
	}
}

func TestInvalidTransitionsDoNotMutate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T120LLL", 1000, 1000)
	d := h.driver(t, "owner1", "LIC-12")
	pending := h.place(t, "cust01", RoutePrivate, 950)
	requested := h.propose(t, "cust02", 950, v)
	driver := policy.Actor{ID: d.ID, Role: policy.RoleDriver}

	if _, err := h.svc.Accept(ctx, AcceptCommand{Actor: owner("owner1"), OrderID: pending.ID, VehicleID: &v.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("accept pending: err = %v, want ErrInvalidState", err)
	}
	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: requested.ID, DriverID: d.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("assign requested: err = %v, want ErrInvalidState", err)
	}
	if _, err := h.svc.StartTrip(ctx, TripCommand{Actor: driver, OrderID: requested.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("start requested: err = %v, want ErrInvalidState", err)
	}
	if _, err := h.svc.EndTrip(ctx, TripCommand{Actor: driver, OrderID: requested.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("end requested: err = %v, want ErrInvalidState", err)
	}
	assertStatus(t, h, pending.ID, StatusPending)
	assertStatus(t, h, requested.ID, StatusRequested)
	h.assertDriver(t, d.ID, fleet.DriverAvailable)

	if _, err := h.svc.Propose(ctx, ProposeCommand{OrderID: requested.ID, Vehicle: Candidate{VehicleID: v.ID}}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("re-propose: err = %v, want ErrInvalidState", err)
	}
}

func TestCancelAfterAssignedIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T130MMM", 1000, 1000)
	d := h.driver(t, "owner1", "LIC-13")
	o := h.accepted(t, "cust01", 950, v)
	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: o.ID, DriverID: d.ID}); err != nil {
		t.Fatal(err)
	}
	staff := policy.Actor{ID: "staff1", Role: policy.RoleStaff}
	if _, err := h.svc.Cancel(ctx, CancelCommand{Actor: staff, OrderID: o.ID}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	assertStatus(t, h, o.ID, StatusAssigned)
}

func TestTripRequiresAssignedDriver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t, "owner1", "T140NNN", 1000, 1000)
	d := h.driver(t, "owner1", "LIC-14")
	o := h.accepted(t, "cust01", 950, v)
	if _, err := h.svc.AssignDriver(ctx, AssignCommand{Actor: owner("owner1"), OrderID: o.ID, DriverID: d.ID}); err != nil {
		t.Fatal(err)
	}
	stranger := policy.Actor{ID: "someone-else", Role: policy.RoleDriver}
	if _, err := h.svc.StartTrip(ctx, TripCommand{Actor: stranger, OrderID: o.ID}); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Get(ctx, stranger, o.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger reading the order: err = %v, want ErrNotFound", err)
	}
}

func TestRequestedForOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mine := h.vehicle(t, "owner1", "T150PPP", 1000, 1000)
	theirs := h.vehicle(t, "owner2", "T151PPP", 1000, 1000)
	o1 := h.propose(t, "cust01", 950, mine)
	h.propose(t, "cust02", 960, theirs)

	got, err := h.svc.RequestedForOwner(ctx, owner("owner1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != o1.ID {
		t.Fatalf("requested for owner1 = %+v, want only %s", got, o1.ID)
	}
}

// --- harness ---

var errInjected = errors.New("injected failure")

type faultyStore struct {
	*MemoryStore
	mu        sync.Mutex
	failOn    Status
	failAfter int
	seen      int
}

func (f *faultyStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error) {
	f.mu.Lock()
	if f.failOn != "" && to == f.failOn {
		if f.seen >= f.failAfter {
			f.seen = 0
			f.mu.Unlock()
			return false, errInjected
		}
		f.seen++
	}
	f.mu.Unlock()
	return f.MemoryStore.UpdateStatus(ctx, id, from, to, version, p)
}

type recordingNotifier struct {
	mu        sync.Mutex
	events    []notify.Event
	lastEvent notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// expect asserts the kinds notified since the last call, then resets.
func (r *recordingNotifier) expect(t *testing.T, kinds ...notify.Kind) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) != len(kinds) {
		t.Fatalf("notified %d events, want %d (%v)", len(r.events), len(kinds), kinds)
	}
	for i, k := range kinds {
		if r.events[i].Kind != k {
			t.Errorf("event %d kind %s, want %s", i, r.events[i].Kind, k)
		}
	}
	if len(r.events) > 0 {
		r.lastEvent = r.events[len(r.events)-1]
	}
	r.events = nil
}

func (r *recordingNotifier) last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastEvent
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, value.(LifecycleEvent))
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type harness struct {
	svc      *Service
	store    *faultyStore
	fleet    *fleet.Service
	accounts *account.MemoryStore
	notes    *recordingNotifier
	pub      *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    &faultyStore{MemoryStore: NewMemoryStore()},
		fleet:    fleet.NewService(fleet.NewMemoryStore()),
		accounts: account.NewMemoryStore(),
		notes:    &recordingNotifier{},
		pub:      &recordingPublisher{},
	}
	h.svc = NewService(Deps{
		Store:    h.store,
		Tx:       infra.NewMemoryTxManager(),
		Fleet:    h.fleet,
		Contacts: account.NewService(h.accounts),
		Notifier: h.notes,
		Events:   h.pub,
		Mode:     allocation.ModeSplit,
	})
	return h
}

func customer(id types.ID) policy.Actor { return policy.Actor{ID: id, Role: policy.RoleCustomer} }
func owner(id types.ID) policy.Actor    { return policy.Actor{ID: id, Role: policy.RoleTruckOwner} }

func (h *harness) place(t *testing.T, customerID types.ID, route RouteKind, liters int64) *Order {
	t.Helper()
	_ = h.accounts.Upsert(context.Background(), &account.User{ID: customerID, Role: policy.RoleCustomer, FirstName: string(customerID), Phone: "0712000000"})
	cmd := CreateCommand{
		Actor:     customer(customerID),
		FuelType:  FuelDiesel,
		Route:     route,
		Capacity:  liters,
		Source:    "Kigamboni",
		Depot:     "Dar",
		District:  "Ubungo",
		Stations:  []StationRef{{ID: "st-" + customerID, Name: "Mbezi", District: "Ubungo"}},
		Companies: []Company{{Name: "Puma"}},
		Price:     types.TZS(1500000),
	}
	if route == RoutePrivate {
		at := time.Now().Add(24 * time.Hour)
		cmd.DeliveryTime = &at
	}
	o, err := h.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (h *harness) propose(t *testing.T, customerID types.ID, liters int64, v *fleet.Vehicle) *Order {
	t.Helper()
	o := h.place(t, customerID, RoutePrivate, liters)
	plan := allocation.Allocate([]allocation.Demand{{CustomerID: o.ID, Liters: liters}}, v.Compartments, allocation.ModeSplit)
	if _, err := h.svc.Propose(context.Background(), ProposeCommand{
		OrderID:      o.ID,
		Vehicle:      Candidate{VehicleID: v.ID, Utilization: float64(liters) / float64(v.TankCapacity)},
		Compartments: plan.For(o.ID),
	}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	return o
}

func (h *harness) accepted(t *testing.T, customerID types.ID, liters int64, v *fleet.Vehicle) *Order {
	t.Helper()
	o := h.propose(t, customerID, liters, v)
	if _, err := h.svc.Accept(context.Background(), AcceptCommand{Actor: owner(v.OwnerID), OrderID: o.ID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	h.notes.expect(t, notify.KindOrderAccepted)
	return o
}

func (h *harness) merge(t *testing.T, v *fleet.Vehicle, candidates []*fleet.Vehicle, orders ...*Order) []*Order {
	t.Helper()
	demands := make([]allocation.Demand, len(orders))
	ids := make([]types.ID, len(orders))
	var total int64
	for i, o := range orders {
		demands[i] = allocation.Demand{CustomerID: o.ID, Liters: o.Capacity}
		ids[i] = o.ID
		total += o.Capacity
	}
	cands := make([]Candidate, len(candidates))
	for i, c := range candidates {
		cands[i] = Candidate{VehicleID: c.ID, Utilization: float64(total) / float64(c.TankCapacity)}
	}
	cohort, err := h.svc.Merge(context.Background(), MergeCommand{
		OrderIDs:   ids,
		GroupID:    types.NewID(),
		Vehicle:    v.ID,
		Plan:       allocation.Allocate(demands, v.Compartments, allocation.ModeSplit),
		Candidates: cands,
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return cohort
}

func (h *harness) vehicle(t *testing.T, ownerID types.ID, plate string, tank int64, compartments ...int64) *fleet.Vehicle {
	t.Helper()
	ctx := context.Background()
	_ = h.accounts.Upsert(ctx, &account.User{ID: ownerID, Role: policy.RoleTruckOwner, FirstName: "Owner", Phone: "0754000000"})
	comps := make([]allocation.Compartment, len(compartments))
	for i, c := range compartments {
		comps[i] = allocation.Compartment{Label: string(rune('A' + i)), Capacity: c}
	}
	v, err := h.fleet.RegisterVehicle(ctx, fleet.RegisterVehicleCommand{
		Actor:            owner(ownerID),
		PlateNumber:      plate,
		TankCapacity:     tank,
		CompartmentCount: len(comps),
		Compartments:     comps,
	})
	if err != nil {
		t.Fatalf("register vehicle: %v", err)
	}
	v, err = h.fleet.ReviewVehicle(ctx, policy.Actor{ID: "staff1", Role: policy.RoleStaff}, v.ID, true)
	if err != nil {
		t.Fatalf("approve vehicle: %v", err)
	}
	return v
}

func (h *harness) driver(t *testing.T, ownerID types.ID, license string) *fleet.Driver {
	t.Helper()
	ctx := context.Background()
	d, err := h.fleet.RegisterDriver(ctx, fleet.RegisterDriverCommand{
		Actor:         owner(ownerID),
		FirstName:     "Juma",
		LastName:      "Ali",
		Phone:         "0733000000",
		LicenseNumber: license,
	})
	if err != nil {
		t.Fatalf("register driver: %v", err)
	}
	if err := h.fleet.VerifyDriver(ctx, policy.Actor{ID: "staff1", Role: policy.RoleStaff}, d.ID); err != nil {
		t.Fatalf("verify driver: %v", err)
	}
	return d
}

func (h *harness) assertDriver(t *testing.T, id types.ID, want fleet.DriverStatus) {
	t.Helper()
	d, err := h.fleet.Driver(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != want {
		t.Fatalf("driver status = %s, want %s", d.Status, want)
	}
}

func (h *harness) assertVehicle(t *testing.T, id types.ID, want fleet.VehicleStatus) {
	t.Helper()
	v, err := h.fleet.Vehicle(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != want {
		t.Fatalf("vehicle status = %s, want %s", v.Status, want)
	}
}

func assertStatus(t *testing.T, h *harness, orderID types.ID, want Status) {
	t.Helper()
	o, err := h.svc.Find(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
}

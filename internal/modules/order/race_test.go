// README: Concurrency tests; competing writers on one order, group, or driver leave exactly one winner.
package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/types"
)

// race runs fn n times concurrently and returns the errors in no particular order.
func race(n int, fn func(i int) error) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := fn(i)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func winners(t *testing.T, errs []error, allowed ...error) int {
	t.Helper()
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
			continue
		}
		ok := false
		for _, a := range allowed {
			if errors.Is(err, a) {
				ok = true
				break
			}
		}
		if !ok {
			t.Errorf("unexpected error: %v", err)
		}
	}
	return n
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	h := newHarness(t)
	v := h.vehicle(t, "owner1", "T210AAA", 1000, 1000)
	o := h.propose(t, "cust01", 950, v)

	errs := race(8, func(int) error {
		_, err := h.svc.Accept(context.Background(), AcceptCommand{Actor: owner("owner1"), OrderID: o.ID})
		return err
	})
	if n := winners(t, errs, ErrInvalidState, ErrConflict); n != 1 {
		t.Fatalf("%d accepts succeeded, want 1", n)
	}
	assertStatus(t, h, o.ID, StatusAccepted)
	accepted := 0
	for _, e := range h.store.Events(o.ID) {
		if e.ToStatus == StatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("%d Accepted events recorded, want 1", accepted)
	}
}

// Two merges racing for the same waiting order: only one group may claim it.
func TestConcurrentMergesShareNoOrder(t *testing.T) {
	h := newHarness(t)
	v := h.vehicle(t, "owner1", "T220BBB", 8000, 4000, 4000)
	shared := h.place(t, "cust01", RouteShared, 3000)
	left := h.place(t, "cust02", RouteShared, 3000)
	right := h.place(t, "cust03", RouteShared, 3000)
	pairs := [][2]*Order{{shared, left}, {shared, right}}

	errs := race(len(pairs), func(i int) error {
		a, b := pairs[i][0], pairs[i][1]
		plan := allocation.Allocate([]allocation.Demand{
			{CustomerID: a.ID, Liters: a.Capacity},
			{CustomerID: b.ID, Liters: b.Capacity},
		}, v.Compartments, allocation.ModeSplit)
		_, err := h.svc.Merge(context.Background(), MergeCommand{
			OrderIDs: []types.ID{a.ID, b.ID},
			GroupID:  types.NewID(),
			Vehicle:  v.ID,
			Plan:     plan,
		})
		return err
	})
	if n := winners(t, errs, ErrConflict); n != 1 {
		t.Fatalf("%d merges succeeded, want 1", n)
	}

	ctx := context.Background()
	so, _ := h.svc.Find(ctx, shared.ID)
	lo, _ := h.svc.Find(ctx, left.ID)
	ro, _ := h.svc.Find(ctx, right.ID)
	partner, loser := lo, ro
	if ro.Merged {
		partner, loser = ro, lo
	}
	if !so.Merged || !partner.Merged || *so.SharedGroupID != *partner.SharedGroupID {
		t.Fatalf("winning pair must share a group: %+v / %+v", so, partner)
	}
	if loser.Merged || loser.Status != StatusPending {
		t.Errorf("losing order must stay unmerged Pending, got %+v", loser)
	}
	group, _ := h.store.ListGroup(ctx, *so.SharedGroupID)
	if len(group) != 2 {
		t.Errorf("group has %d members, want 2", len(group))
	}
}

// One driver offered to two accepted orders at once is bound to exactly one.
func TestConcurrentDriverAssignment(t *testing.T) {
	h := newHarness(t)
	v1 := h.vehicle(t, "owner1", "T230CCC", 1000, 1000)
	v2 := h.vehicle(t, "owner1", "T231CCC", 1000, 1000)
	d := h.driver(t, "owner1", "LIC-23")
	orders := []*Order{
		h.accepted(t, "cust01", 950, v1),
		h.accepted(t, "cust02", 950, v2),
	}

	errs := race(len(orders), func(i int) error {
		_, err := h.svc.AssignDriver(context.Background(), AssignCommand{Actor: owner("owner1"), OrderID: orders[i].ID, DriverID: d.ID})
		return err
	})
	if n := winners(t, errs, fleet.ErrDriverUnavailable); n != 1 {
		t.Fatalf("%d assignments succeeded, want 1", n)
	}

	assigned := 0
	for _, o := range orders {
		got, _ := h.svc.Find(context.Background(), o.ID)
		switch got.Status {
		case StatusAssigned:
			assigned++
		case StatusAccepted:
			if got.DriverID != nil {
				t.Errorf("losing order %s kept driver %s", got.Number, *got.DriverID)
			}
		default:
			t.Errorf("order %s is %s", got.Number, got.Status)
		}
	}
	if assigned != 1 {
		t.Errorf("%d orders Assigned, want 1", assigned)
	}
	h.assertDriver(t, d.ID, fleet.DriverBusy)
}

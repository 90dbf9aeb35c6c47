// README: Router tests over in-memory services: auth, error mapping, and a private order end to end.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/config"
	fuelhttp "fuelhaul/internal/http"
	"fuelhaul/internal/infra"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/modules/reminder"
	"fuelhaul/internal/types"
)

// tokenTable maps raw bearer tokens to identities.
type tokenTable struct {
	mu     sync.Mutex
	tokens map[string]*infra.AuthToken
}

func (t *tokenTable) VerifyIDToken(_ context.Context, raw string) (*infra.AuthToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.tokens[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return tok, nil
}

func (t *tokenTable) add(raw, uid, role string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[raw] = &infra.AuthToken{UID: uid, Claims: map[string]interface{}{"role": role}}
}

type testAPI struct {
	router *gin.Engine
	tokens *tokenTable
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	tx := infra.NewMemoryTxManager()

	accountStore := account.NewMemoryStore()
	accounts := account.NewService(accountStore)
	fleetSvc := fleet.NewService(fleet.NewMemoryStore())
	catalogSvc := catalog.NewService(catalog.NewMemoryStore())
	positions := location.NewService(location.NewMemoryFeed(), nil, 30*time.Minute)
	dispatcher := notify.NewDispatcher(notify.LogSMSSender{}, nil, notify.NewMemoryInbox())
	orderSvc := order.NewService(order.Deps{
		Store:    order.NewMemoryStore(),
		Tx:       tx,
		Fleet:    fleetSvc,
		Contacts: accounts,
		Notifier: dispatcher,
		Mode:     allocation.ModeSplit,
	})
	matchingSvc := matching.NewService(matching.Deps{
		Orders:    orderSvc,
		Fleet:     fleetSvc,
		Catalog:   catalogSvc,
		Positions: positions,
		Reminders: reminder.NewService(reminder.NewMemoryStore(), config.ReminderConfig{}),
		Contacts:  accounts,
		Notifier:  dispatcher,
		Tx:        tx,
		Config:    config.MatchingConfig{RadiusKm: 20, SharedWait: 24 * time.Hour, PrivateWait: 5 * time.Minute},
	})

	err := catalogSvc.PutDepot(ctx, catalog.Depot{
		Name: catalog.DepotDar,
		Sources: []catalog.Source{{
			Name:      "Kurasini",
			Companies: []catalog.Company{{Name: "Puma Energy", Location: &types.Point{Lat: -6.847, Lng: 39.286}}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []account.User{
		{ID: "cust1", FirstName: "Asha", Phone: "0712000001"},
		{ID: "owner1", FirstName: "Baraka", Phone: "0712000002"},
	} {
		u := u
		_ = accountStore.Upsert(ctx, &u)
	}

	tokens := &tokenTable{tokens: map[string]*infra.AuthToken{}}
	tokens.add("cust1", "cust1", "customer")
	tokens.add("cust2", "cust2", "customer")
	tokens.add("owner1", "owner1", "truck_owner")
	tokens.add("owner2", "owner2", "truck_owner")
	tokens.add("staff1", "staff1", "staff")
	tokens.add("gps", "gps-gateway", "system")

	return &testAPI{
		router: fuelhttp.NewRouter(fuelhttp.RouterDeps{
			Order:    orderSvc,
			Matching: matchingSvc,
			Fleet:    fleetSvc,
			Catalog:  catalogSvc,
			Accounts: accounts,
			Location: positions,
			Notify:   dispatcher,
			Verifier: tokens,
		}),
		tokens: tokens,
	}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// must performs the request and decodes the response, failing on an unexpected status.
func (a *testAPI) must(t *testing.T, want int, method, path, token string, body, out any) {
	t.Helper()
	w := a.do(method, path, token, body)
	if w.Code != want {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, w.Code, want, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func (a *testAPI) approvedVehicle(t *testing.T, ownerToken string, tank int64, compartments ...int64) fleet.Vehicle {
	t.Helper()
	comps := make([]allocation.Compartment, len(compartments))
	for i, c := range compartments {
		comps[i] = allocation.Compartment{Label: string(rune('A' + i)), Capacity: c}
	}
	var v fleet.Vehicle
	a.must(t, http.StatusCreated, http.MethodPost, "/api/vehicles", ownerToken, map[string]any{
		"plate_number":      "T" + time.Now().Format("150405.000000"),
		"tank_capacity":     tank,
		"compartment_count": len(comps),
		"compartments":      comps,
	}, &v)
	a.must(t, http.StatusOK, http.MethodPost, "/api/vehicles/"+string(v.ID)+"/review", "staff1", map[string]any{"approve": true}, &v)
	return v
}

func (a *testAPI) homeStation(t *testing.T, token string) {
	t.Helper()
	a.must(t, http.StatusCreated, http.MethodPost, "/api/stations", token, map[string]any{
		"name":     "Home",
		"region":   "Dar es Salaam",
		"district": "Kinondoni",
		"location": map[string]float64{"lat": -6.77, "lng": 39.24},
	}, nil)
}

func privateOrder(liters int64) map[string]any {
	return map[string]any{
		"fuel_type":     "Diesel",
		"capacity":      liters,
		"depot":         "Dar",
		"source":        "Kurasini",
		"company":       "Puma Energy",
		"station":       "Home",
		"price":         map[string]any{"amount": 2500000, "currency": "TZS"},
		"delivery_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}
}

type placementResp struct {
	Outcome string              `json:"outcome"`
	Order   *order.Order        `json:"order"`
	Vehicle *fleet.Vehicle      `json:"vehicle"`
	Hint    *fleet.CapacityHint `json:"hint"`
}

func TestHealthNeedsNoToken(t *testing.T) {
	a := newTestAPI(t)
	if w := a.do(http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAPIRejectsMissingOrUnknownToken(t *testing.T) {
	a := newTestAPI(t)
	for _, token := range []string{"", "forged"} {
		if w := a.do(http.MethodGet, "/api/messages", token, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected 401, got %d", token, w.Code)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	a := newTestAPI(t)
	a.homeStation(t, "cust1")
	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"owner places order", http.MethodPost, "/api/orders/private", "owner1", privateOrder(950), http.StatusForbidden},
		{"malformed json", http.MethodPost, "/api/orders/shared", "cust1", "not an object", http.StatusBadRequest},
		{"unknown fuel", http.MethodPost, "/api/orders/private", "cust1", map[string]any{"fuel_type": "Jet", "capacity": 10, "station": "Home"}, http.StatusBadRequest},
		{"missing order", http.MethodGet, "/api/orders/00000000-0000-0000-0000-000000000000", "cust1", nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/orders/not$an$id", "cust1", nil, http.StatusBadRequest},
		{"review without decision", http.MethodPost, "/api/vehicles/abc/review", "staff1", map[string]any{}, http.StatusBadRequest},
		{"customer reviews vehicle", http.MethodPost, "/api/vehicles/abc/review", "cust1", map[string]any{"approve": true}, http.StatusForbidden},
		{"assign without driver", http.MethodPost, "/api/owner/orders/abc/assign", "owner1", map[string]any{}, http.StatusBadRequest},
		{"duplicate station", http.MethodPost, "/api/stations", "cust1", map[string]any{
			"name": "Home", "region": "Dar es Salaam", "district": "Kinondoni",
			"location": map[string]float64{"lat": -6.77, "lng": 39.24},
		}, http.StatusConflict},
		{"profile without phone", http.MethodPut, "/api/me", "cust1", map[string]any{"first_name": "Asha"}, http.StatusBadRequest},
		{"mark foreign message", http.MethodPost, "/api/messages/abc/read", "cust1", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := a.do(tc.method, tc.path, tc.token, tc.body); w.Code != tc.want {
			t.Errorf("%s: status %d, want %d: %s", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestPrivateOrderOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	v := a.approvedVehicle(t, "owner1", 1000, 500, 500)
	a.homeStation(t, "cust1")

	var p placementResp
	a.must(t, http.StatusCreated, http.MethodPost, "/api/orders/private", "cust1", privateOrder(950), &p)
	if p.Outcome != "placed" || p.Order == nil || p.Vehicle == nil || p.Vehicle.ID != v.ID {
		t.Fatalf("placement = %+v", p)
	}
	orderPath := "/api/orders/" + string(p.Order.ID)

	// Another customer cannot see the order.
	if w := a.do(http.MethodGet, orderPath, "cust2", nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign customer read: status %d, want 404", w.Code)
	}

	var requested struct {
		Orders []order.Order `json:"orders"`
	}
	a.must(t, http.StatusOK, http.MethodGet, "/api/owner/orders", "owner1", nil, &requested)
	if len(requested.Orders) != 1 || requested.Orders[0].ID != p.Order.ID {
		t.Fatalf("owner sees %+v", requested.Orders)
	}
	a.must(t, http.StatusOK, http.MethodGet, "/api/owner/orders", "owner2", nil, &requested)
	if len(requested.Orders) != 0 {
		t.Errorf("other owner sees %d orders", len(requested.Orders))
	}

	if w := a.do(http.MethodPost, "/api/owner/orders/"+string(p.Order.ID)+"/accept", "owner2", nil); w.Code != http.StatusForbidden {
		t.Errorf("accept by another owner: status %d, want 403", w.Code)
	}
	var o order.Order
	a.must(t, http.StatusOK, http.MethodPost, "/api/owner/orders/"+string(p.Order.ID)+"/accept", "owner1", nil, &o)
	if o.Status != order.StatusAccepted {
		t.Fatalf("status after accept = %s", o.Status)
	}

	var d fleet.Driver
	a.must(t, http.StatusCreated, http.MethodPost, "/api/drivers", "owner1", map[string]any{
		"first_name": "Juma", "last_name": "Ali", "phone": "0733000000", "license_number": "LIC-77",
	}, &d)
	if w := a.do(http.MethodPost, "/api/owner/orders/"+string(p.Order.ID)+"/assign", "owner1", map[string]any{"driver_id": d.ID}); w.Code != http.StatusConflict {
		t.Errorf("assigning an unverified driver: status %d, want 409", w.Code)
	}
	a.must(t, http.StatusOK, http.MethodPost, "/api/drivers/"+string(d.ID)+"/verify", "staff1", nil, &d)
	a.must(t, http.StatusOK, http.MethodPost, "/api/owner/orders/"+string(p.Order.ID)+"/assign", "owner1", map[string]any{"driver_id": d.ID}, &o)
	if o.Status != order.StatusAssigned {
		t.Fatalf("status after assign = %s", o.Status)
	}

	a.tokens.add("driver", string(d.ID), "driver")
	a.must(t, http.StatusOK, http.MethodGet, orderPath, "driver", nil, &o)
	a.must(t, http.StatusOK, http.MethodPost, "/api/driver/orders/"+string(p.Order.ID)+"/start", "driver", nil, &o)
	a.must(t, http.StatusOK, http.MethodPost, "/api/driver/orders/"+string(p.Order.ID)+"/end", "driver", nil, &o)
	if o.Status != order.StatusCompleted {
		t.Fatalf("status after end = %s", o.Status)
	}
	if w := a.do(http.MethodPost, orderPath+"/cancel", "cust1", nil); w.Code != http.StatusConflict {
		t.Errorf("cancel after completion: status %d, want 409", w.Code)
	}
}

func TestPrivateOrderWithoutFitReturnsHint(t *testing.T) {
	a := newTestAPI(t)
	a.approvedVehicle(t, "owner1", 1000, 500, 500)
	a.homeStation(t, "cust1")

	var p placementResp
	a.must(t, http.StatusOK, http.MethodPost, "/api/orders/private", "cust1", privateOrder(500), &p)
	if p.Outcome != "no_vehicle_fit" || p.Order != nil || p.Hint == nil || p.Hint.SuggestedCapacity != 950 {
		t.Errorf("placement = %+v hint %+v", p, p.Hint)
	}
}

func TestVehiclePositionReporting(t *testing.T) {
	a := newTestAPI(t)
	v := a.approvedVehicle(t, "owner1", 1000, 500, 500)
	path := "/api/vehicles/" + string(v.ID) + "/position"
	fix := map[string]any{"lat": -6.85, "lng": 39.29}

	cases := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"owner", "owner1", fix, http.StatusOK},
		{"gps gateway", "gps", fix, http.StatusOK},
		{"other owner", "owner2", fix, http.StatusForbidden},
		{"customer", "cust1", fix, http.StatusForbidden},
		{"missing lng", "owner1", map[string]any{"lat": -6.85}, http.StatusBadRequest},
		{"latitude out of range", "owner1", map[string]any{"lat": 91.0, "lng": 39.29}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := a.do(http.MethodPut, path, tc.token, tc.body); w.Code != tc.want {
			t.Errorf("%s: status %d, want %d: %s", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
	if w := a.do(http.MethodPut, "/api/vehicles/missing/position", "gps", fix); w.Code != http.StatusNotFound {
		t.Errorf("unknown vehicle: status %d, want 404", w.Code)
	}
}

func TestInboxAndProfile(t *testing.T) {
	a := newTestAPI(t)
	var u account.User
	a.must(t, http.StatusOK, http.MethodPut, "/api/me", "owner1", map[string]any{
		"first_name": "Baraka", "phone": "0712000002", "device_token": "fcm-token",
	}, &u)
	if u.ID != "owner1" || u.Role != "truck_owner" {
		t.Errorf("profile = %+v", u)
	}

	// The owner has no live channel in this wiring, so the suggestion lands in the inbox.
	a.approvedVehicle(t, "owner1", 1000, 500, 500)
	a.homeStation(t, "cust1")
	a.must(t, http.StatusCreated, http.MethodPost, "/api/orders/private", "cust1", privateOrder(1000), nil)

	var inbox struct {
		Messages []notify.Message `json:"messages"`
	}
	a.must(t, http.StatusOK, http.MethodGet, "/api/messages", "owner1", nil, &inbox)
	if len(inbox.Messages) == 0 {
		t.Fatal("owner inbox is empty")
	}
	a.must(t, http.StatusNoContent, http.MethodPost, "/api/messages/"+string(inbox.Messages[0].ID)+"/read", "owner1", nil, nil)
	before := len(inbox.Messages)
	a.must(t, http.StatusOK, http.MethodGet, "/api/messages", "owner1", nil, &inbox)
	if len(inbox.Messages) != before-1 {
		t.Errorf("unread after mark-read = %d, want %d", len(inbox.Messages), before-1)
	}
}

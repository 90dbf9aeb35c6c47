// README: Bench cases; storage checks, placement flows, the shared-merge race probe and perf loads.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fuelhaul/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	signer *infra.JWTVerifier

	// run makes plates, stations and districts unique per invocation so
	// leftovers from earlier runs never match this run's orders.
	run       string
	district  string
	station   string
	vehicleID string
	privateID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	run := time.Now().UTC().Format("0102150405")
	r := &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		run:      run,
		district: "Bench-" + run,
		station:  "Bench Yard " + run,
	}
	if cfg.JWTSecret != "" {
		r.signer = infra.NewJWTVerifier(cfg.JWTSecret)
	}
	return r
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Storage: postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return skip("no dsn")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return fail(err)
			}
			return Result{Status: statusPass}
		}},
		{Name: "Storage: redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return skip("no redis address")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return fail(err)
			}
			return Result{Status: statusPass}
		}},
		{Name: "Storage: schema tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			code, err := r.call(ctx, http.MethodGet, "/health", "", "", nil, nil)
			return expect(code, err, time.Since(start), http.StatusOK)
		}},
		{Name: "Auth: missing token -> 401", Run: func(ctx context.Context, r *Runner) Result {
			code, err := r.call(ctx, http.MethodGet, "/api/messages", "", "", nil, nil)
			return expect(code, err, 0, http.StatusUnauthorized)
		}},
		{Name: "Auth: signed customer token accepted", Run: func(ctx context.Context, r *Runner) Result {
			if r.signer == nil {
				return skip("no jwt secret")
			}
			code, err := r.call(ctx, http.MethodGet, "/api/messages", r.customer(0), "customer", nil, nil)
			return expect(code, err, 0, http.StatusOK)
		}},
		{Name: "Setup: customer profiles and stations", Run: setupCustomers},
		{Name: "Setup: approved tanker reporting a position", Run: setupTanker},
		{Name: "Order: private placement in primary band", Run: placePrivate},
		{Name: "Order: private placement without fit -> hint", Run: func(ctx context.Context, r *Runner) Result {
			if r.signer == nil {
				return skip("no jwt secret")
			}
			var p placement
			start := time.Now()
			code, err := r.call(ctx, http.MethodPost, "/api/orders/private", r.customer(0), "customer", r.orderBody(500000), &p)
			res := expect(code, err, time.Since(start), http.StatusOK)
			if res.Status == statusPass && (p.Outcome != "no_vehicle_fit" || p.Hint == nil) {
				return Result{Status: statusFail, Note: "outcome=" + p.Outcome}
			}
			return res
		}},
		{Name: "Order: non-positive capacity -> 400", Run: func(ctx context.Context, r *Runner) Result {
			if r.signer == nil {
				return skip("no jwt secret")
			}
			code, err := r.call(ctx, http.MethodPost, "/api/orders/shared", r.customer(0), "customer", r.orderBody(0), nil)
			return expect(code, err, 0, http.StatusBadRequest)
		}},
		{Name: "Order: foreign order hidden -> 404", Run: func(ctx context.Context, r *Runner) Result {
			if r.privateID == "" {
				return skip("no private order")
			}
			code, err := r.call(ctx, http.MethodGet, "/api/orders/"+r.privateID, r.customer(1), "customer", nil, nil)
			return expect(code, err, 0, http.StatusNotFound)
		}},
		{Name: "Order: customer cancels requested order", Run: func(ctx context.Context, r *Runner) Result {
			if r.privateID == "" {
				return skip("no private order")
			}
			var o orderView
			code, err := r.call(ctx, http.MethodPost, "/api/orders/"+r.privateID+"/cancel", r.customer(0), "customer",
				map[string]any{"reason": "bench"}, &o)
			res := expect(code, err, 0, http.StatusOK)
			if res.Status == statusPass && o.Status != "Cancelled" {
				return Result{Status: statusFail, Note: "status=" + o.Status}
			}
			return res
		}},
		{Name: "Concurrency: shared placements never double-merge", Run: sharedRace},
		{Name: "Perf: position update throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.vehicleID == "" {
				return skip("no tanker")
			}
			body := map[string]any{"lat": -6.85, "lng": 39.28}
			return r.perfLoad(ctx, http.MethodPut, "/api/vehicles/"+r.vehicleID+"/position", "gps-gateway", "system", body)
		}},
		{Name: "Perf: no-fit placement throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.signer == nil {
				return skip("no jwt secret")
			}
			return r.perfLoad(ctx, http.MethodPost, "/api/orders/private", r.customer(0), "customer", r.orderBody(500000))
		}},
	}
}

type orderView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type placement struct {
	Outcome string          `json:"outcome"`
	Order   *orderView      `json:"order"`
	Cohort  []orderView     `json:"cohort"`
	Hint    json.RawMessage `json:"hint"`
}

func (r *Runner) customer(i int) string {
	return fmt.Sprintf("bench-%s-c%d", r.run, i)
}

func (r *Runner) owner() string {
	return "bench-" + r.run + "-owner"
}

func (r *Runner) orderBody(liters int64) map[string]any {
	return map[string]any{
		"fuel_type":   "Diesel",
		"capacity":    liters,
		"depot":       r.cfg.Depot,
		"source":      r.cfg.Source,
		"company":     r.cfg.Company,
		"station":     r.station,
		"district":    r.district,
		"price":       map[string]any{"amount": liters * 3100, "currency": "TZS"},
		"distance_km": 12.5,
	}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return skip("no dsn")
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return fail(err)
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return fail(err)
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func setupCustomers(ctx context.Context, r *Runner) Result {
	if r.signer == nil {
		return skip("no jwt secret")
	}
	for i := 0; i <= r.cfg.Concurrency; i++ {
		uid := r.customer(i)
		profile := map[string]any{"first_name": "Bench", "last_name": fmt.Sprint(i), "phone": fmt.Sprintf("0712%06d", i)}
		if code, err := r.call(ctx, http.MethodPut, "/api/me", uid, "customer", profile, nil); err != nil || code != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("profile %s: status=%d err=%v", uid, code, err)}
		}
		station := map[string]any{
			"name":     r.station,
			"region":   "Dar es Salaam",
			"district": r.district,
			"location": map[string]any{"lat": -6.82, "lng": 39.27},
		}
		if code, err := r.call(ctx, http.MethodPost, "/api/stations", uid, "customer", station, nil); err != nil || code != http.StatusCreated {
			return Result{Status: statusFail, Note: fmt.Sprintf("station %s: status=%d err=%v", uid, code, err)}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("customers=%d", r.cfg.Concurrency+1)}
}

func setupTanker(ctx context.Context, r *Runner) Result {
	if r.signer == nil {
		return skip("no jwt secret")
	}
	var v struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"plate_number":      "T" + r.run,
		"device_id":         "gps-" + r.run,
		"tank_capacity":     7200,
		"compartment_count": 2,
		"compartments":      []map[string]any{{"label": "A", "capacity": 4000}, {"label": "B", "capacity": 3200}},
	}
	code, err := r.call(ctx, http.MethodPost, "/api/vehicles", r.owner(), "truck_owner", body, &v)
	if err != nil || code != http.StatusCreated {
		return Result{Status: statusFail, Note: fmt.Sprintf("register: status=%d err=%v", code, err)}
	}
	code, err = r.call(ctx, http.MethodPost, "/api/vehicles/"+v.ID+"/review", "bench-staff", "staff", map[string]any{"approve": true}, nil)
	if err != nil || code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("review: status=%d err=%v", code, err)}
	}
	pos := map[string]any{"lat": -6.85, "lng": 39.28}
	code, err = r.call(ctx, http.MethodPut, "/api/vehicles/"+v.ID+"/position", "gps-gateway", "system", pos, nil)
	if err != nil || code/100 != 2 {
		return Result{Status: statusFail, Note: fmt.Sprintf("position: status=%d err=%v", code, err)}
	}
	r.vehicleID = v.ID
	return Result{Status: statusPass, Note: "vehicle=" + v.ID}
}

func placePrivate(ctx context.Context, r *Runner) Result {
	if r.vehicleID == "" {
		return skip("no tanker")
	}
	var p placement
	start := time.Now()
	code, err := r.call(ctx, http.MethodPost, "/api/orders/private", r.customer(0), "customer", r.orderBody(6900), &p)
	res := expect(code, err, time.Since(start), http.StatusCreated)
	if res.Status != statusPass {
		return res
	}
	if p.Outcome != "placed" || p.Order == nil {
		return Result{Status: statusFail, Note: "outcome=" + p.Outcome}
	}
	r.privateID = p.Order.ID
	res.Note = "order=" + p.Order.ID
	return res
}

// sharedRace places one waiting shared order, then lets every other bench
// customer place a matching order at once. Newcomers may pair among
// themselves, but no order may land in two cohorts.
func sharedRace(ctx context.Context, r *Runner) Result {
	if r.vehicleID == "" {
		return skip("no tanker")
	}
	var first placement
	code, err := r.call(ctx, http.MethodPost, "/api/orders/shared", r.customer(0), "customer", r.orderBody(4000), &first)
	if err != nil || code != http.StatusCreated || first.Order == nil {
		return Result{Status: statusFail, Note: fmt.Sprintf("first placement: status=%d err=%v", code, err)}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		cohorts [][]orderView
		errs    int
	)
	start := time.Now()
	for i := 1; i <= r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var p placement
			code, err := r.call(ctx, http.MethodPost, "/api/orders/shared", r.customer(i), "customer", r.orderBody(3200), &p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || code != http.StatusCreated {
				errs++
				return
			}
			if p.Outcome == "merged" {
				cohorts = append(cohorts, p.Cohort)
			}
		}(i)
	}
	wg.Wait()
	latency := time.Since(start)

	seen := map[string]int{}
	for _, c := range cohorts {
		for _, o := range c {
			seen[o.ID]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("order %s merged %d times", id, n)}
		}
	}
	return Result{
		Status:  statusPass,
		Latency: latency,
		Note:    fmt.Sprintf("merges=%d first_merged=%t errors=%d", len(cohorts), seen[first.Order.ID] == 1, errs),
	}
}

func (r *Runner) perfLoad(ctx context.Context, method, path, uid, role string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, err := r.call(ctx, method, path, uid, role, payload, nil)
				mu.Lock()
				if err != nil || code >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

// call sends a JSON request, signing a token for uid when set, and decodes
// the response into out when out is non-nil.
func (r *Runner) call(ctx context.Context, method, path, uid, role string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		if r.signer == nil {
			return 0, fmt.Errorf("no jwt secret to sign for %s", uid)
		}
		tok, err := r.signer.Sign(uid, role, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func expect(code int, err error, latency time.Duration, want int) Result {
	if err != nil {
		return fail(err)
	}
	note := fmt.Sprintf("status=%d", code)
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("%s want=%d", note, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func fail(err error) Result {
	return Result{Status: statusFail, Note: err.Error()}
}

func skip(note string) Result {
	return Result{Status: statusSkip, Note: note}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

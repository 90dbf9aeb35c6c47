// README: Smoke and load runner against a live fuelhaul API; checks storage, flows, merge races and throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL       string
	DSN           string
	RedisAddr     string
	MigrationPath string
	JWTSecret     string
	Depot         string
	Source        string
	Company       string
	Strict        bool
	Timeout       time.Duration
	Concurrency   int
	Duration      time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("FUELHAUL_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("FUELHAUL_DB_DSN", ""), "Postgres DSN (empty skips storage checks)")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("FUELHAUL_REDIS_ADDR", ""), "Redis address (empty skips the check)")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("FUELHAUL_BENCH_MIGRATION", "internal/infra/migrations/0001_init.sql"), "Schema file listing expected tables")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", envOrDefault("FUELHAUL_JWT_SECRET", ""), "HS256 secret shared with the API")
	flag.StringVar(&cfg.Depot, "depot", envOrDefault("FUELHAUL_BENCH_DEPOT", "Dar"), "Catalog depot used for orders")
	flag.StringVar(&cfg.Source, "source", envOrDefault("FUELHAUL_BENCH_SOURCE", "Kurasini"), "Catalog source used for orders")
	flag.StringVar(&cfg.Company, "company", envOrDefault("FUELHAUL_BENCH_COMPANY", "Puma Energy"), "Catalog company used for orders")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("FUELHAUL_BENCH_STRICT", false), "Fail on skipped cases")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("FUELHAUL_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("FUELHAUL_BENCH_CONCURRENCY", 8), "Concurrent clients for race and perf cases")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("FUELHAUL_BENCH_DURATION", 10*time.Second), "Duration of perf cases")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

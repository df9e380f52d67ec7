// README: bench command; smoke checks and load probes against a running shopd, DB and Redis.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type benchConfig struct {
	BaseURL       string
	Token         string
	DSN           string
	RedisAddr     string
	MigrationPath string
	OrderID       string
	Timeout       time.Duration
	Concurrency   int
	Duration      time.Duration
}

type benchResult struct {
	Status  string
	Latency time.Duration
	Note    string
}

type benchCase struct {
	Name string
	Run  func(ctx context.Context, r *benchRunner) benchResult
}

type benchRunner struct {
	cfg   benchConfig
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

func newBenchCmd() *cobra.Command {
	var cfg benchConfig
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run smoke checks and load probes against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			r := &benchRunner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
			counts := r.runAll(ctx, cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "\nPASS=%d FAIL=%d SKIP=%d\n", counts["PASS"], counts["FAIL"], counts["SKIP"])
			if counts["FAIL"] > 0 {
				return fmt.Errorf("%d checks failed", counts["FAIL"])
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "addr", envOrDefault("SHOPD_API_URL", "http://localhost:8080"), "shopd base URL")
	f.StringVar(&cfg.Token, "token", os.Getenv("SHOPD_API_TOKEN"), "bearer token with the ops role")
	f.StringVar(&cfg.DSN, "dsn", os.Getenv("SHOPD_DB_DSN"), "Postgres DSN; empty skips DB checks")
	f.StringVar(&cfg.RedisAddr, "redis", os.Getenv("SHOPD_REDIS_ADDR"), "Redis address; empty skips Redis checks")
	f.StringVar(&cfg.MigrationPath, "migration", defaultMigration, "migration SQL path")
	f.StringVar(&cfg.OrderID, "order", "", "pending order id for the concurrent accept probe")
	f.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "total timeout")
	f.IntVar(&cfg.Concurrency, "concurrency", 20, "concurrent clients for load probes")
	f.DurationVar(&cfg.Duration, "duration", 10*time.Second, "duration of each load probe")
	return cmd
}

func (r *benchRunner) runAll(ctx context.Context, w io.Writer) map[string]int {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	counts := map[string]int{}
	for _, tc := range r.cases() {
		res := tc.Run(ctx, r)
		counts[res.Status]++
		fmt.Fprintf(w, "%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Fprintf(w, " (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Fprintf(w, " - %s", res.Note)
		}
		fmt.Fprintln(w)
	}
	return counts
}

func (r *benchRunner) cases() []benchCase {
	return []benchCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *benchRunner) benchResult {
				if r.db == nil {
					return benchResult{Status: "SKIP", Note: "dsn not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return benchResult{Status: "FAIL", Note: err.Error()}
				}
				return benchResult{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *benchRunner) benchResult {
				if r.redis == nil {
					return benchResult{Status: "SKIP", Note: "redis not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return benchResult{Status: "FAIL", Note: err.Error()}
				}
				return benchResult{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run:  checkTables,
		},
		httpCase("API: health", http.MethodGet, "/health", nil, http.StatusOK),
		httpCase("API: dispatch status", http.MethodGet, "/api/dispatch/status", nil, http.StatusOK),
		httpCase("Location: unconnected shopper -> 409", http.MethodPut, "/api/shoppers/bench-offline/location",
			strings.NewReader(`{"lat":-1.95,"lng":30.06}`), http.StatusConflict),
		httpCase("Location: invalid coords -> 400", http.MethodPut, "/api/shoppers/bench-offline/location",
			strings.NewReader(`{"lat":123,"lng":456}`), http.StatusBadRequest),
		httpCase("Dispatch: unknown order -> 404", http.MethodPost, "/api/dispatch/orders/bench-missing", nil, http.StatusNotFound),
		httpCase("Offer: reject without offer -> 404", http.MethodPost, "/api/shoppers/bench-offline/offers/bench-missing/reject", nil, http.StatusNotFound),
		{
			Name: "Concurrency: many shoppers accept one order",
			Run:  concurrentAccept,
		},
		{
			Name: "Perf: status throughput",
			Run: func(ctx context.Context, r *benchRunner) benchResult {
				return perfLoad(ctx, r, http.MethodGet, "/api/dispatch/status")
			},
		},
	}
}

func (r *benchRunner) request(ctx context.Context, method, path string, body io.Reader) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, time.Since(start), nil
}

func httpCase(name, method, path string, body io.Reader, want int) benchCase {
	return benchCase{
		Name: name,
		Run: func(ctx context.Context, r *benchRunner) benchResult {
			status, latency, err := r.request(ctx, method, path, body)
			if err != nil {
				return benchResult{Status: "FAIL", Note: err.Error()}
			}
			res := benchResult{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			if status != want {
				res.Status = "FAIL"
			}
			return res
		},
	}
}

func checkTables(ctx context.Context, r *benchRunner) benchResult {
	if r.db == nil {
		return benchResult{Status: "SKIP", Note: "dsn not set"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range extractTables(string(sql)) {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return benchResult{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return benchResult{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return benchResult{Status: "PASS"}
}

// concurrentAccept fires one accept per synthetic shopper at the same order.
// At most one may succeed.
func concurrentAccept(ctx context.Context, r *benchRunner) benchResult {
	if r.cfg.OrderID == "" {
		return benchResult{Status: "SKIP", Note: "--order not set"}
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/api/shoppers/bench-%d/offers/%s/accept", i, r.cfg.OrderID)
			status, _, err := r.request(ctx, http.MethodPost, path, nil)
			if err != nil {
				return
			}
			if status/100 == 2 {
				mu.Lock()
				succ++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succ <= 1 {
		return benchResult{Status: "PASS", Note: fmt.Sprintf("success=%d", succ)}
	}
	return benchResult{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

func perfLoad(ctx context.Context, r *benchRunner, method, path string) benchResult {
	end := time.Now().Add(r.cfg.Duration)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		count    int64
		errCount int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, _, err := r.request(ctx, method, path, nil)
				mu.Lock()
				if err != nil {
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
		return benchResult{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return benchResult{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

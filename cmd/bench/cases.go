// README: Benchmark scenarios for the booking API; HTTP lifecycle, DB consistency, Redis and throughput checks.
// The target server must run with FIXIT_DRIVERS_AUTH=dev so "<uid>:<role>" bearer tokens are accepted.
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
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	operatorToken = "bench_op:operator"
	customerToken = "bench_c1:customer"
	benchWorkers  = 3
	benchSkill    = "plumbing"
	benchLat      = 12.9716
	benchLng      = 77.5946
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// scenario state shared by consecutive cases
	bookingID string
	winner    string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
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
		fmt.Printf("%-7s %s", res.Status, tc.Name)
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

// call sends a JSON request and decodes a JSON response into out when out is non-nil.
func (r *Runner) call(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func workerToken(uid string) string { return uid + ":worker" }

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the migration file exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		statusCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),
		statusCase("API: unauthenticated -> 401", http.MethodPost, "/api/bookings", "", map[string]any{}, http.StatusUnauthorized),

		// Directory
		{
			Name:  "Workers: register nearby workers",
			Focus: "operator upserts verified, available workers",
			Run: func(ctx context.Context, r *Runner) Result {
				var total time.Duration
				for i := 0; i < benchWorkers; i++ {
					status, lat, err := r.call(ctx, http.MethodPost, "/api/workers", operatorToken, map[string]any{
						"user_id":   fmt.Sprintf("bench_w%d", i),
						"name":      fmt.Sprintf("Bench Worker %d", i),
						"skills":    []string{benchSkill},
						"status":    "verified",
						"available": true,
						"location":  map[string]float64{"lat": benchLat + 0.005*float64(i+1), "lng": benchLng},
						"rating":    4.0 + 0.2*float64(i),
					}, nil)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if status != http.StatusCreated {
						return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", status)}
					}
					total += lat
				}
				return Result{Status: "PASS", Latency: total / benchWorkers}
			},
		},
		statusCase("Workers: register missing skills -> 400", http.MethodPost, "/api/workers", operatorToken, map[string]any{
			"user_id": "bench_bad",
			"name":    "No Skills",
		}, http.StatusBadRequest),
		statusCase("Workers: customer cannot register -> 403", http.MethodPost, "/api/workers", customerToken, map[string]any{}, http.StatusForbidden),

		// Booking flow
		{
			Name:  "Booking: create with dispatch",
			Focus: "created pending, nearest worker ranked first",
			Run: func(ctx context.Context, r *Runner) Result {
				id, res := r.createBooking(ctx)
				if res.Status != "PASS" {
					return res
				}
				r.bookingID = id
				if res.Note != "first=bench_w0" {
					res.Status = "FAIL"
					res.Note = "nearest worker not ranked first: " + res.Note
				}
				return res
			},
		},
		statusCase("Booking: missing service type -> 400", http.MethodPost, "/api/bookings", customerToken, map[string]any{
			"address": "nowhere",
		}, http.StatusBadRequest),
		{
			Name:  "Concurrency: multi accept same booking",
			Focus: "exactly one worker wins, the rest see 409",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == "" {
					return Result{Status: "SKIP", Note: "no booking"}
				}
				return concurrentAccept(ctx, r, r.bookingID)
			},
		},
		{
			Name:  "Booking: start, track, complete",
			Focus: "assigned worker drives the booking to completed",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == "" || r.winner == "" {
					return Result{Status: "SKIP", Note: "no assigned booking"}
				}
				return r.finishBooking(ctx)
			},
		},
		{
			Name:  "Booking: completed cannot be cancelled",
			Focus: "terminal status is immutable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == "" {
					return Result{Status: "SKIP", Note: "no booking"}
				}
				status, lat, err := r.call(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/cancel", customerToken, nil, nil)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusUnprocessableEntity {
					return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: "PASS", Latency: lat}
			},
		},
		{
			Name:  "Consistency: history rows match status_version",
			Focus: "one history row per transition",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil || r.bookingID == "" {
					return Result{Status: "SKIP", Note: "needs db and a booking"}
				}
				var version, rows int
				err := r.db.QueryRow(ctx, `
					SELECT b.status_version, (SELECT count(*) FROM booking_status_history h WHERE h.booking_id = b.id)
					FROM bookings b WHERE b.id = $1`, r.bookingID).Scan(&version, &rows)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if version != rows {
					return Result{Status: "FAIL", Note: fmt.Sprintf("version=%d history=%d", version, rows)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("version=%d", version)}
			},
		},
		{
			Name:  "Concurrency: cancel vs accept",
			Focus: "cancel retries from the current status and wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return cancelVsAccept(ctx, r)
			},
		},
		{
			Name:  "Redis: dispatch log recorded",
			Focus: "offered workers are remembered per booking",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil || r.bookingID == "" {
					return Result{Status: "SKIP", Note: "needs redis and a booking"}
				}
				n, err := r.redis.SCard(ctx, "matching:booking:"+r.bookingID+":notified").Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if n == 0 {
					return Result{Status: "FAIL", Note: "no notified workers"}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("notified=%d", n)}
			},
		},

		manualCase("Error: Redis down -> geo index falls back to DB", "stop redis and create a booking"),
		manualCase("Tracking: RTDB mirror", "set FIXIT_FIREBASE_DATABASE_URL and watch booking_locations/"),

		// Performance
		{
			Name:  "Perf: worker location update throughput",
			Focus: "50-100 snapshot updates per second",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPut, "/api/workers/bench_w0/location", workerToken("bench_w0"),
					map[string]float64{"lat": benchLat, "lng": benchLng})
			},
		},
		{
			Name:  "Perf: create booking throughput",
			Focus: "10-20 bookings per second",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPost, "/api/bookings", customerToken, bookingPayload())
			},
		},
	}
}

func bookingPayload() map[string]any {
	return map[string]any{
		"service_type":   benchSkill,
		"address":        "MG Road, Bengaluru",
		"geo":            map[string]float64{"lat": benchLat, "lng": benchLng},
		"estimated_cost": map[string]any{"amount": 50000, "currency": "INR"},
	}
}

type createResp struct {
	Booking struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"booking"`
	Candidates []struct {
		Worker struct {
			ID string `json:"id"`
		} `json:"worker"`
		DistanceKm float64 `json:"distance_km"`
	} `json:"candidates"`
	NoWorkersAvailable bool `json:"no_workers_available"`
}

func (r *Runner) createBooking(ctx context.Context) (string, Result) {
	var out createResp
	status, lat, err := r.call(ctx, http.MethodPost, "/api/bookings", customerToken, bookingPayload(), &out)
	if err != nil {
		return "", Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return "", Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d", status)}
	}
	if out.Booking.Status != "pending" {
		return "", Result{Status: "FAIL", Latency: lat, Note: "status=" + out.Booking.Status}
	}
	if out.NoWorkersAvailable || len(out.Candidates) == 0 {
		return out.Booking.ID, Result{Status: "PASS", Latency: lat, Note: "no workers available"}
	}
	return out.Booking.ID, Result{Status: "PASS", Latency: lat, Note: "first=" + out.Candidates[0].Worker.ID}
}

func (r *Runner) finishBooking(ctx context.Context) Result {
	id, token := r.bookingID, workerToken(r.winner)
	steps := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/api/bookings/" + id + "/start", nil, http.StatusOK},
		{http.MethodPost, "/api/bookings/" + id + "/tracking/start", nil, http.StatusOK},
		{http.MethodPost, "/api/bookings/" + id + "/tracking/fix", map[string]any{"lat": benchLat + 0.01, "lng": benchLng, "accuracy": 10, "speed": 6.0}, http.StatusAccepted},
	}
	start := time.Now()
	for _, s := range steps {
		status, _, err := r.call(ctx, s.method, s.path, token, s.body, nil)
		if err != nil {
			return Result{Status: "FAIL", Note: s.path + ": " + err.Error()}
		}
		if status != s.want {
			return Result{Status: "FAIL", Note: fmt.Sprintf("%s status=%d", s.path, status)}
		}
	}

	// the tracker samples on an interval; give it a few ticks
	located := false
	for i := 0; i < 20 && !located; i++ {
		status, _, err := r.call(ctx, http.MethodGet, "/api/bookings/"+id+"/location", customerToken, nil, nil)
		located = err == nil && status == http.StatusOK
		if !located {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if !located {
		return Result{Status: "FAIL", Note: "customer never saw a location"}
	}

	status, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/complete", token,
		map[string]any{"final_cost": map[string]any{"amount": 52000, "currency": "INR"}}, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("complete status=%d", status)}
	}
	return Result{Status: "PASS", Latency: time.Since(start)}
}

func statusCase(name, method, path, token string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			status, lat, err := r.call(ctx, method, path, token, body, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if status == http.StatusNotFound || status == http.StatusNotImplemented {
				return Result{Status: "PENDING", Latency: lat, Note: fmt.Sprintf("status=%d", status)}
			}
			if status != want {
				return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d want=%d", status, want)}
			}
			return Result{Status: "PASS", Latency: lat, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

func concurrentAccept(ctx context.Context, r *Runner, bookingID string) Result {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succ      int
		conflicts int
		winner    string
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		// only registered, verified workers may accept; several goroutines share an id
		uid := fmt.Sprintf("bench_w%d", i%benchWorkers)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+bookingID+"/accept", workerToken(uid), nil, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case http.StatusOK:
				succ++
				winner = uid
			case http.StatusConflict:
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	if succ != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d conflicts=%d", succ, conflicts)}
	}
	r.winner = winner
	return Result{Status: "PASS", Note: fmt.Sprintf("winner=%s conflicts=%d", winner, conflicts)}
}

func cancelVsAccept(ctx context.Context, r *Runner) Result {
	id, res := r.createBooking(ctx)
	if id == "" {
		return res
	}
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, _, _ = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/accept", workerToken("bench_w1"), nil, nil)
	}()
	go func() {
		defer wg.Done()
		<-start
		_, _, _ = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", operatorToken, map[string]any{"reason": "bench"}, nil)
	}()
	close(start)
	wg.Wait()

	var b struct {
		Status string `json:"status"`
	}
	status, _, err := r.call(ctx, http.MethodGet, "/api/bookings/"+id, operatorToken, nil, &b)
	if err != nil || status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("get status=%d err=%v", status, err)}
	}
	if b.Status != "cancelled" {
		return Result{Status: "FAIL", Note: "final status=" + b.Status}
	}
	return Result{Status: "PASS"}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, method, path, token, payload, nil)
				mu.Lock()
				if err != nil || status >= 300 {
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
		return Result{Status: "FAIL", Note: fmt.Sprintf("no requests completed errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
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

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

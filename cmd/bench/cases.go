// README: Benchmark cases: environment, seeded API flow, races that must have one winner, and throughput.
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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"petmarket/internal/infra"
	"petmarket/internal/modules/staff"
	"petmarket/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Per-run identities so reruns against the same database do not collide.
	provider types.ID
	groomer  types.ID
	customer types.ID
	drivers  []types.ID
	tokens   map[types.ID]string
	seeded   bool

	serviceOrder types.ID
	productOrder types.ID
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
	run := strings.ReplaceAll(string(types.NewID()), "-", "")[:8]
	r := &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		provider: types.ID("bench_prov_" + run),
		groomer:  types.ID("bench_groomer_" + run),
		customer: types.ID("bench_cust_" + run),
		tokens:   map[types.ID]string{},
	}
	for i := 0; i < cfg.Concurrency; i++ {
		r.drivers = append(r.drivers, types.ID(fmt.Sprintf("bench_drv_%s_%02d", run, i)))
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
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "Seed: provider roster", Run: seedRoster},

		{Name: "Order: create service order", Run: createServiceOrder},
		{Name: "Order: create with missing items -> 400", Run: createInvalidOrder},
		{Name: "Order: create outside operating hours -> 400", Run: createOutsideHours},
		{Name: "Availability: staff slots", Run: staffSlots},
		{Name: "Concurrency: multi accept same order", Run: concurrentAccept},
		{Name: "Order: staff start and complete", Run: progressServiceOrder},
		{Name: "Order: completed cannot cancel -> 409", Run: cancelCompleted},
		{Name: "Concurrency: cancel vs accept", Run: cancelVsAccept},
		{Name: "Consistency: events match status_version", Run: checkEvents},

		{Name: "Dispatch: drivers come online", Run: driversOnline},
		{Name: "Dispatch: product accept offers delivery", Run: productOffer},
		{Name: "Concurrency: drivers race for one delivery request", Run: driverRace},
		{Name: "Dispatch: order bound to winning driver", Run: checkDriverBound},

		{Name: "Perf: availability reads", Run: perfAvailability},
		{Name: "Perf: product order creation", Run: perfCreate},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	code, body, latency, err := r.call(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expectStatus(code, latency, body, http.StatusOK)
}

// seedRoster writes the bench provider and staff straight into Postgres and
// signs a token for every identity.
func seedRoster(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	if r.cfg.JWTSecret == "" {
		return Result{Status: statusSkip, Note: "jwt-secret not set"}
	}
	store := staff.NewStore(r.db)
	if err := store.SaveProvider(ctx, &staff.Provider{ID: r.provider, Name: "bench", IsOpen: true, TimeZone: "UTC"}); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	members := []*staff.Member{{ID: r.groomer, ProviderID: r.provider, Role: types.RoleServiceStaff, Active: true}}
	for _, d := range r.drivers {
		members = append(members, &staff.Member{ID: d, ProviderID: r.provider, Role: types.RoleDriver, Active: true})
	}
	for _, m := range members {
		if err := store.SaveMember(ctx, m); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}

	sign := func(uid types.ID, role types.Role) error {
		tok, err := infra.SignJWT(r.cfg.JWTSecret, string(uid), map[string]interface{}{
			"role":        string(role),
			"provider_id": string(r.provider),
		}, time.Hour)
		r.tokens[uid] = tok
		return err
	}
	if err := sign(r.customer, types.RoleCustomer); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if err := sign("owner", types.RoleProvider); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, m := range members {
		if err := sign(m.ID, m.Role); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	r.seeded = true
	return Result{Status: statusPass, Note: fmt.Sprintf("provider=%s drivers=%d", r.provider, len(r.drivers))}
}

// slot returns hour:00 UTC on the next day so bookings are never in the past.
func slot(hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func (r *Runner) serviceBody(hour int) map[string]any {
	return map[string]any{
		"provider_id":  r.provider,
		"order_type":   "service",
		"scheduled_at": slot(hour),
		"items":        []map[string]any{{"name": "bath", "duration_minutes": 60, "unit_price": 800}},
	}
}

func (r *Runner) productBody() map[string]any {
	return map[string]any{
		"provider_id": r.provider,
		"order_type":  "product",
		"items":       []map[string]any{{"name": "kibble", "quantity": 1, "unit_price": 450}},
	}
}

func (r *Runner) createOrder(ctx context.Context, body map[string]any) (types.ID, Result) {
	code, raw, latency, err := r.call(ctx, http.MethodPost, "/api/orders", r.tokens[r.customer], body)
	if err != nil {
		return "", Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusCreated {
		return "", expectStatus(code, latency, raw, http.StatusCreated)
	}
	var out struct {
		ID types.ID `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", Result{Status: statusFail, Note: "no order id in response"}
	}
	return out.ID, Result{Status: statusPass, Latency: latency, Note: "order=" + string(out.ID)}
}

func createServiceOrder(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	id, res := r.createOrder(ctx, r.serviceBody(10))
	r.serviceOrder = id
	return res
}

func createInvalidOrder(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	body := r.serviceBody(11)
	delete(body, "items")
	code, raw, latency, err := r.call(ctx, http.MethodPost, "/api/orders", r.tokens[r.customer], body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expectStatus(code, latency, raw, http.StatusBadRequest)
}

func createOutsideHours(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	code, raw, latency, err := r.call(ctx, http.MethodPost, "/api/orders", r.tokens[r.customer], r.serviceBody(5))
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expectStatus(code, latency, raw, http.StatusBadRequest)
}

func (r *Runner) availabilityPath() string {
	return fmt.Sprintf("/api/providers/%s/staff/%s/availability?date=%s", r.provider, r.groomer, slot(0).Format("2006-01-02"))
}

func staffSlots(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	code, raw, latency, err := r.call(ctx, http.MethodGet, r.availabilityPath(), r.tokens[r.customer], nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusOK {
		return expectStatus(code, latency, raw, http.StatusOK)
	}
	var out struct {
		Available []int `json:"available_hours"`
	}
	_ = json.Unmarshal(raw, &out)
	if len(out.Available) != 14 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("available=%v, want 9..22", out.Available)}
	}
	return Result{Status: statusPass, Latency: latency}
}

// concurrentAccept fires the same accept from many callers; exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.serviceOrder == "" {
		return Result{Status: statusSkip, Note: "no service order"}
	}
	path := "/api/orders/" + string(r.serviceOrder) + "/accept"
	body := map[string]any{"staff_id": r.groomer}
	codes := r.race(ctx, r.cfg.Concurrency, func(int) (string, string, any) {
		return path, r.tokens["owner"], body
	})
	return exactlyOne(codes)
}

func progressServiceOrder(ctx context.Context, r *Runner) Result {
	if r.serviceOrder == "" {
		return Result{Status: statusSkip, Note: "no service order"}
	}
	path := "/api/orders/" + string(r.serviceOrder) + "/progress"
	var total time.Duration
	for _, next := range []string{"in_progress", "completed"} {
		code, raw, latency, err := r.call(ctx, http.MethodPost, path, r.tokens[r.groomer], map[string]any{"next_status": next})
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if code != http.StatusOK {
			return expectStatus(code, latency, raw, http.StatusOK)
		}
		total += latency
	}
	return Result{Status: statusPass, Latency: total}
}

func cancelCompleted(ctx context.Context, r *Runner) Result {
	if r.serviceOrder == "" {
		return Result{Status: statusSkip, Note: "no service order"}
	}
	code, raw, latency, err := r.call(ctx, http.MethodPost, "/api/orders/"+string(r.serviceOrder)+"/cancel", r.tokens[r.customer], nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expectStatus(code, latency, raw, http.StatusConflict)
}

// cancelVsAccept races a customer cancel against a provider accept on one
// pending order. Whichever commits first wins; the other must see 409.
func cancelVsAccept(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	id, res := r.createOrder(ctx, r.serviceBody(14))
	if id == "" {
		return res
	}
	base := "/api/orders/" + string(id)
	codes := r.race(ctx, 2, func(i int) (string, string, any) {
		if i == 0 {
			return base + "/cancel", r.tokens[r.customer], nil
		}
		return base + "/accept", r.tokens["owner"], map[string]any{"staff_id": r.groomer}
	})
	return exactlyOne(codes)
}

func checkEvents(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.serviceOrder == "" {
		return Result{Status: statusSkip, Note: "needs db and a service order"}
	}
	var status string
	var version int
	if err := r.db.QueryRow(ctx, `SELECT status, status_version FROM orders WHERE id = $1`, string(r.serviceOrder)).Scan(&status, &version); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	var events int
	var last string
	if err := r.db.QueryRow(ctx, `
		SELECT count(*) OVER (), to_status FROM order_state_events
		WHERE order_id = $1 ORDER BY id DESC LIMIT 1`, string(r.serviceOrder)).Scan(&events, &last); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if events != version+1 || last != status {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%s version=%d events=%d last=%s", status, version, events, last)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("events=%d", events)}
}

// driversOnline makes every bench driver poll once, which records a heartbeat.
func driversOnline(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	for _, d := range r.drivers {
		code, raw, latency, err := r.call(ctx, http.MethodGet, "/api/drivers/"+string(d)+"/delivery-requests", r.tokens[d], nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if code != http.StatusOK {
			return expectStatus(code, latency, raw, http.StatusOK)
		}
	}
	if r.redis != nil {
		n, err := r.redis.ZCard(ctx, "dispatch:provider:"+string(r.provider)+":online").Result()
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if int(n) != len(r.drivers) {
			return Result{Status: statusFail, Note: fmt.Sprintf("online set has %d of %d drivers", n, len(r.drivers))}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", len(r.drivers))}
}

type offerRow struct {
	ID        types.ID  `json:"id"`
	OrderID   types.ID  `json:"order_id"`
	Candidate *types.ID `json:"candidate_staff_id"`
}

type pendingList struct {
	Requests []offerRow `json:"requests"`
}

func productOffer(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	id, res := r.createOrder(ctx, r.productBody())
	if id == "" {
		return res
	}
	r.productOrder = id
	code, raw, latency, err := r.call(ctx, http.MethodPost, "/api/orders/"+string(id)+"/accept", r.tokens["owner"], nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusOK {
		return expectStatus(code, latency, raw, http.StatusOK)
	}
	req, err := r.openRequest(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	note := "broadcast"
	if req.Candidate != nil {
		note = "candidate=" + string(*req.Candidate)
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func (r *Runner) openRequest(ctx context.Context) (*offerRow, error) {
	code, raw, _, err := r.call(ctx, http.MethodGet, "/api/providers/"+string(r.provider)+"/delivery-requests", r.tokens["owner"], nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("status=%d", code)
	}
	var list pendingList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	for i := range list.Requests {
		if list.Requests[i].OrderID == r.productOrder {
			return &list.Requests[i], nil
		}
	}
	return nil, fmt.Errorf("no open request for order %s", r.productOrder)
}

// driverRace has every driver accept the same delivery request at once.
func driverRace(ctx context.Context, r *Runner) Result {
	if r.productOrder == "" {
		return Result{Status: statusSkip, Note: "no product order"}
	}
	req, err := r.openRequest(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	path := "/api/delivery-requests/" + string(req.ID) + "/action"
	codes := r.race(ctx, len(r.drivers), func(i int) (string, string, any) {
		return path, r.tokens[r.drivers[i]], map[string]any{"action": "ACCEPT"}
	})
	return exactlyOne(codes)
}

func checkDriverBound(ctx context.Context, r *Runner) Result {
	if r.productOrder == "" {
		return Result{Status: statusSkip, Note: "no product order"}
	}
	code, raw, latency, err := r.call(ctx, http.MethodGet, "/api/orders/"+string(r.productOrder), r.tokens[r.customer], nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusOK {
		return expectStatus(code, latency, raw, http.StatusOK)
	}
	var o struct {
		Status   string    `json:"status"`
		Assigned *types.ID `json:"assigned_staff_id"`
	}
	_ = json.Unmarshal(raw, &o)
	if o.Assigned == nil {
		return Result{Status: statusFail, Note: "order has no driver"}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%s driver=%s", o.Status, *o.Assigned)}
}

func perfAvailability(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	return r.perfLoad(ctx, http.MethodGet, r.availabilityPath(), r.tokens[r.customer], nil)
}

func perfCreate(ctx context.Context, r *Runner) Result {
	if !r.seeded {
		return Result{Status: statusSkip, Note: "roster not seeded"}
	}
	return r.perfLoad(ctx, http.MethodPost, "/api/orders", r.tokens[r.customer], r.productBody())
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, time.Since(start), err
}

// race releases n requests at the same moment and returns their status codes.
func (r *Runner) race(ctx context.Context, n int, req func(i int) (path, token string, body any)) []int {
	codes := make([]int, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, token, body := req(i)
			<-start
			code, _, _, err := r.call(ctx, http.MethodPost, path, token, body)
			if err != nil {
				code = -1
			}
			codes[i] = code
		}(i)
	}
	close(start)
	wg.Wait()
	return codes
}

func exactlyOne(codes []int) Result {
	counts := map[int]int{}
	for _, c := range codes {
		counts[c]++
	}
	note := summarizeCodes(counts)
	if counts[http.StatusOK] != 1 {
		return Result{Status: statusFail, Note: note}
	}
	for code, n := range counts {
		if code != http.StatusOK && code != http.StatusConflict && code != http.StatusForbidden && n > 0 {
			return Result{Status: statusFail, Note: note}
		}
	}
	return Result{Status: statusPass, Note: note}
}

func summarizeCodes(counts map[int]int) string {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d x%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func expectStatus(code int, latency time.Duration, body []byte, want int) Result {
	note := fmt.Sprintf("status=%d", code)
	if code == want {
		return Result{Status: statusPass, Latency: latency, Note: note}
	}
	if len(body) > 0 {
		note += " body=" + strings.TrimSpace(string(body))
	}
	return Result{Status: statusFail, Latency: latency, Note: note}
}

func (r *Runner) perfLoad(ctx context.Context, method, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu        sync.Mutex
		latencies []time.Duration
		errCount  int
	)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, latency, err := r.call(ctx, method, path, token, payload)
				mu.Lock()
				if err != nil || code/100 != 2 {
					errCount++
				} else {
					latencies = append(latencies, latency)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no request succeeded, errors=%d", errCount)}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p50 := latencies[len(latencies)/2]
	p95 := latencies[len(latencies)*95/100]
	rps := float64(len(latencies)) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f p50=%s p95=%s errors=%d", rps, p50, p95, errCount)}
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

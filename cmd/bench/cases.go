// README: Benchmark cases for the auction API; HTTP flow, mirror checks in Postgres/Redis, and bid load.
package main

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "os"
    "regexp"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"

    "ridebid/internal/infra"
)

type Runner struct {
    cfg   Config
    httpc *http.Client
    db    *pgxpool.Pool
    redis *redis.Client

    // shared between cases; the flow cases run in order
    auctionID string
    bidIDs    []string
    startCode string
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

func (r *Runner) cases() []TestCase {
    return []TestCase{
        {Name: "Env: Postgres connect", Run: pingDB},
        {Name: "Env: Redis connect", Run: pingRedis},
        {Name: "Migration: apply (optional)", Run: applyMigration},
        {Name: "Migration: tables exist", Run: tablesExist},
        {Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
            code, _, lat, err := r.call(ctx, http.MethodGet, "/health", nil)
            return expect(code, lat, err, http.StatusOK)
        }},

        {Name: "Auction: register", Run: func(ctx context.Context, r *Runner) Result {
            r.auctionID = "bench-" + uuid.NewString()
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions", map[string]any{
                "auction_id": r.auctionID,
                "meta":       map[string]string{"customer_id": "bench-customer"},
            })
            return expect(code, lat, err, http.StatusCreated)
        }},
        {Name: "Auction: duplicate register -> 409", Run: func(ctx context.Context, r *Runner) Result {
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions", map[string]any{"auction_id": r.auctionID})
            return expect(code, lat, err, http.StatusConflict)
        }},
        {Name: "Auction: listed as open", Run: func(ctx context.Context, r *Runner) Result {
            code, body, lat, err := r.call(ctx, http.MethodGet, "/api/auctions/open", nil)
            if res := expect(code, lat, err, http.StatusOK); res.Status != "PASS" {
                return res
            }
            if !strings.Contains(string(body), r.auctionID) {
                return Result{Status: "FAIL", Latency: lat, Note: "auction missing from open list"}
            }
            return Result{Status: "PASS", Latency: lat}
        }},
        {Name: "Bid: submit (valid)", Run: func(ctx context.Context, r *Runner) Result {
            return r.submitBid(ctx, "bench-driver-a", "180")
        }},
        {Name: "Bid: submit (lower offer)", Run: func(ctx context.Context, r *Runner) Result {
            return r.submitBid(ctx, "bench-driver-b", "150.50")
        }},
        {Name: "Bid: missing driver -> 400", Run: func(ctx context.Context, r *Runner) Result {
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/bids", map[string]any{"amount": "100"})
            return expect(code, lat, err, http.StatusBadRequest)
        }},
        {Name: "Accept: before selection -> 409", Run: func(ctx context.Context, r *Runner) Result {
            if len(r.bidIDs) == 0 {
                return Result{Status: "SKIP", Note: "no bids"}
            }
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/accept", map[string]any{"bid_id": r.bidIDs[0]})
            return expect(code, lat, err, http.StatusConflict)
        }},
        {Name: "Verify: before confirmation -> 422", Run: func(ctx context.Context, r *Runner) Result {
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/verify", map[string]any{"code": "0000"})
            return expect(code, lat, err, http.StatusUnprocessableEntity)
        }},
        {Name: "Mirror: Redis snapshot present", Run: redisMirrored},
        {Name: "Mirror: Postgres row present", Run: postgresMirrored},

        {Name: "Selection: status after bidding window", Run: func(ctx context.Context, r *Runner) Result {
            if !r.cfg.WaitWindows {
                return Result{Status: "SKIP", Note: "wait-windows=false"}
            }
            if err := r.waitPhase(ctx, "selection_active", 70*time.Second); err != nil {
                return Result{Status: "FAIL", Note: err.Error()}
            }
            return Result{Status: "PASS"}
        }},
        {Name: "Selection: concurrent accept, one winner", Run: concurrentAccept},
        {Name: "Handshake: verify start code", Run: func(ctx context.Context, r *Runner) Result {
            if r.startCode == "" {
                return Result{Status: "SKIP", Note: "no confirmed auction"}
            }
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/verify", map[string]any{"code": r.startCode})
            return expect(code, lat, err, http.StatusOK)
        }},
        {Name: "Handshake: reuse -> 422", Run: func(ctx context.Context, r *Runner) Result {
            if r.startCode == "" {
                return Result{Status: "SKIP", Note: "no confirmed auction"}
            }
            code, _, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/verify", map[string]any{"code": r.startCode})
            return expect(code, lat, err, http.StatusUnprocessableEntity)
        }},

        {Name: "Perf: bid throughput", Run: bidLoad},
    }
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, []byte, time.Duration, error) {
    var reader io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil {
            return 0, nil, 0, err
        }
        reader = strings.NewReader(string(b))
    }
    req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
    if err != nil {
        return 0, nil, 0, err
    }
    req.Header.Set("Content-Type", "application/json")
    start := time.Now()
    resp, err := r.httpc.Do(req)
    if err != nil {
        return 0, nil, 0, err
    }
    defer resp.Body.Close()
    out, err := io.ReadAll(resp.Body)
    return resp.StatusCode, out, time.Since(start), err
}

func expect(code int, lat time.Duration, err error, want int) Result {
    if err != nil {
        return Result{Status: "FAIL", Note: err.Error()}
    }
    if code == http.StatusNotFound || code == http.StatusNotImplemented {
        if want != code {
            return Result{Status: "PENDING", Latency: lat, Note: fmt.Sprintf("status=%d", code)}
        }
    }
    if code != want {
        return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d want=%d", code, want)}
    }
    return Result{Status: "PASS", Latency: lat, Note: fmt.Sprintf("status=%d", code)}
}

func (r *Runner) submitBid(ctx context.Context, driver, amount string) Result {
    code, body, lat, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/bids", map[string]any{
        "driver_id": driver,
        "amount":    amount,
    })
    res := expect(code, lat, err, http.StatusCreated)
    if res.Status != "PASS" {
        return res
    }
    var out struct {
        Bid struct {
            ID string `json:"id"`
        } `json:"bid"`
    }
    if err := json.Unmarshal(body, &out); err != nil {
        return Result{Status: "FAIL", Latency: lat, Note: err.Error()}
    }
    r.bidIDs = append(r.bidIDs, out.Bid.ID)
    return res
}

func (r *Runner) waitPhase(ctx context.Context, phase string, limit time.Duration) error {
    deadline := time.Now().Add(limit)
    for time.Now().Before(deadline) {
        _, body, _, err := r.call(ctx, http.MethodGet, "/api/auctions/"+r.auctionID+"/status", nil)
        if err != nil {
            return err
        }
        var st struct {
            Phase string `json:"phase"`
        }
        if err := json.Unmarshal(body, &st); err == nil && st.Phase == phase {
            return nil
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Second):
        }
    }
    return fmt.Errorf("auction never reached %s", phase)
}

func pingDB(ctx context.Context, r *Runner) Result {
    if r.db == nil {
        return Result{Status: "SKIP", Note: "db not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()
    if err := r.db.Ping(ctx); err != nil {
        return Result{Status: "FAIL", Note: err.Error()}
    }
    return Result{Status: "PASS"}
}

func pingRedis(ctx context.Context, r *Runner) Result {
    if r.redis == nil {
        return Result{Status: "SKIP", Note: "redis not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()
    if err := r.redis.Ping(ctx).Err(); err != nil {
        return Result{Status: "FAIL", Note: err.Error()}
    }
    return Result{Status: "PASS"}
}

func applyMigration(ctx context.Context, r *Runner) Result {
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
    for _, s := range infra.SplitSQL(infra.StripSQLComments(string(sql))) {
        if _, err := r.db.Exec(ctx, s); err != nil {
            return Result{Status: "FAIL", Note: err.Error()}
        }
    }
    return Result{Status: "PASS"}
}

func tablesExist(ctx context.Context, r *Runner) Result {
    if r.db == nil {
        return Result{Status: "SKIP", Note: "db not configured"}
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
    return Result{Status: "PASS", Note: fmt.Sprintf("tables=%d", len(tables))}
}

// mirror writes are asynchronous, so both mirror checks poll briefly
func redisMirrored(ctx context.Context, r *Runner) Result {
    if r.redis == nil {
        return Result{Status: "SKIP", Note: "redis not configured"}
    }
    key := "auction:" + r.auctionID
    for i := 0; i < 20; i++ {
        n, err := r.redis.Exists(ctx, key).Result()
        if err != nil {
            return Result{Status: "FAIL", Note: err.Error()}
        }
        if n == 1 {
            bids, _ := r.redis.LLen(ctx, key+":bids").Result()
            return Result{Status: "PASS", Note: fmt.Sprintf("bids=%d", bids)}
        }
        time.Sleep(100 * time.Millisecond)
    }
    return Result{Status: "FAIL", Note: "snapshot not mirrored: " + key}
}

func postgresMirrored(ctx context.Context, r *Runner) Result {
    if r.db == nil {
        return Result{Status: "SKIP", Note: "db not configured"}
    }
    for i := 0; i < 20; i++ {
        var bids int
        err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM auction_bids WHERE auction_id = $1`, r.auctionID).Scan(&bids)
        if err != nil {
            return Result{Status: "FAIL", Note: err.Error()}
        }
        if bids == len(r.bidIDs) && bids > 0 {
            return Result{Status: "PASS", Note: fmt.Sprintf("bids=%d", bids)}
        }
        time.Sleep(100 * time.Millisecond)
    }
    return Result{Status: "FAIL", Note: "bids not mirrored"}
}

func concurrentAccept(ctx context.Context, r *Runner) Result {
    if !r.cfg.WaitWindows {
        return Result{Status: "SKIP", Note: "wait-windows=false"}
    }
    if len(r.bidIDs) == 0 {
        return Result{Status: "FAIL", Note: "no bids to accept"}
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
            bidID := r.bidIDs[i%len(r.bidIDs)]
            code, body, _, err := r.call(ctx, http.MethodPost, "/api/auctions/"+r.auctionID+"/accept", map[string]any{"bid_id": bidID})
            if err != nil || code != http.StatusOK {
                return
            }
            var out struct {
                StartCode string `json:"start_code"`
            }
            _ = json.Unmarshal(body, &out)
            mu.Lock()
            succ++
            r.startCode = out.StartCode
            mu.Unlock()
        }(i)
    }
    wg.Wait()

    if succ == 1 {
        return Result{Status: "PASS", Note: "success=1"}
    }
    return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

// bidLoad floods one fresh auction with bids for cfg.Duration, capped at the
// bidding window.
func bidLoad(ctx context.Context, r *Runner) Result {
    id := "bench-load-" + uuid.NewString()
    code, _, _, err := r.call(ctx, http.MethodPost, "/api/auctions", map[string]any{"auction_id": id})
    if err != nil || code != http.StatusCreated {
        return Result{Status: "FAIL", Note: fmt.Sprintf("register status=%d err=%v", code, err)}
    }

    duration := r.cfg.Duration
    if duration > 55*time.Second {
        duration = 55 * time.Second
    }
    end := time.Now().Add(duration)
    var count, errCount atomic.Int64
    wg := sync.WaitGroup{}

    for i := 0; i < r.cfg.Concurrency; i++ {
        wg.Add(1)
        go func(worker int) {
            defer wg.Done()
            driver := fmt.Sprintf("bench-driver-%d", worker)
            for time.Now().Before(end) {
                code, _, _, err := r.call(ctx, http.MethodPost, "/api/auctions/"+id+"/bids", map[string]any{
                    "driver_id": driver,
                    "amount":    fmt.Sprintf("%d", 100+worker),
                })
                if err != nil || code != http.StatusCreated {
                    errCount.Add(1)
                    continue
                }
                count.Add(1)
            }
        }(i)
    }
    wg.Wait()

    if count.Load() == 0 {
        return Result{Status: "FAIL", Note: "no bids accepted"}
    }
    rps := float64(count.Load()) / duration.Seconds()
    return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
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

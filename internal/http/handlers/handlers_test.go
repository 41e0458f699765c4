// README: Handler tests over a real engine with a fake clock and in-memory rides.
package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebid/internal/clock"
	"ridebid/internal/config"
	"ridebid/internal/http/handlers"
	"ridebid/internal/modules/auction"
	"ridebid/internal/modules/handshake"
	"ridebid/internal/modules/ride"
)

var t0 = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type fixedRand struct{}

func (fixedRand) Intn(n int) int { return 421 % n }

type testEnv struct {
	router  *gin.Engine
	clock   *clock.Fake
	auction *auction.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := clock.NewFake(t0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rides := ride.NewService(ride.NewMemStore(), clk, log)
	svc := auction.NewService(auction.Deps{
		Clock:    clk,
		Codes:    handshake.NewIssuer(fixedRand{}),
		Notifier: rides,
		Starter:  rides,
		Logger:   log,
	}, config.AuctionConfig{DispatchWorkers: 1, DispatchQueue: 16})
	t.Cleanup(svc.Close)

	r := gin.New()
	ah := handlers.NewAuctionHandler(svc)
	r.POST("/api/auctions", ah.Register)
	r.GET("/api/auctions/open", ah.ListOpen)
	r.GET("/api/auctions/:id", ah.Get)
	r.GET("/api/auctions/:id/status", ah.Status)
	r.POST("/api/auctions/:id/bids", ah.SubmitBid)
	r.GET("/api/auctions/:id/bids", ah.ListBids)
	r.POST("/api/auctions/:id/accept", ah.Accept)
	r.POST("/api/auctions/:id/verify", ah.Verify)
	rh := handlers.NewRideHandler(rides)
	r.GET("/api/rides/:id", rh.Get)
	r.POST("/api/rides/:id/complete", rh.Complete)
	r.POST("/api/rides/:id/cancel", rh.Cancel)
	return &testEnv{router: r, clock: clk, auction: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (e *testEnv) bid(t *testing.T, auctionID, driver, amount string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/auctions/"+auctionID+"/bids", map[string]any{
		"driver_id": driver,
		"amount":    amount,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["bid"].(map[string]any)["id"].(string)
}

func TestAuctionFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, http.MethodPost, "/api/auctions", map[string]any{
		"auction_id": "ride1",
		"meta":       map[string]string{"customer_id": "c1"},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "bidding_active", body["phase"])

	code, _ = e.do(t, http.MethodPost, "/api/auctions", map[string]any{"auction_id": "ride1"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = e.do(t, http.MethodGet, "/api/auctions/open", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["auctions"], 1)

	e.clock.Set(t0.Add(10 * time.Second))
	e.bid(t, "ride1", "driverA", "200")
	e.clock.Set(t0.Add(55 * time.Second))
	bidB := e.bid(t, "ride1", "driverB", "150.5")

	e.clock.Set(t0.Add(61 * time.Second))
	code, body = e.do(t, http.MethodPost, "/api/auctions/ride1/bids", map[string]any{"driver_id": "driverC", "amount": 100})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["accepted"])

	code, body = e.do(t, http.MethodGet, "/api/auctions/ride1/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "selection_active", body["phase"])
	assert.Equal(t, float64(2), body["bid_count"])
	assert.Equal(t, float64(14), body["selection_seconds_left"])

	code, body = e.do(t, http.MethodGet, "/api/auctions/ride1/bids", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["bids"], 2)

	e.clock.Set(t0.Add(65 * time.Second))
	code, body = e.do(t, http.MethodPost, "/api/auctions/ride1/accept", map[string]any{"bid_id": bidB})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0421", body["start_code"])

	code, _ = e.do(t, http.MethodPost, "/api/auctions/ride1/accept", map[string]any{"bid_id": bidB})
	assert.Equal(t, http.StatusConflict, code)

	e.auction.Flush()
	code, body = e.do(t, http.MethodGet, "/api/rides/ride1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "driverB", body["driver_id"])

	e.clock.Set(t0.Add(70 * time.Second))
	code, body = e.do(t, http.MethodPost, "/api/auctions/ride1/verify", map[string]any{"code": "0000"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "code_mismatch", body["code"])

	code, body = e.do(t, http.MethodPost, "/api/auctions/ride1/verify", map[string]any{"code": "0421"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["verified"])

	code, body = e.do(t, http.MethodPost, "/api/auctions/ride1/verify", map[string]any{"code": "0421"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "code_already_used", body["code"])

	e.auction.Flush()
	code, body = e.do(t, http.MethodGet, "/api/rides/ride1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", body["status"])

	code, _ = e.do(t, http.MethodPost, "/api/rides/ride1/cancel", map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusConflict, code)
	code, body = e.do(t, http.MethodPost, "/api/rides/ride1/complete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
}

func TestAuctionHandlerErrors(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/auctions", map[string]any{"auction_id": "r2"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(t, http.MethodPost, "/api/auctions", map[string]any{"auction_id": "r3"})
	require.Equal(t, http.StatusCreated, code)
	e.bid(t, "r3", "d0", "120")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown auction", http.MethodGet, "/api/auctions/nope", nil, http.StatusNotFound},
		{"invalid id", http.MethodGet, "/api/auctions/bad%20id/status", nil, http.StatusBadRequest},
		{"bad auction id on create", http.MethodPost, "/api/auctions", map[string]any{"auction_id": "a b"}, http.StatusBadRequest},
		{"missing driver", http.MethodPost, "/api/auctions/r2/bids", map[string]any{"amount": "10"}, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/api/auctions/r2/bids", map[string]any{"driver_id": "d1", "amount": "0"}, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/auctions/r2/bids", map[string]any{"driver_id": "d1", "amount": "ten"}, http.StatusBadRequest},
		{"mixed currency", http.MethodPost, "/api/auctions/r3/bids", map[string]any{"driver_id": "d1", "amount": "100", "currency": "USD"}, http.StatusBadRequest},
		{"accept without bid id", http.MethodPost, "/api/auctions/r2/accept", map[string]any{}, http.StatusBadRequest},
		{"accept unknown bid", http.MethodPost, "/api/auctions/r2/accept", map[string]any{"bid_id": "zzz"}, http.StatusNotFound},
		{"verify before confirmation", http.MethodPost, "/api/auctions/r2/verify", map[string]any{"code": "0421"}, http.StatusUnprocessableEntity},
		{"verify unknown auction", http.MethodPost, "/api/auctions/nope/verify", map[string]any{"code": "0421"}, http.StatusUnprocessableEntity},
		{"unknown ride", http.MethodGet, "/api/rides/nope", nil, http.StatusNotFound},
		{"cancel without reason", http.MethodPost, "/api/rides/nope/cancel", map[string]any{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := e.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, code, body)
		})
	}
}

func TestAcceptBeforeSelectionOpens(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/auctions", map[string]any{"auction_id": "r3"})
	require.Equal(t, http.StatusCreated, code)
	e.clock.Set(t0.Add(5 * time.Second))
	bid := e.bid(t, "r3", "d1", "120")

	code, body := e.do(t, http.MethodPost, "/api/auctions/r3/accept", map[string]any{"bid_id": bid})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, auction.ErrSelectionNotOpen.Error(), body["error"])
}

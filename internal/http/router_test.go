// README: Router wiring tests (health, middleware, route table).
package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ridebid/internal/config"
	httpmiddleware "ridebid/internal/http/middleware"
	"ridebid/internal/modules/auction"
	"ridebid/internal/modules/ride"
)

func TestRouterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := auction.NewService(auction.Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, config.Default().Auction)
	t.Cleanup(svc.Close)
	r := NewRouter(RouterDeps{
		Auction: svc,
		Ride:    ride.NewService(ride.NewMemStore(), nil, nil),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/auctions",
		"GET /api/auctions/open",
		"GET /api/auctions/:id",
		"GET /api/auctions/:id/status",
		"POST /api/auctions/:id/bids",
		"GET /api/auctions/:id/bids",
		"POST /api/auctions/:id/accept",
		"POST /api/auctions/:id/verify",
		"GET /api/rides/:id",
		"POST /api/rides/:id/complete",
		"POST /api/rides/:id/cancel",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestRecoveryAndLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(httpmiddleware.Recovery(log), httpmiddleware.Logging(log))
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	r.GET("/ok/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "handler panicked")

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok/a1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, buf.String(), `"path":"/ok/:id"`)
	assert.Contains(t, buf.String(), `"id":"a1"`)
}

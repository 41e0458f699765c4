// README: Shared test doubles for the auction engine (fake clock, recording collaborators).
package auction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ridebid/internal/clock"
	"ridebid/internal/config"
	"ridebid/internal/modules/handshake"
	"ridebid/internal/types"
)

var t0 = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func money(v int64) types.Money {
	return types.NewMoney(decimal.NewFromInt(v), "TWD")
}

// fixedRand always draws the same number, so every code is predictable.
type fixedRand struct{ n int }

func (f fixedRand) Intn(n int) int { return f.n % n }

type recordingMirror struct {
	mu       sync.Mutex
	persists []Auction
	purges   []types.ID
	fail     error
}

func (m *recordingMirror) PersistAuctionState(_ context.Context, a Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persists = append(m.persists, a)
	return m.fail
}

func (m *recordingMirror) PurgeMirroredState(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purges = append(m.purges, id)
	return m.fail
}

func (m *recordingMirror) purgeCount(id types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.purges {
		if p == id {
			n++
		}
	}
	return n
}

func (m *recordingMirror) lastPhase(id types.ID) (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.persists) - 1; i >= 0; i-- {
		if m.persists[i].ID == id {
			return m.persists[i].Phase, true
		}
	}
	return "", false
}

type notification struct {
	auction Auction
	code    string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notification
	panic bool
}

func (n *recordingNotifier) NotifyPartiesOfConfirmation(_ context.Context, a Auction, code string) error {
	if n.panic {
		panic("notifier down")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{auction: a, code: code})
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification, len(n.sent))
	copy(out, n.sent)
	return out
}

type startCall struct {
	auctionID, driverID types.ID
	at                  time.Time
}

type recordingStarter struct {
	mu    sync.Mutex
	calls []startCall
}

func (r *recordingStarter) StartRide(_ context.Context, auctionID, driverID types.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, startCall{auctionID: auctionID, driverID: driverID, at: at})
	return nil
}

func (r *recordingStarter) all() []startCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]startCall, len(r.calls))
	copy(out, r.calls)
	return out
}

type harness struct {
	svc      *Service
	clock    *clock.Fake
	mirror   *recordingMirror
	notifier *recordingNotifier
	starter  *recordingStarter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewFake(t0),
		mirror:   &recordingMirror{},
		notifier: &recordingNotifier{},
		starter:  &recordingStarter{},
	}
	h.svc = NewService(Deps{
		Clock:    h.clock,
		Codes:    handshake.NewIssuer(fixedRand{n: 421}),
		Mirror:   h.mirror,
		Notifier: h.notifier,
		Starter:  h.starter,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, config.AuctionConfig{
		SweepInterval:       10 * time.Millisecond,
		CollaboratorTimeout: time.Second,
		DispatchWorkers:     2,
		DispatchQueue:       128,
	})
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) register(t *testing.T, id types.ID) Auction {
	t.Helper()
	a, err := h.svc.RegisterAuction(context.Background(), id, Meta{"customer_id": "c1"})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return a
}

func (h *harness) bid(t *testing.T, id types.ID, sec float64, driver types.ID, amount int64) (Bid, bool) {
	t.Helper()
	h.clock.Set(at(sec))
	b, ok, err := h.svc.SubmitBid(context.Background(), id, BidInput{DriverID: driver, Amount: money(amount)})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return b, ok
}

var errMirrorDown = errors.New("mirror down")

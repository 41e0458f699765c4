// README: Bid ledger tests (window closure, phase gate, ordering).
package auction

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ridebid/internal/types"
)

func TestAddBidWithinWindow(t *testing.T) {
	a := newAuction("a1", nil, t0)
	for i, sec := range []float64{0, 10, 59.999, 60} {
		ok := AddBid(a, Bid{ID: idf("b%d", i), Amount: money(100), SubmittedAt: at(sec)}, at(sec))
		assert.True(t, ok, "bid at t=%v", sec)
	}
	assert.Len(t, a.Bids, 4)
	for i, b := range a.Bids {
		assert.Equal(t, idf("b%d", i), b.ID, "insertion order is submission order")
	}
}

// TestAddBidWindowClosure: any bid after the bidding deadline is refused and
// leaves the ledger untouched.
func TestAddBidWindowClosure(t *testing.T) {
	late := []time.Time{
		at(60).Add(time.Nanosecond),
		at(61),
		at(75),
		at(3600),
	}
	for _, now := range late {
		a := newAuction("a1", nil, t0)
		AddBid(a, Bid{ID: "early", Amount: money(100), SubmittedAt: at(1)}, at(1))
		before := len(a.Bids)

		ok := AddBid(a, Bid{ID: "late", Amount: money(1), SubmittedAt: now}, now)
		assert.False(t, ok, "bid at %s", now.Sub(t0))
		assert.Len(t, a.Bids, before)
	}
}

func TestAddBidOutOfPhase(t *testing.T) {
	for _, p := range []Phase{PhaseSelectionActive, PhaseConfirmed, PhaseExpired} {
		a := newAuction("a1", nil, t0)
		a.Phase = p
		assert.False(t, AddBid(a, Bid{ID: "b1", Amount: money(100)}, at(1)), "phase %s", p)
		assert.Empty(t, a.Bids)
	}
}

func TestFindBid(t *testing.T) {
	a := newAuction("a1", nil, t0)
	AddBid(a, Bid{ID: "b1", Amount: money(100)}, at(1))

	b, ok := findBid(a, "b1")
	assert.True(t, ok)
	assert.Equal(t, "b1", string(b.ID))

	_, ok = findBid(a, "nope")
	assert.False(t, ok)
}

func idf(format string, args ...any) types.ID {
	return types.ID(fmt.Sprintf(format, args...))
}

// README: Deadline evaluator; maps an auction and the current time to its phase.
package auction

import (
	"fmt"
	"time"
)

// DerivePhase is pure: it never mutates a.
func DerivePhase(a *Auction, now time.Time) Phase {
	mustHaveDeadlines(a)
	if a.Phase.Terminal() {
		return a.Phase
	}

	var derived Phase
	switch {
	case !now.After(a.BiddingDeadline):
		derived = PhaseBiddingActive
	case !now.After(a.SelectionDeadline):
		if len(a.Bids) > 0 {
			derived = PhaseSelectionActive
		} else {
			derived = PhaseExpired
		}
	default:
		derived = PhaseExpired
	}

	// a stored phase is never undone by an earlier reading of the clock
	if derived.rank() < a.Phase.rank() {
		return a.Phase
	}
	return derived
}

// writeBack stores p on a if it is the same phase or a legal next step.
// Reports whether the stored phase changed.
func (a *Auction) writeBack(p Phase) bool {
	if a.Phase == p {
		return false
	}
	if !CanTransition(a.Phase, p) {
		return false
	}
	a.Phase = p
	return true
}

// ValidBids returns the bids a customer may still choose from.
func ValidBids(a *Auction) []Bid {
	switch a.Phase {
	case PhaseBiddingActive, PhaseSelectionActive:
		out := make([]Bid, len(a.Bids))
		copy(out, a.Bids)
		return out
	}
	return []Bid{}
}

func mustHaveDeadlines(a *Auction) {
	if a.BiddingDeadline.IsZero() || a.SelectionDeadline.IsZero() {
		panic(fmt.Sprintf("auction %s: missing deadlines", a.ID))
	}
	if a.SelectionDeadline.Before(a.BiddingDeadline) {
		panic(fmt.Sprintf("auction %s: selection deadline before bidding deadline", a.ID))
	}
}

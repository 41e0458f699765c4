// README: Selection resolver; manual acceptance and the timeout auto-selection policy.
package auction

import (
	"fmt"
	"sort"
	"time"

	"ridebid/internal/types"
)

// acceptBid validates a customer's choice and confirms it on a.
func acceptBid(a *Auction, bidID types.ID, now time.Time) (Bid, error) {
	if a.Phase == PhaseConfirmed {
		return Bid{}, ErrAlreadyConfirmed
	}
	if now.After(a.SelectionDeadline) {
		return Bid{}, ErrSelectionWindowClosed
	}
	bid, ok := findBid(a, bidID)
	if !ok {
		return Bid{}, ErrBidNotFound
	}
	if a.Phase != PhaseSelectionActive {
		return Bid{}, ErrSelectionNotOpen
	}
	confirm(a, bid)
	return bid, nil
}

// autoSelectDue reports whether the selection window lapsed with bids on the
// table and nobody chose one.
func autoSelectDue(a *Auction, now time.Time) bool {
	if a.Phase != PhaseBiddingActive && a.Phase != PhaseSelectionActive {
		return false
	}
	return now.After(a.SelectionDeadline) && len(a.Bids) > 0
}

// autoSelect confirms the winning bid on a. Callers check autoSelectDue first.
func autoSelect(a *Auction) Bid {
	if a.Phase == PhaseBiddingActive {
		a.writeBack(PhaseSelectionActive)
	}
	bid, ok := pickWinner(a.Bids)
	if !ok {
		panic(fmt.Sprintf("auction %s: auto-selection without bids", a.ID))
	}
	confirm(a, bid)
	return bid
}

// pickWinner chooses the lowest amount; ties go to the earliest submission,
// then to the smallest bid id.
func pickWinner(bids []Bid) (Bid, bool) {
	if len(bids) == 0 {
		return Bid{}, false
	}
	ranked := make([]Bid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Amount.Cmp(ranked[j].Amount); c != 0 {
			return c < 0
		}
		if !ranked[i].SubmittedAt.Equal(ranked[j].SubmittedAt) {
			return ranked[i].SubmittedAt.Before(ranked[j].SubmittedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked[0], true
}

// confirm is the single transition into PhaseConfirmed.
func confirm(a *Auction, bid Bid) {
	if !CanTransition(a.Phase, PhaseConfirmed) {
		panic(fmt.Sprintf("auction %s: confirm from %s", a.ID, a.Phase))
	}
	if a.AcceptedBid != nil {
		panic(fmt.Sprintf("auction %s: accepted bid already set", a.ID))
	}
	b := bid
	a.AcceptedBid = &b
	a.Phase = PhaseConfirmed
}

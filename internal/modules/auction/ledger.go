// README: Bid ledger; append-only offers accepted only while bidding is open.
package auction

import (
	"time"

	"ridebid/internal/types"
)

// AddBid appends b and reports true only while a is bidding_active and now is
// within the bidding window. Late bids are dropped without error.
func AddBid(a *Auction, b Bid, now time.Time) bool {
	if a.Phase != PhaseBiddingActive {
		return false
	}
	if now.After(a.BiddingDeadline) {
		return false
	}
	a.Bids = append(a.Bids, b)
	return true
}

func findBid(a *Auction, id types.ID) (Bid, bool) {
	for _, b := range a.Bids {
		if b.ID == id {
			return b, true
		}
	}
	return Bid{}, false
}

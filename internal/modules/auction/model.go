// README: Auction aggregate, bids and the phase flow.
package auction

import (
	"time"

	"ridebid/internal/types"
)

type Phase string

const (
	PhaseBiddingActive   Phase = "bidding_active"
	PhaseSelectionActive Phase = "selection_active"
	PhaseConfirmed       Phase = "confirmed"
	PhaseExpired         Phase = "expired"
)

const (
	BiddingWindow   = 60 * time.Second
	SelectionWindow = 15 * time.Second
)

func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseExpired
}

// rank orders phases along the flow; terminal phases share the top rank.
func (p Phase) rank() int {
	switch p {
	case PhaseBiddingActive:
		return 0
	case PhaseSelectionActive:
		return 1
	case PhaseConfirmed, PhaseExpired:
		return 2
	}
	return -1
}

// Meta is caller data carried with an auction or bid; the engine never reads it.
type Meta map[string]string

type Bid struct {
	ID          types.ID    `json:"id"`
	AuctionID   types.ID    `json:"auction_id"`
	DriverID    types.ID    `json:"driver_id"`
	Amount      types.Money `json:"amount"`
	DriverMeta  Meta        `json:"driver_meta,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

type Auction struct {
	ID                types.ID  `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	BiddingDeadline   time.Time `json:"bidding_deadline"`
	SelectionDeadline time.Time `json:"selection_deadline"`
	Phase             Phase     `json:"phase"`
	Bids              []Bid     `json:"bids"`
	AcceptedBid       *Bid      `json:"accepted_bid,omitempty"`
	Meta              Meta      `json:"meta,omitempty"`
}

func newAuction(id types.ID, meta Meta, now time.Time) *Auction {
	bidding := now.Add(BiddingWindow)
	return &Auction{
		ID:                id,
		CreatedAt:         now,
		BiddingDeadline:   bidding,
		SelectionDeadline: bidding.Add(SelectionWindow),
		Phase:             PhaseBiddingActive,
		Bids:              []Bid{},
		Meta:              meta,
	}
}

// Snapshot copies the mutable parts of a so it can leave the auction's lock.
// Bids are immutable once stored, so their maps are shared.
func (a *Auction) Snapshot() Auction {
	cp := *a
	cp.Bids = make([]Bid, len(a.Bids))
	copy(cp.Bids, a.Bids)
	if a.AcceptedBid != nil {
		b := *a.AcceptedBid
		cp.AcceptedBid = &b
	}
	return cp
}

// AllowedTransitions represents the auction phase flow as code.
var AllowedTransitions = map[Phase][]Phase{
	PhaseBiddingActive:   {PhaseSelectionActive, PhaseExpired},
	PhaseSelectionActive: {PhaseConfirmed, PhaseExpired},
}

func CanTransition(from, to Phase) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, p := range next {
		if p == to {
			return true
		}
	}
	return false
}

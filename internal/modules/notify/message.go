// README: Confirmation event payload shared by every notifier.
package notify

import (
	"time"

	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

// ConfirmationMessage tells customer and driver who won and which code
// starts the trip.
type ConfirmationMessage struct {
	AuctionID   types.ID     `json:"auction_id"`
	BidID       types.ID     `json:"bid_id"`
	DriverID    types.ID     `json:"driver_id"`
	Amount      types.Money  `json:"amount"`
	StartCode   string       `json:"start_code"`
	Meta        auction.Meta `json:"meta,omitempty"`
	ConfirmedAt time.Time    `json:"confirmed_at"`
}

// NewConfirmationMessage builds the payload for a confirmed auction.
func NewConfirmationMessage(a auction.Auction, code string, now time.Time) (ConfirmationMessage, error) {
	if a.AcceptedBid == nil {
		return ConfirmationMessage{}, ErrNotConfirmed
	}
	return ConfirmationMessage{
		AuctionID:   a.ID,
		BidID:       a.AcceptedBid.ID,
		DriverID:    a.AcceptedBid.DriverID,
		Amount:      a.AcceptedBid.Amount,
		StartCode:   code,
		Meta:        a.Meta,
		ConfirmedAt: now,
	}, nil
}

func RoutingKey(id types.ID) string {
	return "auction.confirmed." + string(id)
}

// README: Log-only notifier and fan-out over several notifiers.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"ridebid/internal/modules/auction"
)

// LogNotifier only writes the confirmation to the log. Used when no broker
// is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("module", "notify")}
}

func (n *LogNotifier) NotifyPartiesOfConfirmation(ctx context.Context, a auction.Auction, code string) error {
	if a.AcceptedBid == nil {
		return ErrNotConfirmed
	}
	n.log.InfoContext(ctx, "auction confirmed",
		"auction_id", a.ID,
		"bid_id", a.AcceptedBid.ID,
		"driver_id", a.AcceptedBid.DriverID,
		"amount", a.AcceptedBid.Amount.String(),
	)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []auction.Notifier

func (m Multi) NotifyPartiesOfConfirmation(ctx context.Context, a auction.Auction, code string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyPartiesOfConfirmation(ctx, a, code); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

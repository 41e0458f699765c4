// README: Fans one mirror call out to several mirrors.
package mirror

import (
	"context"
	"errors"

	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

// Fanout calls every mirror even when one fails and joins the errors.
type Fanout []auction.Mirror

func (f Fanout) PersistAuctionState(ctx context.Context, a auction.Auction) error {
	var errs []error
	for _, m := range f {
		if err := m.PersistAuctionState(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PurgeMirroredState(ctx context.Context, auctionID types.ID) error {
	var errs []error
	for _, m := range f {
		if err := m.PurgeMirroredState(ctx, auctionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// README: Cleanup sweeper; settles every auction on a ticker and evicts the finished ones.
package auction

import (
	"context"
	"time"

	"ridebid/internal/modules/handshake"
	"ridebid/internal/types"
)

type SweepReport struct {
	Scanned      int
	Settled      int
	AutoSelected int
	Evicted      int
}

// RunSweeper calls Sweep every SweepInterval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep := s.Sweep(ctx)
			if rep.Settled > 0 || rep.Evicted > 0 {
				s.log.InfoContext(ctx, "sweep finished",
					"scanned", rep.Scanned, "settled", rep.Settled,
					"auto_selected", rep.AutoSelected, "evicted", rep.Evicted)
			}
		}
	}
}

// Sweep is one sweeper tick. Each auction is settled (phase write-back and
// auto-selection) and, once finished, evicted under the same lock hold.
func (s *Service) Sweep(ctx context.Context) SweepReport {
	var rep SweepReport
	for _, id := range s.registry.IDs() {
		rep.Scanned++
		var (
			out     outcome
			removed *handshake.Record
			evicted bool
		)
		err := s.registry.With(id, func(e *Entry) error {
			now := s.clock.Now()
			out = s.settle(e, now)
			if finished(e, now) {
				removed = e.Code
				s.registry.removeLocked(id, e)
				evicted = true
			}
			return nil
		})
		if err != nil {
			// evicted by a concurrent caller between IDs() and With
			continue
		}
		s.apply(out)
		if out.persist != nil {
			rep.Settled++
		}
		if out.auto {
			rep.AutoSelected++
		}
		if evicted {
			rep.Evicted++
			s.evicted(ctx, id, removed)
		}
	}
	return rep
}

// finished reports whether e can leave the registry: expired, or confirmed
// with its start code used or timed out.
func finished(e *Entry, now time.Time) bool {
	switch e.Auction.Phase {
	case PhaseExpired:
		return true
	case PhaseConfirmed:
		return e.Code == nil || e.Code.Settled(now)
	}
	return false
}

// Registered reports whether id is still held by the registry.
func (s *Service) Registered(id types.ID) bool {
	_, err := s.registry.Get(id)
	return err == nil
}

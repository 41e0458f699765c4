// README: Ride service; opens rides on auction confirmation and drives their status.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridebid/internal/clock"
	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

var (
	ErrInvalidState   = errors.New("invalid state transition")
	ErrNotFound       = errors.New("ride not found")
	ErrConflict       = errors.New("ride state conflict")
	ErrDuplicate      = errors.New("ride already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrDriverMismatch = errors.New("driver does not own this ride")
)

type Service struct {
	store Store
	clock clock.Clock
	log   *slog.Logger
}

func NewService(store Store, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, clock: clk, log: log.With("module", "ride")}
}

// NotifyPartiesOfConfirmation opens the ride for a confirmed auction. A
// repeated notification for the same auction is a no-op.
func (s *Service) NotifyPartiesOfConfirmation(ctx context.Context, a auction.Auction, _ string) error {
	if a.AcceptedBid == nil {
		return ErrBadRequest
	}
	r := &Ride{
		ID:         a.ID,
		CustomerID: types.ID(a.Meta["customer_id"]),
		DriverID:   a.AcceptedBid.DriverID,
		Fare:       a.AcceptedBid.Amount,
		Status:     StatusAccepted,
		CreatedAt:  s.clock.Now(),
	}
	err := s.store.Create(ctx, r)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "ride opened", "ride_id", r.ID, "driver_id", r.DriverID, "fare", r.Fare.String())
	return nil
}

// StartRide runs once the driver's start code was verified.
func (s *Service) StartRide(ctx context.Context, auctionID, driverID types.ID, at time.Time) error {
	r, err := s.store.Get(ctx, auctionID)
	if err != nil {
		return err
	}
	if r.DriverID != driverID {
		return ErrDriverMismatch
	}
	return s.transition(ctx, r, StatusInProgress, at, nil)
}

func (s *Service) Complete(ctx context.Context, id types.ID) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, r, StatusCompleted, s.clock.Now(), nil)
}

func (s *Service) Cancel(ctx context.Context, id types.ID, reason string) error {
	if reason == "" {
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, r, StatusCancelled, s.clock.Now(), &reason)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, r *Ride, to Status, at time.Time, reason *string) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, to, r.StatusVersion, at, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.log.InfoContext(ctx, "ride status changed", "ride_id", r.ID, "from", r.Status, "to", to)
	return nil
}

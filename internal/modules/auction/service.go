// README: Auction service; the engine's external operations and its collaborator hand-off.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ridebid/internal/clock"
	"ridebid/internal/config"
	"ridebid/internal/modules/handshake"
	"ridebid/internal/types"
)

var (
	ErrBadRequest            = errors.New("bad request")
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrDuplicateAuction      = errors.New("auction already registered")
	ErrBidNotFound           = errors.New("bid not found")
	ErrSelectionWindowClosed = errors.New("selection window closed")
	ErrSelectionNotOpen      = errors.New("selection window not open yet")
	ErrAlreadyConfirmed      = errors.New("auction already confirmed")
	ErrNotTerminal           = errors.New("auction not in a terminal phase")
	ErrCurrencyMismatch      = fmt.Errorf("%w: bid currency differs from earlier bids", ErrBadRequest)
)

// Mirror keeps an external copy of auction state. Both calls must be idempotent.
type Mirror interface {
	PersistAuctionState(ctx context.Context, a Auction) error
	PurgeMirroredState(ctx context.Context, auctionID types.ID) error
}

type Notifier interface {
	NotifyPartiesOfConfirmation(ctx context.Context, a Auction, code string) error
}

// RideStarter is told when a driver proved presence with the start code.
type RideStarter interface {
	StartRide(ctx context.Context, auctionID, driverID types.ID, at time.Time) error
}

type Deps struct {
	Clock    clock.Clock
	Codes    *handshake.Issuer
	Mirror   Mirror
	Notifier Notifier
	Starter  RideStarter
	Logger   *slog.Logger
}

type Service struct {
	registry *Registry
	codes    *handshake.Issuer
	clock    clock.Clock
	mirror   Mirror
	notifier Notifier
	starter  RideStarter
	log      *slog.Logger
	cfg      config.AuctionConfig
	dispatch *dispatcher
}

func NewService(deps Deps, cfg config.AuctionConfig) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Codes == nil {
		deps.Codes = handshake.NewIssuer(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 5 * time.Second
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 1
	}
	if cfg.DispatchQueue <= 0 {
		cfg.DispatchQueue = 64
	}
	log := deps.Logger.With("module", "auction")
	return &Service{
		registry: NewRegistry(),
		codes:    deps.Codes,
		clock:    deps.Clock,
		mirror:   deps.Mirror,
		notifier: deps.Notifier,
		starter:  deps.Starter,
		log:      log,
		cfg:      cfg,
		dispatch: newDispatcher(cfg.DispatchWorkers, cfg.DispatchQueue, cfg.CollaboratorTimeout, log),
	}
}

type BidInput struct {
	DriverID   types.ID
	Amount     types.Money
	DriverMeta Meta
}

type Status struct {
	AuctionID         types.ID      `json:"auction_id"`
	Phase             Phase         `json:"phase"`
	BiddingTimeLeft   time.Duration `json:"bidding_time_left"`
	SelectionTimeLeft time.Duration `json:"selection_time_left"`
	BidCount          int           `json:"bid_count"`
}

// Confirmation is the result of a successful acceptance.
type Confirmation struct {
	Auction Auction `json:"auction"`
	Code    string  `json:"code"`
}

// outcome collects collaborator work decided under an auction's lock and
// dispatched after it is released.
type outcome struct {
	persist   *Auction
	confirmed *Confirmation
	auto      bool
}

func (s *Service) RegisterAuction(ctx context.Context, id types.ID, meta Meta) (Auction, error) {
	if id == "" {
		id = types.NewID()
	}
	a, err := s.registry.Register(id, meta, s.clock.Now())
	if err != nil {
		return Auction{}, err
	}
	s.log.InfoContext(ctx, "auction registered", "auction_id", a.ID, "bidding_deadline", a.BiddingDeadline)
	s.apply(outcome{persist: &a})
	return a, nil
}

// SubmitBid returns accepted=false, without error, for bids that arrive
// after bidding closed.
func (s *Service) SubmitBid(ctx context.Context, auctionID types.ID, in BidInput) (Bid, bool, error) {
	if in.DriverID == "" || !in.Amount.IsPositive() {
		return Bid{}, false, ErrBadRequest
	}
	var (
		bid      Bid
		accepted bool
		mismatch bool
		out      outcome
	)
	err := s.registry.With(auctionID, func(e *Entry) error {
		now := s.clock.Now()
		out = s.settle(e, now)
		if len(e.Auction.Bids) > 0 && !e.Auction.Bids[0].Amount.SameCurrency(in.Amount) {
			mismatch = true
			return nil
		}
		bid = Bid{
			ID:          types.NewID(),
			AuctionID:   auctionID,
			DriverID:    in.DriverID,
			Amount:      in.Amount,
			DriverMeta:  in.DriverMeta,
			SubmittedAt: now,
		}
		accepted = AddBid(e.Auction, bid, now)
		if accepted {
			snap := e.Auction.Snapshot()
			out.persist = &snap
		}
		return nil
	})
	if err != nil {
		return Bid{}, false, err
	}
	s.apply(out)
	if mismatch {
		return Bid{}, false, ErrCurrencyMismatch
	}
	if !accepted {
		s.log.DebugContext(ctx, "late bid rejected", "auction_id", auctionID, "driver_id", in.DriverID)
		return Bid{}, false, nil
	}
	return bid, true, nil
}

func (s *Service) GetAuctionStatus(ctx context.Context, auctionID types.ID) (Status, error) {
	var st Status
	err := s.read(auctionID, func(a *Auction, now time.Time) {
		st = Status{
			AuctionID:         a.ID,
			Phase:             a.Phase,
			BiddingTimeLeft:   timeLeft(a.BiddingDeadline, now),
			SelectionTimeLeft: timeLeft(a.SelectionDeadline, now),
			BidCount:          len(a.Bids),
		}
	})
	return st, err
}

func (s *Service) GetValidBids(ctx context.Context, auctionID types.ID) ([]Bid, error) {
	var bids []Bid
	err := s.read(auctionID, func(a *Auction, _ time.Time) {
		bids = ValidBids(a)
	})
	return bids, err
}

func (s *Service) GetAuction(ctx context.Context, auctionID types.ID) (Auction, error) {
	var snap Auction
	err := s.read(auctionID, func(a *Auction, _ time.Time) {
		snap = a.Snapshot()
	})
	return snap, err
}

// ListOpenAuctions returns auctions still taking bids, oldest first.
func (s *Service) ListOpenAuctions(ctx context.Context) ([]Auction, error) {
	open := make([]Auction, 0)
	for _, id := range s.registry.IDs() {
		err := s.read(id, func(a *Auction, _ time.Time) {
			if a.Phase == PhaseBiddingActive {
				open = append(open, a.Snapshot())
			}
		})
		if err != nil && !errors.Is(err, ErrAuctionNotFound) {
			return nil, err
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

func (s *Service) AcceptBid(ctx context.Context, auctionID, bidID types.ID) (Confirmation, error) {
	var (
		conf Confirmation
		out  outcome
	)
	err := s.registry.With(auctionID, func(e *Entry) error {
		if e.Auction.Phase == PhaseConfirmed {
			return ErrAlreadyConfirmed
		}
		now := s.clock.Now()
		out = s.settle(e, now)
		if out.auto {
			return ErrSelectionWindowClosed
		}
		if _, err := acceptBid(e.Auction, bidID, now); err != nil {
			return err
		}
		conf = s.issueLocked(e, now)
		snap := conf.Auction
		out.persist = &snap
		out.confirmed = &conf
		return nil
	})
	s.apply(out)
	if err != nil {
		return Confirmation{}, err
	}
	s.log.InfoContext(ctx, "bid accepted", "auction_id", auctionID, "bid_id", bidID,
		"driver_id", conf.Auction.AcceptedBid.DriverID)
	return conf, nil
}

// VerifyStartCode checks a driver-entered code. On success the ride may start.
func (s *Service) VerifyStartCode(ctx context.Context, auctionID types.ID, code string) (bool, error) {
	var (
		driverID types.ID
		at       time.Time
		used     *handshake.Record
	)
	err := s.registry.With(auctionID, func(e *Entry) error {
		at = s.clock.Now()
		if err := handshake.Verify(e.Code, code, at); err != nil {
			return err
		}
		used = e.Code
		driverID = e.Auction.AcceptedBid.DriverID
		return nil
	})
	if errors.Is(err, ErrAuctionNotFound) {
		err = handshake.ErrNoActiveCode
	}
	if err != nil {
		s.log.InfoContext(ctx, "start code rejected", "auction_id", auctionID, "err", err)
		return false, err
	}
	s.codes.Release(used)
	s.log.InfoContext(ctx, "start code verified", "auction_id", auctionID, "driver_id", driverID)
	if s.starter != nil {
		s.dispatch.submit(job{name: "start_ride", auctionID: auctionID, run: func(ctx context.Context) error {
			return s.starter.StartRide(ctx, auctionID, driverID, at)
		}})
	}
	return true, nil
}

// Evict removes a terminal auction on demand. Repeated calls are no-ops and
// purge the mirrors only once.
func (s *Service) Evict(ctx context.Context, auctionID types.ID) error {
	err := s.read(auctionID, func(*Auction, time.Time) {})
	if errors.Is(err, ErrAuctionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e, err := s.registry.Evict(auctionID)
	if err != nil {
		return err
	}
	if e != nil {
		s.evicted(ctx, auctionID, e.Code)
	}
	return nil
}

// Flush waits for collaborator calls already handed off.
func (s *Service) Flush() {
	s.dispatch.flush()
}

// Close flushes and stops the collaborator workers. Stop RunSweeper first;
// calls made after Close are logged and dropped.
func (s *Service) Close() {
	s.dispatch.flush()
	s.dispatch.close()
}

// read settles the auction and runs fn on it under its lock.
func (s *Service) read(auctionID types.ID, fn func(a *Auction, now time.Time)) error {
	var out outcome
	err := s.registry.With(auctionID, func(e *Entry) error {
		now := s.clock.Now()
		out = s.settle(e, now)
		fn(e.Auction, now)
		return nil
	})
	s.apply(out)
	return err
}

// settle brings the stored phase up to date with now. A lapsed selection
// window with bids is resolved by auto-selection before the phase is written
// back, so no reader ever sees such an auction as expired. Caller holds e.mu.
func (s *Service) settle(e *Entry, now time.Time) outcome {
	a := e.Auction
	if autoSelectDue(a, now) {
		bid := autoSelect(a)
		conf := s.issueLocked(e, now)
		snap := conf.Auction
		s.log.Info("bid auto-selected", "auction_id", a.ID, "bid_id", bid.ID, "driver_id", bid.DriverID)
		return outcome{persist: &snap, confirmed: &conf, auto: true}
	}
	if a.writeBack(DerivePhase(a, now)) {
		snap := a.Snapshot()
		if a.Phase == PhaseExpired {
			s.log.Info("auction expired", "auction_id", a.ID, "bids", len(a.Bids))
		}
		return outcome{persist: &snap}
	}
	return outcome{}
}

// issueLocked creates the start code for a just-confirmed auction.
func (s *Service) issueLocked(e *Entry, now time.Time) Confirmation {
	if e.Code != nil && !e.Code.Settled(now) {
		panic("auction " + string(e.Auction.ID) + ": second unverified start code")
	}
	e.Code = s.codes.Issue(e.Auction.ID, now)
	return Confirmation{Auction: e.Auction.Snapshot(), Code: e.Code.Code}
}

func (s *Service) apply(out outcome) {
	if out.persist != nil && s.mirror != nil {
		snap := *out.persist
		s.dispatch.submit(job{name: "persist", auctionID: snap.ID, run: func(ctx context.Context) error {
			return s.mirror.PersistAuctionState(ctx, snap)
		}})
	}
	if out.confirmed != nil && s.notifier != nil {
		conf := *out.confirmed
		s.dispatch.submit(job{name: "notify_confirmation", auctionID: conf.Auction.ID, run: func(ctx context.Context) error {
			return s.notifier.NotifyPartiesOfConfirmation(ctx, conf.Auction, conf.Code)
		}})
	}
}

func (s *Service) evicted(ctx context.Context, auctionID types.ID, code *handshake.Record) {
	s.codes.Release(code)
	s.log.DebugContext(ctx, "auction evicted", "auction_id", auctionID)
	if s.mirror == nil {
		return
	}
	s.dispatch.submit(job{name: "purge", auctionID: auctionID, run: func(ctx context.Context) error {
		return s.mirror.PurgeMirroredState(ctx, auctionID)
	}})
}

func timeLeft(deadline, now time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

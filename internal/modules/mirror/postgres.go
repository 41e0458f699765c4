// README: Durable auction mirror in Postgres; auctions, bids, and a phase event log.
package mirror

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

type PostgresMirror struct {
	db *pgxpool.Pool
}

func NewPostgresMirror(db *pgxpool.Pool) *PostgresMirror {
	return &PostgresMirror{db: db}
}

// PersistAuctionState upserts the auction row and its bids and appends an
// auction_events row when the phase differs from the stored one.
func (m *PostgresMirror) PersistAuctionState(ctx context.Context, a auction.Auction) error {
	meta, err := json.Marshal(metaOrEmpty(a.Meta))
	if err != nil {
		return err
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var prev string
	err = tx.QueryRow(ctx, `SELECT phase FROM auctions WHERE id = $1 FOR UPDATE`, string(a.ID)).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var accepted *string
	if a.AcceptedBid != nil {
		v := string(a.AcceptedBid.ID)
		accepted = &v
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO auctions (
			id, phase, created_at, bidding_deadline, selection_deadline,
			accepted_bid_id, meta, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			accepted_bid_id = EXCLUDED.accepted_bid_id,
			meta = EXCLUDED.meta,
			updated_at = NOW()`,
		string(a.ID),
		string(a.Phase),
		a.CreatedAt,
		a.BiddingDeadline,
		a.SelectionDeadline,
		accepted,
		meta,
	)
	if err != nil {
		return err
	}

	if len(a.Bids) > 0 {
		batch := &pgx.Batch{}
		for _, b := range a.Bids {
			driverMeta, err := json.Marshal(metaOrEmpty(b.DriverMeta))
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO auction_bids (
					id, auction_id, driver_id, amount, currency, driver_meta, submitted_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING`,
				string(b.ID),
				string(a.ID),
				string(b.DriverID),
				b.Amount.Amount,
				b.Amount.Currency,
				driverMeta,
				b.SubmittedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	if prev != string(a.Phase) {
		var from *string
		if prev != "" {
			from = &prev
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO auction_events (auction_id, from_phase, to_phase)
			VALUES ($1, $2, $3)`,
			string(a.ID), from, string(a.Phase),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PurgeMirroredState drops the live rows. auction_events stays as history.
func (m *PostgresMirror) PurgeMirroredState(ctx context.Context, auctionID types.ID) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM auction_bids WHERE auction_id = $1`, string(auctionID)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, string(auctionID)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Event is one row of the phase history.
type Event struct {
	AuctionID types.ID
	FromPhase *auction.Phase
	ToPhase   auction.Phase
}

func (m *PostgresMirror) Events(ctx context.Context, auctionID types.ID) ([]Event, error) {
	rows, err := m.db.Query(ctx, `
		SELECT auction_id, from_phase, to_phase
		FROM auction_events
		WHERE auction_id = $1
		ORDER BY id`, string(auctionID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			id   string
			from *string
			to   string
		)
		if err := rows.Scan(&id, &from, &to); err != nil {
			return nil, err
		}
		e.AuctionID = types.ID(id)
		e.ToPhase = auction.Phase(to)
		if from != nil {
			p := auction.Phase(*from)
			e.FromPhase = &p
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func metaOrEmpty(m auction.Meta) auction.Meta {
	if m == nil {
		return auction.Meta{}
	}
	return m
}

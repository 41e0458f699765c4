// README: Live auction mirror in Redis; a JSON snapshot plus a bid list per auction.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

var ErrNotMirrored = errors.New("auction not mirrored")

const DefaultTTL = time.Hour

type RedisMirror struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisMirror{redis: client, ttl: ttl}
}

// PersistAuctionState overwrites both keys in one transaction, so a reader
// never sees a snapshot and bid list from different writes.
func (m *RedisMirror) PersistAuctionState(ctx context.Context, a auction.Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode auction %s: %w", a.ID, err)
	}
	bids := make([]interface{}, 0, len(a.Bids))
	for _, b := range a.Bids {
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bid %s: %w", b.ID, err)
		}
		bids = append(bids, raw)
	}

	pipe := m.redis.TxPipeline()
	pipe.Set(ctx, snapshotKey(a.ID), data, m.ttl)
	pipe.Del(ctx, bidsKey(a.ID))
	if len(bids) > 0 {
		pipe.RPush(ctx, bidsKey(a.ID), bids...)
		pipe.Expire(ctx, bidsKey(a.ID), m.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) PurgeMirroredState(ctx context.Context, auctionID types.ID) error {
	return m.redis.Del(ctx, snapshotKey(auctionID), bidsKey(auctionID)).Err()
}

// Load reads the mirrored snapshot back.
func (m *RedisMirror) Load(ctx context.Context, auctionID types.ID) (auction.Auction, error) {
	val, err := m.redis.Get(ctx, snapshotKey(auctionID)).Bytes()
	if err == redis.Nil {
		return auction.Auction{}, ErrNotMirrored
	}
	if err != nil {
		return auction.Auction{}, err
	}
	var a auction.Auction
	if err := json.Unmarshal(val, &a); err != nil {
		return auction.Auction{}, fmt.Errorf("decode auction %s: %w", auctionID, err)
	}
	return a, nil
}

// BidCount reports the length of the mirrored bid list.
func (m *RedisMirror) BidCount(ctx context.Context, auctionID types.ID) (int64, error) {
	return m.redis.LLen(ctx, bidsKey(auctionID)).Result()
}

func snapshotKey(id types.ID) string {
	return "auction:" + string(id)
}

func bidsKey(id types.ID) string {
	return "auction:" + string(id) + ":bids"
}

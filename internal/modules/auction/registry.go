// README: Auction registry; owns live auctions and their start codes behind per-auction locks.
package auction

import (
	"sort"
	"sync"
	"time"

	"ridebid/internal/modules/handshake"
	"ridebid/internal/types"
)

// Entry is one registry slot. Auction and Code are only touched under mu.
type Entry struct {
	mu      sync.Mutex
	Auction *Auction
	Code    *handshake.Record
	evicted bool
}

// Registry locks per auction id. The map lock is held only for lookup,
// insert and delete, and never while waiting for an entry lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[types.ID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.ID]*Entry)}
}

func (r *Registry) Register(id types.ID, meta Meta, now time.Time) (Auction, error) {
	if id == "" {
		return Auction{}, ErrBadRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return Auction{}, ErrDuplicateAuction
	}
	a := newAuction(id, meta, now)
	r.entries[id] = &Entry{Auction: a}
	return a.Snapshot(), nil
}

// Get returns the stored auction as is, without re-deriving its phase.
func (r *Registry) Get(id types.ID) (Auction, error) {
	var out Auction
	err := r.With(id, func(e *Entry) error {
		out = e.Auction.Snapshot()
		return nil
	})
	return out, err
}

// With runs fn while holding id's lock.
func (r *Registry) With(id types.ID, fn func(e *Entry) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrAuctionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return ErrAuctionNotFound
	}
	return fn(e)
}

// Evict removes a terminal auction with its code record and returns the
// removed entry. Evicting an absent id returns nil, nil.
func (r *Registry) Evict(id types.ID) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil, nil
	}
	if !e.Auction.Phase.Terminal() {
		return nil, ErrNotTerminal
	}
	r.removeLocked(id, e)
	return e, nil
}

// removeLocked drops e from the map. The caller holds e.mu.
func (r *Registry) removeLocked(id types.ID, e *Entry) {
	if !e.Auction.Phase.Terminal() {
		panic("auction " + string(id) + ": eviction before terminal phase")
	}
	e.evicted = true
	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()
}

// IDs returns the registered ids in a stable order.
func (r *Registry) IDs() []types.ID {
	r.mu.RLock()
	ids := make([]types.ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

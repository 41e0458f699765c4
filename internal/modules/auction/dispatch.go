// README: Asynchronous collaborator calls; per-auction FIFO on sharded workers, never blocking the engine.
package auction

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"ridebid/internal/types"
)

type job struct {
	name      string
	auctionID types.ID
	run       func(ctx context.Context) error
}

type dispatcher struct {
	queues  []chan job
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup

	// pending counts queued and running jobs; flush may race with submit
	pendMu   sync.Mutex
	pendDone *sync.Cond
	pending  int
}

func newDispatcher(workers, queue int, timeout time.Duration, log *slog.Logger) *dispatcher {
	d := &dispatcher{
		queues:  make([]chan job, workers),
		timeout: timeout,
		log:     log,
	}
	d.pendDone = sync.NewCond(&d.pendMu)
	for i := range d.queues {
		d.queues[i] = make(chan job, queue)
		d.workers.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

// submit enqueues j on the shard owned by its auction. A full shard drops the
// job: mirrors and notifications are best effort.
func (d *dispatcher) submit(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("collaborator call after shutdown", "job", j.name, "auction_id", j.auctionID)
		return
	}
	d.track(1)
	select {
	case d.queues[d.shard(j.auctionID)] <- j:
	default:
		d.track(-1)
		d.log.Warn("collaborator queue full, dropping call", "job", j.name, "auction_id", j.auctionID)
	}
}

func (d *dispatcher) shard(id types.ID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *dispatcher) work(q chan job) {
	defer d.workers.Done()
	for j := range q {
		d.run(j)
		d.track(-1)
	}
}

func (d *dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("collaborator panicked", "job", j.name, "auction_id", j.auctionID, "panic", fmt.Sprint(r))
		}
	}()
	if err := j.run(ctx); err != nil {
		d.log.Warn("collaborator call failed", "job", j.name, "auction_id", j.auctionID, "err", err)
	}
}

func (d *dispatcher) track(delta int) {
	d.pendMu.Lock()
	d.pending += delta
	if d.pending == 0 {
		d.pendDone.Broadcast()
	}
	d.pendMu.Unlock()
}

// flush waits until no job is queued or running. Jobs submitted while it
// waits are waited for too.
func (d *dispatcher) flush() {
	d.pendMu.Lock()
	for d.pending > 0 {
		d.pendDone.Wait()
	}
	d.pendMu.Unlock()
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

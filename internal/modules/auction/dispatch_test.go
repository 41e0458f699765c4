// README: Dispatcher tests (flush racing submit, shutdown drops late calls).
package auction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ridebid/internal/types"
)

func newTestDispatcher() *dispatcher {
	return newDispatcher(4, 256, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatcherFlushWhileSubmitting(t *testing.T) {
	d := newTestDispatcher()
	defer d.close()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d.submit(job{
					name:      "count",
					auctionID: types.ID(fmt.Sprintf("a%d", i)),
					run: func(context.Context) error {
						ran.Add(1)
						return nil
					},
				})
			}
		}(i)
		go func() {
			defer wg.Done()
			d.flush()
		}()
	}
	wg.Wait()

	d.flush()
	assert.Equal(t, int64(160), ran.Load())
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	d := newTestDispatcher()
	d.close()

	called := false
	d.submit(job{name: "late", auctionID: "a1", run: func(context.Context) error {
		called = true
		return nil
	}})
	d.flush()
	assert.False(t, called)
}

// README: Start-code issuer; draws fixed-width codes and avoids ones held by other live auctions.
package handshake

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"ridebid/internal/types"
)

// maxIssueAttempts bounds the redraws when a code is already held by another auction.
const maxIssueAttempts = 16

// RandSource provides random numbers for code generation.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// cryptoRandSource reads from crypto/rand unless r is set.
type cryptoRandSource struct{ r io.Reader }

func (s cryptoRandSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("cryptoRandSource.Intn: n must be positive, got %d", n))
	}
	r := s.r
	if r == nil {
		r = rand.Reader
	}
	nBig, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("cryptoRandSource.Intn: reading random source: %v", err))
	}
	return int(nBig.Int64())
}

type Issuer struct {
	mu     sync.Mutex
	rand   RandSource
	space  int
	active map[string]types.ID
}

// NewIssuer returns an Issuer; a nil src uses crypto/rand.
func NewIssuer(src RandSource) *Issuer {
	if src == nil {
		src = cryptoRandSource{}
	}
	space := 1
	for i := 0; i < CodeLength; i++ {
		space *= 10
	}
	return &Issuer{rand: src, space: space, active: make(map[string]types.ID)}
}

// Issue creates a fresh record for auctionID. If every draw collides the last
// one is used anyway; uniqueness across live auctions is best effort.
func (i *Issuer) Issue(auctionID types.ID, now time.Time) *Record {
	i.mu.Lock()
	defer i.mu.Unlock()

	var code string
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code = fmt.Sprintf("%0*d", CodeLength, i.rand.Intn(i.space))
		if owner, taken := i.active[code]; !taken || owner == auctionID {
			break
		}
	}
	i.active[code] = auctionID
	return &Record{
		AuctionID: auctionID,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(CodeTTL),
	}
}

// Release frees r's code for reuse. Only the owning auction can release it.
func (i *Issuer) Release(r *Record) {
	if r == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if owner, ok := i.active[r.Code]; ok && owner == r.AuctionID {
		delete(i.active, r.Code)
	}
}

// Active returns the number of codes currently held.
func (i *Issuer) Active() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active)
}

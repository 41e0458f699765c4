// README: Start-of-trip code record and its failure modes.
package handshake

import (
	"errors"
	"time"

	"ridebid/internal/types"
)

const (
	CodeLength = 4
	CodeTTL    = 10 * time.Minute
)

var (
	ErrNoActiveCode    = errors.New("no active start code")
	ErrCodeExpired     = errors.New("start code expired")
	ErrCodeAlreadyUsed = errors.New("start code already used")
	ErrCodeMismatch    = errors.New("start code mismatch")
)

// Record binds one start code to a confirmed auction.
type Record struct {
	AuctionID  types.ID
	Code       string
	IssuedAt   time.Time
	VerifiedAt *time.Time
	ExpiresAt  time.Time
}

func (r *Record) Verified() bool {
	return r.VerifiedAt != nil
}

func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Settled reports whether the record can no longer be verified.
func (r *Record) Settled(now time.Time) bool {
	return r.Verified() || r.Expired(now)
}

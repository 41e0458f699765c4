// README: Normalized, single-use comparison of driver-entered start codes.
package handshake

import (
	"crypto/subtle"
	"strings"
	"time"
)

// Normalize keeps only ASCII digits, so " 04-21 " becomes "0421".
// The result is a string: leading zeros are significant.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Verify checks submitted against r and marks r used on success.
// A nil record means no code was ever issued, or it was already evicted.
func Verify(r *Record, submitted string, now time.Time) error {
	if r == nil {
		return ErrNoActiveCode
	}
	if r.Verified() {
		return ErrCodeAlreadyUsed
	}
	if r.Expired(now) {
		return ErrCodeExpired
	}
	got := Normalize(submitted)
	if subtle.ConstantTimeCompare([]byte(got), []byte(r.Code)) != 1 {
		return ErrCodeMismatch
	}
	t := now
	r.VerifiedAt = &t
	return nil
}

// README: Start-code tests (normalization, single use, expiry, issuer collisions).
package handshake

import (
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebid/internal/types"
)

// mockRandSource replays a fixed sequence for deterministic codes.
type mockRandSource struct {
	sequence []int
	index    int
}

func (m *mockRandSource) Intn(n int) int {
	if m.index >= len(m.sequence) {
		return 0
	}
	val := m.sequence[m.index] % n
	m.index++
	return val
}

var t0 = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newRecord(code string) *Record {
	return &Record{AuctionID: "a1", Code: code, IssuedAt: t0, ExpiresAt: t0.Add(CodeTTL)}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"0421":      "0421",
		" 0421 ":    "0421",
		"04-21":     "0421",
		"\t04 21\n": "0421",
		"abc":       "",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

// TestVerifyNormalization covers stored "0421" against driver-entered variants.
func TestVerifyNormalization(t *testing.T) {
	cases := []struct {
		submitted string
		want      error
	}{
		{"0421", nil},
		{" 0421 ", nil},
		{"04-21", nil},
		{"421", ErrCodeMismatch},
		{"0422", ErrCodeMismatch},
		{"04210", ErrCodeMismatch},
		{"", ErrCodeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.submitted, func(t *testing.T) {
			r := newRecord("0421")
			err := Verify(r, tc.submitted, t0.Add(time.Minute))
			if tc.want == nil {
				require.NoError(t, err)
				require.NotNil(t, r.VerifiedAt)
				assert.Equal(t, t0.Add(time.Minute), *r.VerifiedAt)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, r.VerifiedAt)
		})
	}
}

func TestVerifySingleUse(t *testing.T) {
	r := newRecord("0421")
	require.NoError(t, Verify(r, "0421", t0.Add(time.Second)))
	assert.ErrorIs(t, Verify(r, "0421", t0.Add(2*time.Second)), ErrCodeAlreadyUsed)
	assert.Equal(t, t0.Add(time.Second), *r.VerifiedAt)
}

func TestVerifyExpiry(t *testing.T) {
	r := newRecord("0421")
	require.NoError(t, Verify(r, "0421", r.ExpiresAt), "expiry is inclusive of ExpiresAt")

	r = newRecord("0421")
	assert.ErrorIs(t, Verify(r, "0421", r.ExpiresAt.Add(time.Nanosecond)), ErrCodeExpired)
	assert.True(t, r.Settled(r.ExpiresAt.Add(time.Nanosecond)))
}

func TestVerifyNoRecord(t *testing.T) {
	assert.ErrorIs(t, Verify(nil, "0421", t0), ErrNoActiveCode)
}

func TestIssuePadsAndSetsExpiry(t *testing.T) {
	iss := NewIssuer(&mockRandSource{sequence: []int{421}})
	r := iss.Issue("a1", t0)

	assert.Equal(t, "0421", r.Code)
	assert.Len(t, r.Code, CodeLength)
	assert.Equal(t, types.ID("a1"), r.AuctionID)
	assert.Equal(t, t0, r.IssuedAt)
	assert.Equal(t, t0.Add(10*time.Minute), r.ExpiresAt)
	assert.Nil(t, r.VerifiedAt)
	assert.Equal(t, 1, iss.Active())
}

func TestIssueAvoidsActiveCodes(t *testing.T) {
	iss := NewIssuer(&mockRandSource{sequence: []int{7, 7, 7, 8}})
	a := iss.Issue("a1", t0)
	b := iss.Issue("a2", t0)

	assert.Equal(t, "0007", a.Code)
	assert.Equal(t, "0008", b.Code)

	iss.Release(a)
	assert.Equal(t, 1, iss.Active())

	// a foreign record cannot release b's code
	iss.Release(&Record{AuctionID: "other", Code: b.Code})
	assert.Equal(t, 1, iss.Active())

	iss.Release(nil)
	iss.Release(b)
	assert.Equal(t, 0, iss.Active())
}

func TestIssueFallsBackWhenSpaceExhausted(t *testing.T) {
	seq := make([]int, maxIssueAttempts+1)
	iss := NewIssuer(&mockRandSource{sequence: seq})
	first := iss.Issue("a1", t0)
	second := iss.Issue("a2", t0)

	assert.Equal(t, "0000", first.Code)
	assert.Equal(t, "0000", second.Code)
}

func TestCryptoRandSourceRange(t *testing.T) {
	iss := NewIssuer(nil)
	for i := 0; i < 200; i++ {
		r := iss.Issue(types.NewID(), t0)
		require.Len(t, r.Code, CodeLength)
		assert.Equal(t, r.Code, Normalize(r.Code))
	}
}

func TestCryptoRandSource(t *testing.T) {
	src := cryptoRandSource{}
	for i := 0; i < 50; i++ {
		v := src.Intn(10000)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10000)
	}

	failing := cryptoRandSource{r: iotest.ErrReader(errors.New("entropy unavailable"))}
	assert.PanicsWithValue(t,
		"cryptoRandSource.Intn: reading random source: entropy unavailable",
		func() { failing.Intn(10000) })
	assert.Panics(t, func() { src.Intn(0) })
}

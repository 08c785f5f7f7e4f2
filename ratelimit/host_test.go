package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewHostLimiter(0, time.Second))
	assert.Nil(t, NewHostLimiter(5, 0))

	var h *HostLimiter
	assert.True(t, h.Attempt("example.com").Allowed)
}

func TestHostLimiter_PerHostBudget(t *testing.T) {
	clock := newFakeClock()
	h := NewHostLimiter(2, 10*time.Second)
	require.NotNil(t, h)
	h.now = clock.Now

	assert.True(t, h.Attempt("example.com").Allowed)
	assert.True(t, h.Attempt("EXAMPLE.com").Allowed)

	d := h.Attempt("example.com")
	assert.False(t, d.Allowed)
	assert.InDelta(t, float64(5*time.Second), float64(d.RetryAfter), float64(time.Millisecond))

	// Other hosts have their own bucket.
	assert.True(t, h.Attempt("go.dev").Allowed)

	clock.Advance(6 * time.Second)
	assert.True(t, h.Attempt("example.com").Allowed)
}

func TestHostLimiter_DeniedAttemptDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	h := NewHostLimiter(1, 4*time.Second)
	h.now = clock.Now

	require.True(t, h.Attempt("a.example").Allowed)
	for i := 0; i < 5; i++ {
		assert.False(t, h.Attempt("a.example").Allowed)
	}

	clock.Advance(5 * time.Second)
	assert.True(t, h.Attempt("a.example").Allowed)
}

func TestHostLimiter_PrunesFullBuckets(t *testing.T) {
	clock := newFakeClock()
	h := NewHostLimiter(2, 10*time.Second)
	h.now = clock.Now
	h.pruneAt = 3

	for _, host := range []string{"a.example", "b.example", "c.example"} {
		require.True(t, h.Attempt(host).Allowed)
	}

	// Buckets still refilling are kept.
	require.True(t, h.Attempt("d.example").Allowed)
	assert.Len(t, h.limiters, 4)
	assert.Equal(t, pruneThreshold, h.pruneAt)

	h.pruneAt = 4
	clock.Advance(6 * time.Second)
	require.True(t, h.Attempt("e.example").Allowed)
	assert.Len(t, h.limiters, 1)
	assert.Contains(t, h.limiters, "e.example")
}

func TestHostLimiter_PruneKeepsBudget(t *testing.T) {
	clock := newFakeClock()
	h := NewHostLimiter(1, 10*time.Second)
	h.now = clock.Now
	h.pruneAt = 1

	require.True(t, h.Attempt("a.example").Allowed)
	require.True(t, h.Attempt("b.example").Allowed)

	// a.example is still empty, so pruning must not reset it.
	assert.False(t, h.Attempt("a.example").Allowed)
}

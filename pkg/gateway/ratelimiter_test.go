package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should admit requests under the limits", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(10, 5)

		for i := 0; i < 5; i++ {
			allowed, reason := limiter.Acquire()
			assert.True(t, allowed)
			assert.Empty(t, reason)
		}
	})

	t.Run("should reject when too many requests are in flight", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(100, 1)

		allowed, _ := limiter.Acquire()
		assert.True(t, allowed)

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, reasonBusy, reason)

		limiter.Release()
		allowed, _ = limiter.Acquire()
		assert.True(t, allowed)
	})

	t.Run("should reject when the window is full", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(3, 10)

		for i := 0; i < 3; i++ {
			allowed, _ := limiter.Acquire()
			assert.True(t, allowed)
			limiter.Release()
		}

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, reasonRateLimited, reason)
	})

	t.Run("should admit again once the window has passed", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		limiter := NewClientRateLimiterWithLimits(2, 10)
		limiter.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Acquire()
			assert.True(t, allowed)
			limiter.Release()
		}
		allowed, _ := limiter.Acquire()
		assert.False(t, allowed)

		now = now.Add(61 * time.Second)
		allowed, _ = limiter.Acquire()
		assert.True(t, allowed)
	})

	t.Run("should fall back to defaults for invalid limits", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(0, -1)

		assert.Equal(t, DefaultMessagesPerMinute, limiter.perMinute)
		assert.Equal(t, DefaultMaxInFlight, limiter.maxInFlight)
	})
}

func TestClientRateLimiter_Stats(t *testing.T) {
	t.Run("should report window and in-flight counts", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(100, 10)

		limiter.Acquire()
		limiter.Acquire()
		limiter.Acquire()

		requests, inFlight := limiter.Stats()
		assert.Equal(t, 3, requests)
		assert.Equal(t, 3, inFlight)

		limiter.Release()
		requests, inFlight = limiter.Stats()
		assert.Equal(t, 3, requests)
		assert.Equal(t, 2, inFlight)
	})

	t.Run("should not go negative on extra releases", func(t *testing.T) {
		limiter := NewClientRateLimiter()

		limiter.Release()
		limiter.Release()

		_, inFlight := limiter.Stats()
		assert.Equal(t, 0, inFlight)
	})
}

package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	t.Run("should match kind sentinels through wrapping", func(t *testing.T) {
		err := fmt.Errorf("calling provider: %w", Wrap(KindAuth, "chat", errors.New("401")))

		assert.True(t, errors.Is(err, ErrAuth))
		assert.False(t, errors.Is(err, ErrRateLimit))
		assert.Equal(t, KindAuth, KindOf(err))
	})

	t.Run("should not treat a concrete error as a sentinel", func(t *testing.T) {
		concrete := New(KindSync, "sync", "graph down")
		other := New(KindSync, "sync", "graph down")

		assert.False(t, errors.Is(concrete, other))
		assert.True(t, errors.Is(concrete, ErrSync))
	})

	t.Run("should keep the cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(KindUnavailable, "backend", cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestIs(t *testing.T) {
	inner := New(KindCircuitOpen, "breaker", "open")
	outer := Wrap(KindChatFailed, "chat", inner)

	assert.True(t, Is(outer, KindCircuitOpen))
	assert.True(t, Is(outer, KindChatFailed))
	assert.Equal(t, KindChatFailed, KindOf(outer))
	assert.False(t, Is(nil, KindChatFailed))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "message is required", Message(New(KindValidation, "handle", "message is required")))
	assert.Contains(t, Message(New(KindCircuitOpen, "", "")), "temporarily unavailable")
	assert.Empty(t, Message(nil))
	assert.True(t, Unavailable(New(KindRateLimit, "", "")))
	assert.False(t, Unavailable(New(KindAuth, "", "")))
}

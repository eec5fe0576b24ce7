package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup_CleanupNow(t *testing.T) {
	store := NewStore(DefaultMaxTurns)
	base := time.Now()
	store.now = func() time.Time { return base.Add(-2 * time.Hour) }
	store.Append("stale", Turn{Role: RoleUser, Content: "1"})
	store.now = time.Now
	store.Append("fresh", Turn{Role: RoleUser, Content: "2"})

	cleanup, err := NewCleanup("@every 1h", time.Hour, zerolog.Nop())
	require.NoError(t, err)
	cleanup.Register("openai", store)

	assert.Equal(t, 1, cleanup.CleanupNow())
	assert.Equal(t, []string{"fresh"}, store.Sessions())
}

func TestCleanup_StartStop(t *testing.T) {
	cleanup, err := NewCleanup("", 0, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, cleanup.Start())
	assert.True(t, cleanup.IsRunning())
	assert.Error(t, cleanup.Start())

	require.NoError(t, cleanup.Stop())
	assert.False(t, cleanup.IsRunning())
	assert.Error(t, cleanup.Stop())
}

func TestNewCleanup_InvalidSchedule(t *testing.T) {
	_, err := NewCleanup("not a schedule", time.Minute, zerolog.Nop())
	assert.Error(t, err)
}

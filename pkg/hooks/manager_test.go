package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	t.Run("should reject unknown events", func(t *testing.T) {
		_, err := NewManager(Config{
			Enabled: true,
			Hooks:   []Hook{{Event: "agent:bootstrap", Script: "true", Enabled: true}},
		})
		assert.ErrorContains(t, err, "unknown hook event")
	})

	t.Run("should reject empty scripts", func(t *testing.T) {
		_, err := NewManager(Config{
			Enabled: true,
			Hooks:   []Hook{{Event: EventStartup, Enabled: true}},
		})
		assert.Error(t, err)
	})

	t.Run("should skip disabled hooks", func(t *testing.T) {
		m, err := NewManager(Config{
			Enabled: true,
			Hooks: []Hook{
				{Event: EventSyncFailed, Script: "true", Enabled: true},
				{Event: EventStartup, Script: "true"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{EventSyncFailed}, m.Events())
	})

	t.Run("should ignore hooks when disabled", func(t *testing.T) {
		m, err := NewManager(Config{Hooks: []Hook{{Event: "bogus", Enabled: true}}})
		require.NoError(t, err)
		assert.NoError(t, m.Trigger(context.Background(), "bogus", nil))
	})
}

func TestManager_Trigger(t *testing.T) {
	t.Run("should execute the hook script", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "startup.txt")

		manager, err := NewManager(Config{
			Enabled: true,
			Logger:  zerolog.Nop(),
			Hooks: []Hook{{
				ID:      "startup",
				Event:   EventStartup,
				Script:  "echo startup > " + outputPath,
				Enabled: true,
			}},
		})
		require.NoError(t, err)

		require.NoError(t, manager.Trigger(context.Background(), EventStartup, nil))

		content, err := os.ReadFile(outputPath)
		require.NoError(t, err)
		assert.Equal(t, "startup\n", string(content))
	})

	t.Run("should inject event data into the environment", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "env.txt")
		script := `echo "$TOOLGATE_HOOK_EVENT:$TOOLGATE_HOOK_DATA_SESSION_ID:$TOOLGATE_HOOK_DATA_TOOLS" > ` + outputPath

		manager, err := NewManager(Config{
			Enabled: true,
			Logger:  zerolog.Nop(),
			Hooks: []Hook{{
				ID:      "done",
				Event:   EventOrchestrationSuccess,
				Script:  script,
				Enabled: true,
			}},
		})
		require.NoError(t, err)

		require.NoError(t, manager.Trigger(context.Background(), EventOrchestrationSuccess, map[string]interface{}{
			"session-id": "s-42",
			"tools":      []string{"identity_list-users"},
		}))

		content, err := os.ReadFile(outputPath)
		require.NoError(t, err)
		assert.Equal(t, `orchestration:completed:s-42:["identity_list-users"]`+"\n", string(content))
	})

	t.Run("should join hook errors", func(t *testing.T) {
		manager, err := NewManager(Config{
			Enabled: true,
			Logger:  zerolog.Nop(),
			Hooks: []Hook{
				{ID: "fail-1", Event: EventSyncFailed, Script: "exit 2", Enabled: true},
				{ID: "fail-2", Event: EventSyncFailed, Script: "exit 3", Enabled: true},
			},
		})
		require.NoError(t, err)

		err = manager.Trigger(context.Background(), EventSyncFailed, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hook fail-1 failed")
		assert.Contains(t, err.Error(), "hook fail-2 failed")
	})

	t.Run("should respect the timeout", func(t *testing.T) {
		manager, err := NewManager(Config{
			Enabled: true,
			Logger:  zerolog.Nop(),
			Hooks: []Hook{{
				ID:      "timeout",
				Event:   EventShutdown,
				Script:  "sleep 1",
				Enabled: true,
				Timeout: 30 * time.Millisecond,
			}},
		})
		require.NoError(t, err)

		err = manager.Trigger(context.Background(), EventShutdown, nil)
		require.Error(t, err)
		assert.True(t,
			strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "signal: killed"),
			"expected timeout-related error, got: %v",
			err,
		)
	})

	t.Run("should be a no-op on a nil manager", func(t *testing.T) {
		var m *Manager
		assert.NoError(t, m.Trigger(context.Background(), EventStartup, nil))
		assert.Nil(t, m.Events())
	})
}

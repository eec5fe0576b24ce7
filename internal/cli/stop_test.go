package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("should describe the command", func(t *testing.T) {
		out, err := execute(t, "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "Stop the toolgate gateway")
		assert.Contains(t, out, "timeout")
	})

	t.Run("should report a gateway that is not running", func(t *testing.T) {
		out, err := execute(t, "stop")
		require.NoError(t, err)
		assert.Contains(t, out, "Gateway is not running")
	})
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()

	t.Run("should be false without a pid file", func(t *testing.T) {
		assert.False(t, isRunning(filepath.Join(dir, "missing.pid")))
	})

	t.Run("should be false for an invalid pid file", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.pid")
		require.NoError(t, os.WriteFile(path, []byte("invalid"), 0644))
		assert.False(t, isRunning(path))
	})

	t.Run("should be true for a live process", func(t *testing.T) {
		path := filepath.Join(dir, "live.pid")
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, isRunning(path))
	})
}

package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	d := createTestDaemon(t, nil)

	lm := NewLifecycleManager(d)
	assert.Equal(t, d, lm.daemon)
	assert.Equal(t, filepath.Join(d.GetConfig().DataDir, "toolgate.pid"), lm.pidFile)
}

func TestLifecycleManager_StartStop(t *testing.T) {
	t.Run("should write and remove the PID file", func(t *testing.T) {
		lm := NewLifecycleManager(createTestDaemon(t, nil))

		require.NoError(t, lm.Start())
		_, err := os.Stat(lm.pidFile)
		require.NoError(t, err)

		pid, err := lm.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
		assert.True(t, lm.IsRunning())

		require.NoError(t, lm.Stop())
		_, err = os.Stat(lm.pidFile)
		assert.True(t, os.IsNotExist(err))
		assert.False(t, lm.IsRunning())
	})

	t.Run("should replace a stale PID file", func(t *testing.T) {
		lm := NewLifecycleManager(createTestDaemon(t, nil))
		require.NoError(t, os.WriteFile(lm.pidFile, []byte("999999999"), 0644))

		require.NoError(t, lm.Start())
		defer lm.Stop()

		pid, err := lm.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})

	t.Run("should refuse when another process owns the PID file", func(t *testing.T) {
		lm := NewLifecycleManager(createTestDaemon(t, nil))
		require.NoError(t, os.WriteFile(lm.pidFile, []byte(strconv.Itoa(os.Getppid())), 0644))

		err := lm.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	t.Run("should parse a trailing newline", func(t *testing.T) {
		path := filepath.Join(dir, "ok.pid")
		require.NoError(t, os.WriteFile(path, []byte("42\n"), 0644))

		pid, err := ReadPID(path)
		require.NoError(t, err)
		assert.Equal(t, 42, pid)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		path := filepath.Join(dir, "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

		_, err := ReadPID(path)
		assert.Error(t, err)
	})

	t.Run("should report a missing file", func(t *testing.T) {
		_, err := ReadPID(filepath.Join(dir, "missing.pid"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-1))
}

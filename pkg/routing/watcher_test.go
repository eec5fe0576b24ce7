package routing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strategyOf(t *testing.T, r *Router, text string) Strategy {
	t.Helper()
	d, err := r.Determine(context.Background(), text)
	require.NoError(t, err)
	return d.Strategy
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fresh:\n  - sofort\n"), 0o644))

	r := newTestRouter(nil)
	w, err := NewWatcher(WatcherConfig{Path: path, Router: r, Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, FreshIdentityData, strategyOf(t, r, "Benutzer sofort zeigen"))

	t.Run("should reload on change", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("fresh:\n  - momentan\n"), 0o644))

		assert.Eventually(t, func() bool {
			return strategyOf(t, r, "momentan aktive Benutzer") == FreshIdentityData
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, CoordinatedMulti, strategyOf(t, r, "Benutzer sofort zeigen"))
	})

	t.Run("should keep the policy on an invalid file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("write: [\n"), 0o644))
		time.Sleep(200 * time.Millisecond)

		assert.Equal(t, FreshIdentityData, strategyOf(t, r, "momentan aktive Benutzer"))
	})

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestNewWatcher(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Router: newTestRouter(nil)})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Path: "keywords.yaml"})
	assert.Error(t, err)

	w, err := NewWatcher(WatcherConfig{Path: filepath.Join(t.TempDir(), "missing.yaml"), Router: newTestRouter(nil)})
	require.NoError(t, err)
	assert.Error(t, w.Start())
	require.NoError(t, w.Stop())
}

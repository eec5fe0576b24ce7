package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeywords(t *testing.T) {
	t.Run("should override only the given lists", func(t *testing.T) {
		set, err := ParseKeywords([]byte("fresh:\n  - Brandneu\n  - ' brandneu '\n  - ''\n"))
		require.NoError(t, err)

		assert.Equal(t, []string{"brandneu"}, set.Fresh)
		assert.Equal(t, DefaultKeywords().Write, set.Write)
		assert.Equal(t, DefaultKeywords().Analysis, set.Analysis)
	})

	t.Run("should reject unknown keys", func(t *testing.T) {
		_, err := ParseKeywords([]byte("writes:\n  - create\n"))
		assert.Error(t, err)
	})

	t.Run("should reject an empty write list", func(t *testing.T) {
		_, err := ParseKeywords([]byte("write: []\n"))
		assert.Error(t, err)
	})

	t.Run("should reject malformed yaml", func(t *testing.T) {
		_, err := ParseKeywords([]byte("write: [create\n"))
		assert.Error(t, err)
	})
}

func TestRouter_LoadKeywordsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  - auswertung\n"), 0o644))

	r := newTestRouter(nil)
	require.NoError(t, r.LoadKeywordsFile(path))

	d, err := r.Determine(t.Context(), "Auswertung der Gruppen")
	require.NoError(t, err)
	assert.Equal(t, SyncThenAnalyze, d.Strategy)

	assert.Error(t, r.LoadKeywordsFile(filepath.Join(dir, "missing.yaml")))
	d, err = r.Determine(t.Context(), "Auswertung der Gruppen")
	require.NoError(t, err)
	assert.Equal(t, SyncThenAnalyze, d.Strategy)
}

package rasterizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chartview/internal/testpdf"
)

func writeDocs(t *testing.T, count int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, count)
	for i := range paths {
		paths[i] = filepath.Join(dir, "doc"+string(rune('a'+i))+".pdf")
		require.NoError(t, testpdf.Write(paths[i], 1))
	}
	return paths
}

func TestRasterCacheReusesOpenDocuments(t *testing.T) {
	paths := writeDocs(t, 1)

	rc, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rc.Purge()

	first, err := rc.Get(paths[0])
	require.NoError(t, err)

	second, err := rc.Get(paths[0])
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRasterCacheEvictsAndCloses(t *testing.T) {
	paths := writeDocs(t, 3)

	rc, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rc.Purge()

	oldest, err := rc.Get(paths[0])
	require.NoError(t, err)
	_, err = rc.Get(paths[1])
	require.NoError(t, err)

	// opening a third document evicts the oldest one, closing it
	_, err = rc.Get(paths[2])
	require.NoError(t, err)
	assert.True(t, oldest.closed)
}

func TestRasterCacheGetFailsOnMissingDocument(t *testing.T) {
	rc, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = rc.Get(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrOpenDocument)
}

package http

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chartview/internal/config"
	"chartview/internal/doc_list"
	"chartview/internal/rasterizer"
	"chartview/internal/testpdf"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	log := zaptest.NewLogger(t)

	dataDir := t.TempDir()
	require.NoError(t, testpdf.Write(filepath.Join(dataDir, "charts.pdf"), 2))

	scanner := doc_list.New(dataDir, log)
	require.NoError(t, scanner.Scan())
	docID := scanner.GetDocuments()[0].ID

	rasters, err := rasterizer.NewRasterCache(4, log)
	require.NoError(t, err)

	registry := NewRegistry(t.TempDir(), 30*time.Second, rasters, scanner, log)
	t.Cleanup(registry.Close)

	cfg := &config.Config{AllowedOrigin: "*"}
	handlers := New(cfg, log, scanner, registry, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents", handlers.HandleDocuments)
	mux.HandleFunc("/api/documents/", handlers.HandleDocumentRoutes)
	mux.HandleFunc("/api/map/tiles/", handlers.HandleMapTile)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	server := httptest.NewServer(handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux)))
	t.Cleanup(server.Close)

	return server, docID
}

func TestListDocuments(t *testing.T) {
	server, docID := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/documents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var docs []doc_list.DocInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	require.Len(t, docs, 1)
	assert.Equal(t, docID, docs[0].ID)
}

func TestDocumentMeta(t *testing.T) {
	server, docID := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("%s/api/documents/%s/meta", server.URL, docID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.EqualValues(t, 2, meta["pages"])
	assert.EqualValues(t, 612, meta["page_width"])
	assert.EqualValues(t, 256, meta["tile_size"])
}

func TestDocumentMetaNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/documents/unknown/meta")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTileEndpointEventuallyServesPNG(t *testing.T) {
	server, docID := newTestServer(t)
	url := fmt.Sprintf("%s/api/documents/%s/tiles/0/0/0_0.png", server.URL, docID)

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url)
		require.NoError(t, err)

		if resp.StatusCode == http.StatusAccepted {
			resp.Body.Close()
			require.False(t, time.Now().After(deadline), "tile never became available")
			time.Sleep(20 * time.Millisecond)
			continue
		}

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

		decoded, err := png.Decode(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, 256, decoded.Bounds().Dx())
		assert.Equal(t, 256, decoded.Bounds().Dy())
		return
	}
}

func TestTileEndpointRejectsBadCoordinates(t *testing.T) {
	server, docID := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("%s/api/documents/%s/tiles/0/0/99_0.png", server.URL, docID))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTileEndpointRejectsBadPage(t *testing.T) {
	server, docID := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("%s/api/documents/%s/tiles/9/0/0_0.png", server.URL, docID))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPurgeEndpoint(t *testing.T) {
	server, docID := newTestServer(t)

	resp, err := http.Post(fmt.Sprintf("%s/api/documents/%s/purge", server.URL, docID), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMapTilesDisabled(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/map/tiles/1/0/0.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

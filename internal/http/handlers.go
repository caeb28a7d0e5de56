package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chartview/internal/cache"
	"chartview/internal/config"
	"chartview/internal/doc_list"
	"chartview/internal/metrics"
)

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	scanner  *doc_list.Scanner
	registry *Registry
	mapCache *cache.Cache
}

// New wires the handler set. mapCache may be nil when no map layer is
// configured.
func New(config *config.Config, logger *zap.Logger, scanner *doc_list.Scanner, registry *Registry, mapCache *cache.Cache) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		scanner:  scanner,
		registry: registry,
		mapCache: mapCache,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docs := h.scanner.GetDocuments()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) HandleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 {
		http.NotFound(w, r)
		return
	}

	docID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "meta":
		h.handleDocumentMeta(w, r, docID)
	case len(parts) == 2 && parts[1] == "purge":
		h.handlePurge(w, r, docID)
	case len(parts) == 5 && parts[1] == "tiles":
		h.handleDocumentTile(w, r, docID, parts[2:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleDocumentMeta(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docInfo := h.scanner.GetDocumentByID(docID)
	if docInfo == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	meta := map[string]interface{}{
		"id":          docInfo.ID,
		"name":        docInfo.OriginalFilename,
		"pages":       docInfo.Pages,
		"page_width":  docInfo.PageWidth,
		"page_height": docInfo.PageHeight,
		"tile_size":   256,
		"bytes":       docInfo.Bytes,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (h *Handlers) handlePurge(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.scanner.GetDocumentByID(docID) == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	h.registry.PurgeDocument(docID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"purged": true})
}

// handleDocumentTile serves
// GET /api/documents/{id}/tiles/{page}/{zoom}/{x}_{y}.png
func (h *Handlers) handleDocumentTile(w http.ResponseWriter, r *http.Request, docID string, tileParts []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var page, zoom int
	if _, err := fmt.Sscanf(tileParts[0], "%d", &page); err != nil {
		http.Error(w, "Invalid page", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(tileParts[1], "%d", &zoom); err != nil {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}

	tileFile := tileParts[2]
	if filepath.Ext(tileFile) != ".png" {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}

	var x, y int
	if _, err := fmt.Sscanf(strings.TrimSuffix(tileFile, ".png"), "%d_%d", &x, &y); err != nil {
		http.Error(w, "Invalid tile coordinates", http.StatusBadRequest)
		return
	}

	tileCache, err := h.registry.GetCache(docID, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.serveTile(w, r, tileCache, x, y, zoom)
}

// HandleMapTile serves GET /api/map/tiles/{z}/{x}/{y}.png from the
// configured slippy-map upstream.
func (h *Handlers) HandleMapTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.mapCache == nil {
		http.Error(w, "Map layer not configured", http.StatusNotFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/map/tiles/")
	var z, x, y int
	if _, err := fmt.Sscanf(path, "%d/%d/%d.png", &z, &x, &y); err != nil {
		http.Error(w, "Invalid tile path", http.StatusBadRequest)
		return
	}

	h.serveTile(w, r, h.mapCache, x, y, z)
}

func (h *Handlers) serveTile(w http.ResponseWriter, r *http.Request, tileCache *cache.Cache, x, y, zoom int) {
	metrics.TileRequests.Inc()
	start := time.Now()
	defer func() {
		metrics.TileLatency.Observe(time.Since(start).Seconds())
	}()

	image, err := tileCache.GetTile(x, y, zoom)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrInvalidCoords):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, cache.ErrCorruptTile):
			metrics.TileErrors.Inc()
			http.Error(w, err.Error(), http.StatusGone)
		default:
			metrics.TileErrors.Inc()
			h.logger.Error("Failed to look up tile", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if image == nil {
		// still rendering, the client polls again
		metrics.TilePending.Inc()
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	metrics.TileHits.Inc()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := png.Encode(w, image.RGBA()); err != nil {
		h.logger.Warn("Failed to write tile response", zap.Error(err))
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

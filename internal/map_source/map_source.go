package map_source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"chartview/internal/cache"
	"chartview/internal/img"
)

const defaultUserAgent = "chartview/1.0"

// Source fetches slippy-map tiles (z/x/y addressing) from an upstream tile
// server. The X axis wraps around the world; Y and zoom are bounded.
type Source struct {
	logger    *zap.Logger
	baseURL   string
	userAgent string
	client    *http.Client
	minZoom   int
	maxZoom   int

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(baseURL string, minZoom, maxZoom int, logger *zap.Logger) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		logger:    logger,
		baseURL:   baseURL,
		userAgent: defaultUserAgent,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		minZoom: minZoom,
		maxZoom: maxZoom,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CorrectCoords wraps X horizontally and rejects tiles outside the pyramid.
func (s *Source) CorrectCoords(coords cache.TileCoords) (cache.TileCoords, bool) {
	if coords.Zoom < s.minZoom || coords.Zoom > s.maxZoom {
		return coords, false
	}

	n := 1 << coords.Zoom
	if coords.Y < 0 || coords.Y >= n {
		return coords, false
	}

	coords.X = ((coords.X % n) + n) % n
	return coords, true
}

func (s *Source) TilePath(coords cache.TileCoords) string {
	return fmt.Sprintf("%d/%d/%d.png", coords.Zoom, coords.X, coords.Y)
}

// LoadTileImage fetches the tile from the upstream server. The encoded
// bytes are kept on the image so the cache can persist them unchanged.
func (s *Source) LoadTileImage(coords cache.TileCoords) (*img.Image, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil, cache.ErrCancelled
	}

	url := fmt.Sprintf("%s/%d/%d/%d.png", s.baseURL, coords.Zoom, coords.X, coords.Y)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, cache.ErrCancelled
		}
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	s.logger.Debug("Fetched tile",
		zap.Stringer("tile", coords),
		zap.Int("bytes", len(data)))

	return img.FromEncoded(data)
}

// ResumeLoading arms a fresh fetch context after a cancellation.
func (s *Source) ResumeLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
}

// CancelPendingLoads aborts in-flight fetches and fails subsequent ones
// until ResumeLoading.
func (s *Source) CancelPendingLoads() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
}

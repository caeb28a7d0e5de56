package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chartview/internal/cache"
	"chartview/internal/config"
	"chartview/internal/doc_list"
	httphandlers "chartview/internal/http"
	"chartview/internal/logger"
	"chartview/internal/map_source"
	"chartview/internal/rasterizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting chartview server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.String("cache_dir", cfg.CacheDir),
	)

	scanner := doc_list.New(cfg.DataDir, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	rasters, err := rasterizer.NewRasterCache(cfg.MaxOpenDocs, log)
	if err != nil {
		log.Fatal("Failed to initialize raster cache", zap.Error(err))
	}

	registry := httphandlers.NewRegistry(cfg.CacheDir, cfg.MemoryTTL, rasters, scanner, log)
	defer registry.Close()

	var mapCache *cache.Cache
	if cfg.MapEnabled() {
		log.Info("Map layer enabled", zap.String("upstream", cfg.MapUpstreamURL))
		source := map_source.New(cfg.MapUpstreamURL, cfg.MapMinZoom, cfg.MapMaxZoom, log)
		mapCache = cache.New(source, cache.Config{MemoryTTL: cfg.MemoryTTL}, log)
		if err := mapCache.SetCacheDirectory(filepath.Join(cfg.CacheDir, "map")); err != nil {
			log.Fatal("Failed to set map cache directory", zap.Error(err))
		}
		defer mapCache.Close()
	}

	handlers := httphandlers.New(cfg, log, scanner, registry, mapCache)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/documents", handlers.HandleDocuments)
	mux.HandleFunc("/api/documents/", handlers.HandleDocumentRoutes)
	mux.HandleFunc("/api/map/tiles/", handlers.HandleMapTile)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/vidsim/vidsim/internal/captioner"
	"github.com/vidsim/vidsim/internal/config"
	"github.com/vidsim/vidsim/internal/embedder"
	"github.com/vidsim/vidsim/internal/ingest"
	"github.com/vidsim/vidsim/internal/query"
	"github.com/vidsim/vidsim/internal/sampler"
	"github.com/vidsim/vidsim/internal/server"
	"github.com/vidsim/vidsim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(cfg.LogLevel),
			TimeFormat: "15:04:05",
		}),
	)

	st, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.EmbeddingDim, logger)
	if err != nil {
		log.Fatalf("Failed to connect to vector store: %v", err)
	}
	defer st.Close()

	// Idempotent; the collection may already exist from a prior run, so a
	// failure here is not fatal to startup.
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Warn("schema bootstrap failed, continuing", "error", err)
	}

	provider := embedder.NewClient(cfg.EmbedderURL, cfg.EmbeddingDim)
	smp := sampler.NewFFmpeg(logger)

	var describer ingest.Describer
	if cfg.CaptionsEnabled {
		capt, err := captioner.New(ctx, logger, cfg.OllamaBaseURL, cfg.OllamaPort, cfg.CaptionModel)
		if err != nil {
			logger.Warn("captioner unavailable, segments will have empty extra", "error", err)
		} else {
			describer = capt
		}
	}

	pipeline := ingest.NewPipeline(smp, provider, st, describer, logger, ingest.Config{
		TempDir: cfg.TempDir,
		FPS:     cfg.IngestFPS,
		Workers: cfg.EmbedWorkers,
	})
	aggregator := query.NewAggregator(smp, provider, st, logger, query.Config{
		TempDir:       cfg.TempDir,
		FPS:           cfg.QueryFPS,
		MaxFrames:     cfg.MaxQueryFrames,
		Workers:       cfg.EmbedWorkers,
		SearchTimeout: cfg.SearchTimeout,
	})

	srv := server.New(pipeline, aggregator, st, logger, server.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultTopK:    cfg.DefaultTopK,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("vidsim listening",
			"addr", cfg.HTTPAddr, "origins", cfg.AllowedOrigins, "dimensions", cfg.EmbeddingDim)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

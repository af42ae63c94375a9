package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	h "github.com/tracktide/tracktide/internal/api/http"
	"github.com/tracktide/tracktide/internal/batch"
	"github.com/tracktide/tracktide/internal/catalog"
	cfgpkg "github.com/tracktide/tracktide/internal/config"
	"github.com/tracktide/tracktide/internal/scheduler"
	"github.com/tracktide/tracktide/internal/service"
	"github.com/tracktide/tracktide/internal/storage"
	"github.com/tracktide/tracktide/internal/tag"
	"github.com/tracktide/tracktide/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := cfgpkg.Load()
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.Error("configuration directory not accessible", "error", err)
		} else {
			slog.Error("failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	queueStore, err := storage.NewQueueStore(cfg.StateFile)
	if err != nil {
		slog.Error("failed to initialize queue store", "error", err)
		os.Exit(1)
	}

	fileStorage := storage.NewFileStorage(cfg.TempDir)
	tagger := tag.NewTagger(cfg.DownloadDir, fileStorage, slog.Default())

	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.SessionToken, cfg.NewHTTPClient(false))
	fetcher := worker.NewFetcher(
		catalogClient,
		fileStorage,
		tagger,
		cfg.NewHTTPClient(true),
		[]byte(cfg.StreamSecret),
		cfg.InactivityTimeout,
		slog.Default(),
	)

	sched := scheduler.New(fetcher, cfg.ConcurrentDownloads, cfg.RetrySettings(), queueStore, slog.Default())
	coordinator := batch.NewCoordinator(sched, queueStore, cfg.DownloadDir, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	coordinator.Restore()

	engine := service.NewEngine(sched, coordinator, cfg.Quality, slog.Default())

	router := h.NewRouter(engine, slog.Default())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	if err := sched.Stop(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown failed", "error", err)
	} else {
		slog.Info("server stopped gracefully")
	}
}

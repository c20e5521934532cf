package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jukasdrj/shelfscan/internal/config"
	"github.com/jukasdrj/shelfscan/internal/database"
	"github.com/jukasdrj/shelfscan/internal/handler"
	"github.com/jukasdrj/shelfscan/internal/janitor"
	"github.com/jukasdrj/shelfscan/internal/progress"
	"github.com/jukasdrj/shelfscan/internal/provider"
	"github.com/jukasdrj/shelfscan/internal/service"
	"github.com/jukasdrj/shelfscan/pkg/middleware"
)

const version = "1.0.0"

func main() {
	// Load .env if present (local development convenience)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting ShelfScan Service", "version", version)

	// Shut down on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to MongoDB
	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	// Create indexes
	if err := database.CreateIndexes(ctx, db); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	// Initialize job store and progress hub
	jobRepo := database.NewJobRepository(db, cfg.JobTTL)
	hub := progress.NewHub()

	// Initialize detection service
	detectionClient := service.NewHTTPClient(cfg.DetectionTimeout)
	detector := service.NewDetector(detectionClient, service.DetectorConfig{
		APIURL:        cfg.DetectionAPIURL,
		Timeout:       cfg.DetectionTimeout,
		MaxImageBytes: cfg.MaxImageBytes,
		LowConfidence: cfg.EnrichMinConfidence,
	})

	// Initialize metadata providers and enrichment service
	providerClient := service.NewHTTPClient(cfg.ProviderTimeout)
	lookup := provider.NewAdapter(
		provider.NewGoogleBooks(providerClient, cfg.GoogleBooksURL),
		provider.NewOpenLibrary(providerClient, cfg.OpenLibraryURL),
	)
	enricher := service.NewEnricher(lookup)

	// Initialize orchestrator
	orchestrator := service.NewOrchestrator(jobRepo, hub, detector, enricher, service.OrchestratorConfig{
		JobTTL:             cfg.JobTTL,
		ReadyPollInterval:  cfg.ReadyPollInterval,
		ReadyTimeout:       cfg.ReadyTimeout,
		MinConfidence:      cfg.EnrichMinConfidence,
		MaxImageBytes:      cfg.MaxImageBytes,
		MaxBatchPhotos:     cfg.MaxBatchPhotos,
		MaxConcurrentScans: cfg.MaxConcurrentScans,
	})

	// Initialize janitor
	sweeper := janitor.New(jobRepo, cfg.TerminalRetention, cfg.JanitorInterval)
	if err := sweeper.Start(); err != nil {
		slog.Error("Failed to start janitor", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	scanHandler := handler.NewScanHandler(orchestrator, cfg.MaxImageBytes, cfg.EstimateMinSeconds, cfg.EstimateMaxSeconds)
	progressHandler := handler.NewProgressHandler(orchestrator, hub)
	healthHandler := handler.NewHealthHandler(db, hub, version)

	// Create CORS config
	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	// Create router
	router := handler.NewRouter(
		scanHandler,
		progressHandler,
		healthHandler,
		corsConfig,
	)

	// Create HTTP server. WriteTimeout is left at its configured zero default
	// so long-lived progress streams are not cut off mid-scan.
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Received shutdown signal, initiating graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop the janitor first (waits for an in-flight sweep)
		slog.Info("Stopping janitor...")
		sweeper.Stop()

		slog.Info("Shutting down HTTP server...")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Service exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("ShelfScan Service stopped")
}

// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/leseb/docchat-gw/pkg/adapters/http"
	"github.com/leseb/docchat-gw/pkg/core/config"
	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
)

var (
	// Version is set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("Document Chat Gateway\nVersion: %s\nBuild Time: %s\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting Document Chat Gateway",
		"version", Version,
		"build_time", BuildTime)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	initCtx := context.Background()

	if cfg.Auth.APIKey == "" {
		logger.Warn("No API key configured; every protected request will be rejected")
	}

	deps, err := buildDependencies(initCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	ingest := services.NewIngestService(
		&http.Client{Timeout: cfg.Fetch.Timeout},
		deps.splitter,
		deps.embedder,
		deps.vectors,
		services.IngestConfig{
			IndexName:       cfg.VectorStore.IndexName,
			NamespacePrefix: cfg.VectorStore.NamespacePrefix,
			ChunkSize:       cfg.Chunking.ChunkSize,
			MaxFetchBytes:   cfg.Fetch.MaxBytes,
		},
		logger)
	chat := services.NewChatService(deps.model, deps.embedder, deps.vectors, deps.prompt, cfg.VectorStore.TopK, logger)
	usageSvc := services.NewUsageService(deps.store, deps.counter)
	logger.Info("Initialized services")

	handler := httpAdapter.New(logger, ingest, chat, usageSvc, deps.store, deps.files, httpAdapter.Options{
		APIKey:         cfg.Auth.APIKey,
		MaxUploadBytes: cfg.Usage.MaxUploadBytes,
		URLExpiry:      cfg.FileStore.URLExpiry,
	})
	logger.Info("Initialized HTTP adapter")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: cfg.Server.Timeout,
		// Answers are streamed for as long as the model produces tokens.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

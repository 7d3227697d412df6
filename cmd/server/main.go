package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goodpapers/goodpapers/internal/api"
	"github.com/goodpapers/goodpapers/internal/arxiv"
	"github.com/goodpapers/goodpapers/internal/config"
	"github.com/goodpapers/goodpapers/internal/ingest"
	"github.com/goodpapers/goodpapers/internal/keystone"
	"github.com/goodpapers/goodpapers/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	dataDir := flag.String("data-dir", "./data", "path to data directory")
	flag.Parse()

	// Load configuration (auto-creates default if missing).
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure data directory exists.
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Open database with WAL mode and pragmas.
	db, err := storage.OpenDatabase(filepath.Join(*dataDir, "goodpapers.db"))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run schema migrations.
	if err := storage.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := storage.NewStore(db)

	arxivClient := arxiv.NewClient(cfg.Arxiv.BaseURL, time.Duration(cfg.Arxiv.TimeoutSeconds)*time.Second)

	// Create the Keystone syncer (nil if no endpoint -- mirroring disabled).
	var syncer *keystone.Syncer
	if cfg.Keystone.Endpoint != "" {
		client := keystone.NewClient(keystone.Config{
			Endpoint:     cfg.Keystone.Endpoint,
			AuthEndpoint: cfg.Keystone.AuthEndpoint,
			Email:        cfg.Keystone.Email,
			Password:     cfg.Keystone.Password,
			Timeout:      time.Duration(cfg.Keystone.TimeoutSeconds) * time.Second,
		})
		syncer = keystone.NewSyncer(client, 0)
		slog.Info("keystone mirroring enabled", "endpoint", cfg.Keystone.Endpoint)
	} else {
		slog.Warn("no keystone endpoint configured, mirroring is disabled")
	}

	// The ingest.Syncer interface is satisfied by *keystone.Syncer, but a nil
	// typed pointer must not be wrapped in a non-nil interface value.
	var ingestSyncer ingest.Syncer
	if syncer != nil {
		ingestSyncer = syncer
	}
	service := ingest.NewService(store, arxivClient, ingestSyncer)

	router := api.NewRouter(store, service)

	addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("starting server", "addr", "http://"+addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal, then stop the server and drain the sync queue.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if syncer != nil {
		syncer.Close()
	}
}

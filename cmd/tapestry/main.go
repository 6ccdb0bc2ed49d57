package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nstogner/tapestry/pkg/autosave"
	"github.com/nstogner/tapestry/pkg/config"
	"github.com/nstogner/tapestry/pkg/document"
	"github.com/nstogner/tapestry/pkg/server"
	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/store/files"
	"github.com/nstogner/tapestry/pkg/store/sqlite"
)

func main() {
	// Config.
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger.
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize store.
	st, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mgr := document.NewManager(st)
	defer mgr.Stop()

	srv := server.New(mgr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start autosave in background.
	saved := make(chan struct{})
	if cfg.Autosave > 0 {
		ctrl := autosave.New(mgr, cfg.Autosave)
		go func() {
			defer close(saved)
			if err := ctrl.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Autosave stopped unexpectedly", "error", err)
			}
		}()
	} else {
		close(saved)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	// Start server.
	if err := srv.Start(cfg.Addr); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	stop()
	<-saved
	slog.Info("Server stopped")
}

func openStore(cfg *config.Config) (store.DocumentStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}
	switch cfg.Store {
	case config.StoreFiles:
		return files.New(filepath.Join(cfg.DataDir, "weaves"))
	default:
		return sqlite.New(filepath.Join(cfg.DataDir, "tapestry.db"))
	}
}

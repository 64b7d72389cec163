package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/config"
	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/remote"
	"github.com/expandinAI/particle/internal/settings"
	"github.com/expandinAI/particle/internal/storage"
	"github.com/expandinAI/particle/internal/store"
	psync "github.com/expandinAI/particle/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logWriter := io.Writer(os.Stderr)
	if cfg.Log.Path != "" {
		logWriter = &lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	b := bus.New()

	flatStore, err := flat.Open(cfg.Data.Dir, b)
	if err != nil {
		return fmt.Errorf("open flat store: %w", err)
	}

	if cfg.Data.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Data.DBPath), 0o755); err != nil {
			logger.Warn("failed to prepare database path", "error", err)
		}
	}

	resolver := storage.NewResolver(cfg.Data.DBPath, flatStore, logger)
	backends := resolver.Resolve()
	logger.Info("storage resolved", "mode", backends.Mode)
	if backends.DB != nil {
		defer backends.DB.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := storage.NewRunner(flatStore, resolver, logger)
	if pending, err := runner.HasPendingMigrations(); err != nil {
		logger.Warn("migration check failed", "error", err)
	} else if pending {
		if _, err := runner.RunMigrations(ctx); err != nil {
			logger.Warn("migration pass failed", "error", err)
		}
	}

	fallback := resolver.Flat()
	sessions := store.NewSessionStore(backends, fallback, b, flatStore, logger)
	projects := store.NewProjectStore(backends, fallback, b, logger)
	defer sessions.Close()
	defer projects.Close()

	if err := projects.Load(ctx); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	if err := sessions.Load(ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	logger.Info("stores ready",
		"sessions", len(sessions.All()),
		"projects", len(projects.All()),
		"mode", sessions.Mode())

	// Cross-process change observation only matters while the flat files
	// are authoritative.
	if sessions.Mode() == storage.ModeFlat {
		watcher, err := flat.NewWatcher(b, logger)
		if err != nil {
			logger.Warn("flat store watcher unavailable", "error", err)
		} else if err := watcher.Start(flatStore); err != nil {
			logger.Warn("flat store watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	settingsStore := settings.NewStore(flatStore)
	if cfg.Remote.URL != "" && cfg.Remote.ExternalID != "" {
		go runSync(ctx, cfg, logger, flatStore, settingsStore, backends, b)
	} else {
		logger.Info("remote sync disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// runSync provisions the account, performs the one-time initial upload of
// pre-existing data, then keeps settings in sync on an interval.
func runSync(ctx context.Context, cfg config.Config, logger *slog.Logger, flatStore *flat.Store, settingsStore *settings.Store, backends storage.Backends, b *bus.Bus) {
	client := remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token)

	user, err := client.EnsureUser(ctx, cfg.Remote.ExternalID)
	if err != nil {
		logger.Warn("remote account unavailable, sync disabled", "error", err)
		return
	}

	if _, done, _ := flatStore.GetKey(flat.KeyInitialUploadAt); !done {
		uploader := psync.NewUploader(backends, settingsStore, logger)
		result, err := uploader.PerformInitialUpload(ctx, client, cfg.Remote.ExternalID, func(p psync.Progress) {
			logger.Debug("initial upload progress", "phase", p.Phase, "done", p.Done, "total", p.Total)
		})
		if err != nil {
			logger.Warn("initial upload failed", "error", err)
		} else if result.Success {
			stamp := time.Now().UTC().Format(time.RFC3339Nano)
			if err := flatStore.SetKey(flat.KeyInitialUploadAt, stamp); err != nil {
				logger.Warn("failed to record initial upload", "error", err)
			}
		}
	}

	engine := psync.NewSettingsEngine(settingsStore, client, flatStore, b, logger)
	syncSettings := func() {
		if _, err := engine.Pull(ctx, user.ID); err != nil {
			logger.Warn("settings pull failed", "error", err)
			return
		}
		// A user with no server row yet seeds it from local state.
		if engine.LastSyncedAt().IsZero() {
			if err := engine.Push(ctx, user.ID); err != nil {
				logger.Warn("settings push failed", "error", err)
			}
		}
	}
	syncSettings()

	if cfg.Remote.SyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.Remote.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncSettings()
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

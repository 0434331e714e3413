package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/S1riyS/guestvfs/internal/config"
	"github.com/S1riyS/guestvfs/internal/handler"
	"github.com/S1riyS/guestvfs/internal/middleware"
	"github.com/S1riyS/guestvfs/internal/repository"
	"github.com/S1riyS/guestvfs/internal/service"
	"github.com/S1riyS/guestvfs/internal/vfs"
	"github.com/S1riyS/guestvfs/internal/vfs/memfs"
	"github.com/S1riyS/guestvfs/internal/vfs/pgfs"
	"github.com/S1riyS/guestvfs/pkg/database/postgresql"
	"github.com/S1riyS/guestvfs/pkg/logging"
	"github.com/S1riyS/guestvfs/pkg/logging/slogext"
	"github.com/S1riyS/guestvfs/pkg/logging/slogpretty"
)

const defaultConfigPath = "configs/config.yaml"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg := config.MustLoad(configPath)

	logger := setupLogger(cfg.App)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", slogext.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fs, err := vfs.New(memfs.Driver{}, vfs.Options{
		Logger:             logger.With(slog.String("component", "vfs")),
		MaxOpenFDs:         cfg.VFS.MaxOpenFDs,
		NameTableSize:      cfg.VFS.NameTableSize,
		EnforcePermissions: cfg.VFS.EnforcePermissions,
	})
	if err != nil {
		return fmt.Errorf("failed to create file system: %w", err)
	}
	if err := fs.Init(nil, nil, nil); err != nil {
		return fmt.Errorf("failed to open standard streams: %w", err)
	}
	defer func() {
		if err := fs.Quit(); err != nil {
			logger.Warn("Failed to close streams", slogext.Err(err))
		}
	}()

	syscalls := service.NewSyscallService(fs, cfg.VFS.MaxReadSize)

	// Dependencies
	if cfg.Database.Enabled {
		if err := mountPersistent(ctx, cfg, fs, syscalls, logger); err != nil {
			return err
		}
	}

	h := handler.NewHandler(syscalls)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var root http.Handler = mux
	root = middleware.MetricsMiddleware(mux)
	root = middleware.RequestIDMiddleware(root)
	root = middleware.LoggerMiddleware(logger)(root)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           root,
		ReadHeaderTimeout: cfg.App.DefaultTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Database.Enabled && cfg.VFS.SyncInterval > 0 {
		g.Go(func() error {
			return syscalls.RunAutoSync(gctx, cfg.VFS.SyncInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if !cfg.Database.Enabled {
			return nil
		}
		// final save so the snapshot matches what clients last saw
		return syscalls.Sync(logging.MakeContextWithLogger(shutdownCtx, logger), false)
	})

	return g.Wait()
}

// mountPersistent mounts the Postgres backed tree and fills it from the
// stored snapshot.
func mountPersistent(ctx context.Context, cfg *config.Config, fs *vfs.FS, syscalls service.SyscallService, logger *slog.Logger) error {
	db := postgresql.MustNewClient(ctx, cfg.Database)
	store := repository.NewSnapshotRepository(db)
	driver := pgfs.New(store, logger.With(slog.String("component", "pgfs")), 0)

	mountpoint := cfg.VFS.PersistMountpoint
	if err := fs.MkdirTree(mountpoint, 0o777); err != nil {
		return fmt.Errorf("failed to create %s: %w", mountpoint, err)
	}
	if _, err := fs.Mount(driver, vfs.MountOptions{pgfs.TokenOption: cfg.VFS.PersistToken}, mountpoint); err != nil {
		return fmt.Errorf("failed to mount %s: %w", mountpoint, err)
	}
	if err := syscalls.Sync(ctx, true); err != nil {
		return fmt.Errorf("failed to populate %s: %w", mountpoint, err)
	}
	return nil
}

func setupLogger(cfg config.AppConfig) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if cfg.PrettyLogs {
		return setupPrettySlog(level)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

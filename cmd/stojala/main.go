package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/erazemk/stojala/internal/api"
	"github.com/erazemk/stojala/internal/blobstore"
	"github.com/erazemk/stojala/internal/config"
	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/metrics"
	"github.com/erazemk/stojala/internal/settings"
	"github.com/erazemk/stojala/internal/toast"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If a log file is configured, all levels are also written to it and
// the file is rotated by size.
func setupLogger(cfg config.LogConfig) func() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if cfg.File != "" {
		f := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup
}

func main() {
	fs := flag.NewFlagSet("stojala", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "", "")
	fs.StringVar(&configPath, "c", "", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var dataDir string
	fs.StringVar(&dataDir, "data", "", "")
	fs.StringVar(&dataDir, "d", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var memory bool
	fs.BoolVar(&memory, "memory", false, "")
	fs.BoolVar(&memory, "m", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: stojala [flags]

Flags:
  -c, -config <path>      YAML configuration file (default: none)
  -a, -addr <host:port>   listen address (default: :8080)
  -d, -data <dir>         data directory for documents, blobs and settings (default: ./data)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -m, -memory             keep documents in memory only
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logPath != "" {
		cfg.Log.File = logPath
	}
	if memory {
		cfg.Memory = true
	}

	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	metrics.Init()

	stored, err := settings.Open(filepath.Join(cfg.DataDir, "settings.db"))
	if err != nil {
		return err
	}
	defer stored.Close()

	connect := docstore.SQLiteConnector(cfg.DataDir)
	if cfg.Memory {
		connect = docstore.MemoryConnector(docstore.NewMemory())
		slog.Warn("running with an in-memory store, documents are lost on exit")
	}
	handle := docstore.NewHandle(connect)
	defer handle.Close()

	blobs := blobstore.New(filepath.Join(cfg.DataDir, "blobs"), cfg.PublicBaseURL)
	notices := toast.NewQueue(cfg.NoticeTTL, cfg.NoticeLimit)
	defer notices.Close()

	catalog := inventory.NewCatalog(handle, blobs, inventory.ProcessImage)
	defer catalog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services := &api.Services{
		Context:  ctx,
		Store:    handle,
		Settings: stored,
		Catalog:  catalog,
		Blobs:    blobs,
		Notices:  notices,
	}

	if err := applyStoredConfig(ctx, services, cfg); err != nil {
		// The store can still be configured through the API.
		slog.Error("applying store configuration", "error", err)
	}

	reconciler := inventory.NewReconciler(catalog, cfg.ReconcileAfter)
	scheduler, err := reconciler.Schedule(cfg.ReconcileSchedule)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(services)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", cfg.Addr, "data", cfg.DataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// applyStoredConfig configures the store from the saved settings, falling back
// to the store section of the configuration file.
func applyStoredConfig(ctx context.Context, s *api.Services, cfg config.Config) error {
	record, err := s.Settings.Load()
	switch {
	case err == nil:
		slog.Info("using saved store settings", "saved", record.SavedAt.Format(time.RFC3339))
		return s.Configure(ctx, record.Store)
	case !errors.Is(err, settings.ErrNotFound):
		return err
	case cfg.Store != nil:
		return s.Configure(ctx, *cfg.Store)
	default:
		slog.Warn("store is not configured, waiting for PUT /api/settings")
		return nil
	}
}

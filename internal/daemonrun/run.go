package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"mediaforge/internal/config"
	"mediaforge/internal/daemon"
	"mediaforge/internal/deps"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/engine"
	"mediaforge/internal/logging"
	"mediaforge/internal/preflight"
	"mediaforge/internal/probe"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
	"mediaforge/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the mediaforge daemon and blocks until the context is cancelled
// or the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	pidPath := filepath.Join(cfg.Paths.DataDir, "mediaforge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer st.Close()

	queue, err := dispatch.Open(signalCtx, cfg, st)
	if err != nil {
		logger.Error("open dispatch queue", logging.Error(err), logging.String("backend", cfg.Dispatch.Backend))
		return err
	}

	executor := worker.New(st,
		engine.NewFFmpeg(cfg.Engine.FFmpegBinary, cfg.EngineTimeout(), logger),
		probe.NewFFprobe(cfg.Engine.FFprobeBinary, cfg.ProbeTimeout()),
		cfg.Paths.MediaDir,
		logger,
	)
	pool := worker.NewPool(cfg, queue, executor, logger)
	svc := submit.NewService(cfg, st, queue, logger)

	d, err := daemon.New(cfg, st, queue, pool, svc, logger)
	if err != nil {
		_ = queue.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("mediaforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "mediaforge.log")},
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("dispatch_backend", cfg.Dispatch.Backend),
		logging.Int("workers", cfg.Workflow.Workers),
	}
	for _, status := range statuses {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, status := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required binary unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldErrorHint, "install it or set the binary path under [engine]"),
		)
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediaforge/internal/config"
	"mediaforge/internal/deps"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/preflight"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
	"mediaforge/internal/worker"
)

// Daemon owns the worker pool and the API server.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	queue  dispatch.Queue
	pool   *worker.Pool
	submit *submit.Service
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pool         worker.PoolStatus
	Backend      string
	Queue        dispatch.Stats
	Jobs         map[store.Status]int
	Dependencies []deps.Status
	Checks       []preflight.Result
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, queue dispatch.Queue, pool *worker.Pool, svc *submit.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || queue == nil || pool == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, queue, worker pool, and submit service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "mediaforge.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		queue:    queue,
		pool:     pool,
		submit:   svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.API.Bind, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the worker pool and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediaforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.pool.Stop()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediaforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("dispatch_backend", d.queue.Backend()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediaforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases the queue.
func (d *Daemon) Close() error {
	d.Stop()
	return d.queue.Close()
}

// APIAddress returns the address the API server listens on, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pool:         d.pool.Status(),
		Backend:      d.queue.Backend(),
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
		Checks:       preflight.RunAll(ctx, d.cfg),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.queue.Stats(ctx); err == nil {
		status.Queue = stats
	} else {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	if counts, err := d.store.JobCounts(ctx); err == nil {
		status.Jobs = counts
	} else {
		d.logger.Warn("failed to read job counts", logging.Error(err))
	}
	return status
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/metrics"
	"mediaforge/internal/services"
)

// Executor runs one work unit. Worker is the production implementation.
type Executor interface {
	Execute(ctx context.Context, unit dispatch.WorkUnit) error
}

// Pool runs a fixed number of workers against a consumer.
type Pool struct {
	consumer dispatch.Consumer
	exec     Executor
	logger   *slog.Logger
	workers  int
	owner    string

	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastReclaim time.Time
	busy        int
	executed    int64
}

// PoolOption configures optional Pool behavior.
type PoolOption func(*Pool)

// WithPollInterval overrides the idle poll interval.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeat overrides the heartbeat interval and the silence after which a
// claimed unit is reclaimed.
func WithHeartbeat(interval, timeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.heartbeatInterval = interval
		p.heartbeatTimeout = timeout
	}
}

// NewPool constructs a pool sized and timed from cfg.
func NewPool(cfg *config.Config, consumer dispatch.Consumer, exec Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	hostname, _ := os.Hostname()
	p := &Pool{
		consumer:          consumer,
		exec:              exec,
		logger:            logging.NewComponentLogger(logger, "worker-pool"),
		workers:           cfg.Workflow.Workers,
		owner:             fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		pollInterval:      time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetry:        time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.workers)
	p.mu.Unlock()

	p.logger.Info("worker pool started",
		logging.Int("workers", p.workers),
		logging.String(logging.FieldEventType, "pool_start"),
	)
	for slot := 1; slot <= p.workers; slot++ {
		go p.runWorker(runCtx, slot)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight units to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped", logging.String(logging.FieldEventType, "pool_stop"))
}

func (p *Pool) runWorker(ctx context.Context, slot int) {
	defer p.wg.Done()
	ctx = services.WithWorker(ctx, slot)
	logger := logging.WithContext(ctx, p.logger)
	owner := fmt.Sprintf("%s-w%d", p.owner, slot)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if slot == 1 {
			p.reclaimIfDue(ctx, logger)
		}

		delivery, err := p.consumer.Claim(ctx, owner)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.handleClaimError(ctx, logger, err)
			continue
		}
		if delivery == nil {
			p.wait(ctx, p.pollInterval)
			continue
		}
		p.process(ctx, logger, delivery)
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, delivery *dispatch.Delivery) {
	p.setBusy(1)
	metrics.WorkersBusy.Inc()
	defer func() {
		metrics.WorkersBusy.Dec()
		p.setBusy(-1)
	}()

	err := p.executeWithHeartbeat(ctx, logger, delivery)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("work unit interrupted by shutdown")
			return
		}
		p.setLastError(err)
		logging.ErrorWithContext(logger, "work unit not finished; leaving it for redelivery", "unit_retry",
			logging.Error(err),
			logging.Int("attempt", delivery.Attempt),
			logging.String(logging.FieldErrorHint, "the unit is reclaimed after the heartbeat timeout"),
		)
		return
	}
	if err := delivery.Ack(ctx); err != nil {
		p.setLastError(err)
		logging.WarnWithContext(logger, "ack failed; unit may be redelivered", "unit_ack_failed", logging.Error(err))
	}
	p.mu.Lock()
	p.executed++
	p.mu.Unlock()
}

// executeWithHeartbeat runs the unit while a sibling goroutine keeps the claim
// alive. A panic escaping the executor is reported as an error.
func (p *Pool) executeWithHeartbeat(ctx context.Context, logger *slog.Logger, delivery *dispatch.Delivery) (err error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeatLoop(hbCtx, &hbWG, logger, delivery)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return p.exec.Execute(ctx, delivery.Unit)
}

func (p *Pool) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, delivery *dispatch.Delivery) {
	defer wg.Done()
	if p.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := delivery.Heartbeat(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// reclaimIfDue requeues stale claims at most once per heartbeat interval and
// refreshes the queue depth gauges.
func (p *Pool) reclaimIfDue(ctx context.Context, logger *slog.Logger) {
	if p.heartbeatTimeout <= 0 {
		return
	}
	p.mu.Lock()
	due := time.Since(p.lastReclaim) >= p.heartbeatInterval
	if due {
		p.lastReclaim = time.Now()
	}
	p.mu.Unlock()
	if !due {
		return
	}

	reclaimed, err := p.consumer.Reclaim(ctx, time.Now().Add(-p.heartbeatTimeout))
	if err != nil {
		logging.WarnWithContext(logger, "reclaim stale work units failed; stuck units may remain", "heartbeat_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check dispatch backend access"),
		)
	} else if reclaimed > 0 {
		metrics.RecordReclaimed(reclaimed)
		logger.Info("reclaimed stale work units", logging.Int64("count", reclaimed))
	}
	if stater, ok := p.consumer.(interface {
		Stats(ctx context.Context) (dispatch.Stats, error)
	}); ok {
		if stats, err := stater.Stats(ctx); err == nil {
			metrics.RecordQueue(stats.Queued, stats.Claimed)
		}
	}
}

func (p *Pool) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	p.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim work unit", "queue_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check dispatch backend access"),
	)
	p.wait(ctx, p.errorRetry)
}

func (p *Pool) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

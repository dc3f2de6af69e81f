package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mediaforge/internal/command"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/engine"
	"mediaforge/internal/logging"
	"mediaforge/internal/metrics"
	"mediaforge/internal/probe"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// Worker executes one work unit at a time against the store.
type Worker struct {
	store    *store.Store
	engine   engine.Engine
	prober   probe.Prober
	mediaDir string
	logger   *slog.Logger
}

// New constructs a worker. Derived media is written under mediaDir.
func New(st *store.Store, eng engine.Engine, prober probe.Prober, mediaDir string, logger *slog.Logger) *Worker {
	return &Worker{
		store:    st,
		engine:   eng,
		prober:   prober,
		mediaDir: mediaDir,
		logger:   logging.NewComponentLogger(logger, "worker"),
	}
}

// Execute runs unit to a terminal job status. A nil error means the unit is
// done and may be acknowledged; an error means the outcome was not recorded
// and the unit should be redelivered.
func (w *Worker) Execute(ctx context.Context, unit dispatch.WorkUnit) error {
	ctx = services.WithJobID(ctx, unit.ExternalID)
	ctx = services.WithKind(ctx, string(unit.Kind))
	logger := logging.WithContext(ctx, w.logger)

	sess, err := w.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Release(); err != nil {
			logger.Warn("release store session failed", logging.Error(err))
		}
	}()

	job, err := sess.GetJob(ctx, unit.JobID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(logger, "dropping work unit for unknown job", "unit_orphaned",
				logging.Int64("job_row", unit.JobID),
				logging.String(logging.FieldErrorHint, "the job row was removed after dispatch"),
			)
			return nil
		}
		return err
	}
	if job.Status.IsTerminal() {
		logger.Debug("job already terminal; skipping redelivery", logging.String("status", string(job.Status)))
		return nil
	}
	if _, err := sess.UpdateStatus(ctx, job.ID, store.StatusProcessing, nil); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int64(logging.FieldAssetID, unit.AssetID),
	)
	result := w.run(ctx, sess, unit)
	if result.err != nil && ctx.Err() != nil {
		// Shutdown interrupted the job; leave it processing for redelivery.
		logger.Info("job interrupted by shutdown", logging.Error(result.err))
		return ctx.Err()
	}
	// The outcome is recorded even when shutdown began after the work finished;
	// otherwise a committed derived asset would be produced again on redelivery.
	return w.finalize(context.WithoutCancel(ctx), sess, job, result, started, logger)
}

// run performs the job and never panics.
func (w *Worker) run(ctx context.Context, sess *store.Session, unit dispatch.WorkUnit) (res stepResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(services.Wrap(services.ErrProcessing, "worker", "execute", fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	params, err := unit.DecodeParams()
	if err != nil {
		return failed(services.Wrap(services.ErrValidation, "worker", "decode params", "", err))
	}
	input, err := sess.GetAsset(ctx, unit.AssetID)
	if err != nil {
		return failed(err)
	}
	if unit.Kind == store.KindIngest {
		return w.ingest(ctx, sess, input)
	}
	if !input.Ingested {
		return failed(services.Wrap(services.ErrPrecondition, "worker", "resolve input",
			fmt.Sprintf("asset %d has not been ingested", input.ID), nil))
	}
	return w.transform(ctx, sess, unit, params, input)
}

func (w *Worker) ingest(ctx context.Context, sess *store.Session, input *store.Asset) stepResult {
	meta, err := w.prober.Probe(ctx, input.Path)
	if err != nil {
		return failed(err)
	}
	if _, err := sess.UpdateMetadata(ctx, input.ID, meta.DurationSeconds, meta.SizeBytes); err != nil {
		return failed(err)
	}
	return stepResult{}
}

func (w *Worker) transform(ctx context.Context, sess *store.Session, unit dispatch.WorkUnit, params store.Params, input *store.Asset) stepResult {
	p, err := planFor(unit.Kind, params, input)
	if err != nil {
		return failed(err)
	}
	desc, err := command.Build(p.op)
	if err != nil {
		return failed(err)
	}

	output := strings.TrimSpace(unit.OutputPathHint)
	if output == "" {
		output = outputPath(w.mediaDir, p.prefix, input.ID)
	}
	inputs := append([]string{input.Path}, desc.Extra...)

	engineStart := time.Now()
	err = w.engine.Transform(ctx, inputs, desc, output)
	metrics.RecordEngine(string(unit.Kind), engineStatus(err), time.Since(engineStart).Seconds())
	if err != nil {
		removeOutput(output)
		return failed(err)
	}

	// Output exists from here on; shutdown must not strand it unrecorded.
	record := context.WithoutCancel(ctx)
	meta, err := w.prober.Probe(record, output)
	if err != nil {
		removeOutput(output)
		return failed(err)
	}
	parentID := input.ID
	derived, err := sess.CreateAsset(record, store.NewAsset{
		Name:            derivedName(p.prefix, input),
		OriginalName:    input.OriginalName,
		Path:            output,
		DurationSeconds: meta.DurationSeconds,
		SizeBytes:       meta.SizeBytes,
		Ingested:        true,
		Quality:         p.quality,
		ParentID:        &parentID,
	})
	if err != nil {
		removeOutput(output)
		return failed(err)
	}
	return stepResult{produced: &derived.ID}
}

// finalize writes the single terminal status for job.
func (w *Worker) finalize(ctx context.Context, sess *store.Session, job *store.Job, res stepResult, started time.Time, logger *slog.Logger) error {
	status := store.StatusCompleted
	patch := &store.Result{ProducedAssetID: res.produced}
	if res.err != nil {
		status = store.StatusFailed
		patch = &store.Result{Error: services.FailureMessage(res.err)}
	}
	if _, err := sess.UpdateStatus(ctx, job.ID, status, patch); err != nil {
		logging.ErrorWithContext(logger, "failed to record job outcome", "job_finalize_failed",
			logging.Error(err),
			logging.String("status", string(status)),
			logging.String(logging.FieldErrorHint, "check database access; the unit will be redelivered"),
		)
		return fmt.Errorf("record %s: %w", status, err)
	}

	elapsed := time.Since(started)
	metrics.RecordJob(string(job.Kind), string(status), elapsed.Seconds())
	if res.err != nil {
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(res.err),
			logging.String("error_kind", string(services.Kind(res.err))),
			logging.Duration("job_duration", elapsed),
		)
		return nil
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", elapsed),
	}
	if res.produced != nil {
		attrs = append(attrs, logging.Int64("produced_asset_id", *res.produced))
	}
	logger.Info("job completed", logging.Args(attrs...)...)
	return nil
}

func engineStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return string(services.Kind(err))
}

func removeOutput(path string) {
	_ = os.Remove(path)
}

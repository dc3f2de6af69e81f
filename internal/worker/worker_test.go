package worker_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mediaforge/internal/probe"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
	"mediaforge/internal/testsupport"
)

func TestIngestRecordsProbedMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	path := filepath.Join(e.cfg.Paths.MediaDir, "upload.mp4")
	testsupport.WriteFile(t, path, 64)
	asset, err := e.store.CreateAsset(ctx, store.NewAsset{Name: "clip.mp4", Path: path})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if asset.Ingested || asset.DurationSeconds != 0 {
		t.Fatalf("expected fresh upload, got %+v", asset)
	}
	e.prober.meta = probe.Metadata{DurationSeconds: 12.3, SizeBytes: 64}

	unit := e.submit(t, asset, store.KindIngest, nil)
	if err := e.worker.Execute(ctx, unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	job := e.job(t, unit.JobID)
	if job.Status != store.StatusCompleted || job.CompletedAt == nil {
		t.Fatalf("expected completed job, got %+v", job)
	}
	if job.Result.ProducedAssetID != nil {
		t.Fatalf("ingest must not produce an asset, got %d", *job.Result.ProducedAssetID)
	}
	updated, err := e.store.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if !updated.Ingested || updated.DurationSeconds != 12.3 || updated.SizeBytes != 64 {
		t.Fatalf("metadata not recorded: %+v", updated)
	}
	if len(e.engine.Calls()) != 0 {
		t.Fatal("ingest must not invoke the engine")
	}
}

func TestTrimProducesChildAsset(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	e.prober.meta = probe.Metadata{DurationSeconds: 3, SizeBytes: 40}

	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 2, End: 5})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	job := e.job(t, unit.JobID)
	if job.Status != store.StatusCompleted || job.Result.ProducedAssetID == nil {
		t.Fatalf("expected completed job with product, got %+v", job)
	}
	if got := job.Parameters()["produced_asset_id"]; got != *job.Result.ProducedAssetID {
		t.Fatalf("produced_asset_id not visible in parameters: %v", job.Parameters())
	}
	child, err := e.store.GetAsset(context.Background(), *job.Result.ProducedAssetID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != source.ID || child.ID <= source.ID {
		t.Fatalf("unexpected lineage: %+v", child)
	}
	if child.Quality != source.Quality || !child.Ingested {
		t.Fatalf("unexpected derived asset: %+v", child)
	}
	if child.Name != "trimmed_a.mp4" || child.DurationSeconds != 3 || child.SizeBytes != 40 {
		t.Fatalf("unexpected derived metadata: %+v", child)
	}
	if !strings.HasPrefix(filepath.Base(child.Path), "trimmed_") || filepath.Dir(child.Path) != e.cfg.Paths.MediaDir {
		t.Fatalf("unexpected output path %q", child.Path)
	}

	calls := e.engine.Calls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0].inputs, []string{source.Path}) {
		t.Fatalf("unexpected engine calls: %+v", calls)
	}
	if !reflect.DeepEqual(calls[0].desc.Args, []string{"-ss", "2", "-to", "5", "-c", "copy"}) {
		t.Fatalf("unexpected trim args %v", calls[0].desc.Args)
	}
}

func TestDerivedAssetQualityAndNaming(t *testing.T) {
	end := 4.0
	tests := []struct {
		name    string
		kind    store.Kind
		params  store.Params
		prefix  string
		quality string
		inputs  int
	}{
		{"quality", store.KindQuality, store.QualityParams{Quality: "720p"}, "720p_", "720p", 1},
		{"b-roll", store.KindBRollOverlay, store.OverlayParams{OverlayPath: "/ov/city.mp4", Position: "top-left", Start: 1, End: &end}, "with_broll_", store.QualityOriginal, 2},
		{"image", store.KindImageOverlay, store.OverlayParams{OverlayPath: "/ov/logo.png", Position: "center"}, "with_image_", store.QualityOriginal, 2},
		{"watermark", store.KindWatermark, store.WatermarkParams{WatermarkPath: "/ov/mark.png", Position: "bottom-right"}, "with_watermark_", store.QualityOriginal, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
			unit := e.submit(t, source, tt.kind, tt.params)
			if err := e.worker.Execute(context.Background(), unit); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			job := e.job(t, unit.JobID)
			if job.Status != store.StatusCompleted {
				t.Fatalf("job %s: %s", job.Status, job.Result.Error)
			}
			child, err := e.store.GetAsset(context.Background(), *job.Result.ProducedAssetID)
			if err != nil {
				t.Fatalf("GetAsset: %v", err)
			}
			if child.Name != tt.prefix+"a.mp4" || child.Quality != tt.quality {
				t.Fatalf("unexpected derived asset %+v", child)
			}
			if calls := e.engine.Calls(); len(calls[0].inputs) != tt.inputs {
				t.Fatalf("expected %d engine inputs, got %v", tt.inputs, calls[0].inputs)
			}
		})
	}
}

func TestEngineFailureFailsJobWithoutAsset(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	e.engine.err = services.Wrap(services.ErrExternalTool, "engine", "transform", "ffmpeg exited with status 1", nil)
	before := e.assetCount(t)

	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	job := e.job(t, unit.JobID)
	if job.Status != store.StatusFailed || job.CompletedAt == nil {
		t.Fatalf("expected failed job, got %+v", job)
	}
	message, _ := job.Parameters()["error"].(string)
	if !strings.Contains(message, "ffmpeg exited") {
		t.Fatalf("expected engine error in parameters, got %q", message)
	}
	if job.Result.ProducedAssetID != nil || e.assetCount(t) != before {
		t.Fatal("failed job must not create an asset")
	}
	if output := e.engine.Calls()[0].output; fileExists(output) {
		t.Fatalf("partial output %s left behind", output)
	}
}

func TestEngineTimeoutRecordsTimeout(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	e.engine.err = services.Wrap(services.ErrTimeout, "engine", "transform", "exceeded 1s", context.DeadlineExceeded)

	unit := e.submit(t, source, store.KindQuality, store.QualityParams{Quality: "480p"})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job := e.job(t, unit.JobID)
	if job.Status != store.StatusFailed || job.Result.Error != "timeout" {
		t.Fatalf("expected timeout failure, got %s %q", job.Status, job.Result.Error)
	}
}

func TestTrimOnUningestedAssetIsPrecondition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	path := filepath.Join(e.cfg.Paths.MediaDir, "pending.mp4")
	testsupport.WriteFile(t, path, 64)
	source, err := e.store.CreateAsset(ctx, store.NewAsset{Name: "pending.mp4", Path: path})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	before := e.assetCount(t)

	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})
	if err := e.worker.Execute(ctx, unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job := e.job(t, unit.JobID)
	if job.Status != store.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if !strings.Contains(job.Result.Error, services.ErrPrecondition.Error()) {
		t.Fatalf("expected precondition message, got %q", job.Result.Error)
	}
	if e.assetCount(t) != before || len(e.engine.Calls()) != 0 {
		t.Fatal("precondition failure must not run the engine or create assets")
	}
}

func TestProbeFailureRemovesOutput(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	e.prober.err = services.Wrap(services.ErrProcessing, "probe", "inspect", "no duration", nil)

	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job := e.job(t, unit.JobID); job.Status != store.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if output := e.engine.Calls()[0].output; fileExists(output) {
		t.Fatalf("output %s should be removed after probe failure", output)
	}
}

func TestPanicBecomesFailedJob(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	e.engine.panic = "boom"

	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job := e.job(t, unit.JobID)
	if job.Status != store.StatusFailed || !strings.Contains(job.Result.Error, "panic: boom") {
		t.Fatalf("expected recovered panic, got %s %q", job.Status, job.Result.Error)
	}
}

func TestInvalidParamsFailJob(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)

	unit := e.submit(t, source, store.KindQuality, store.QualityParams{Quality: "4K"})
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job := e.job(t, unit.JobID)
	if job.Status != store.StatusFailed || !strings.Contains(job.Result.Error, services.ErrValidation.Error()) {
		t.Fatalf("expected validation failure, got %s %q", job.Status, job.Result.Error)
	}
}

func TestRedeliveryOfTerminalJobIsSkipped(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})

	for i := 0; i < 2; i++ {
		if err := e.worker.Execute(context.Background(), unit); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}
	if calls := e.engine.Calls(); len(calls) != 1 {
		t.Fatalf("expected one engine run, got %d", len(calls))
	}
}

func TestUnknownJobIsDropped(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})
	unit.JobID = 9999

	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("expected orphaned unit to be dropped, got %v", err)
	}
}

func TestCancelledExecutionLeavesJobProcessing(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.engine.hook = cancel
	e.engine.err = services.Wrap(services.ErrProcessing, "engine", "transform", "cancelled", context.Canceled)

	err := e.worker.Execute(ctx, unit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if job := e.job(t, unit.JobID); job.Status != store.StatusProcessing {
		t.Fatalf("expected job left processing for redelivery, got %s", job.Status)
	}
}

func TestShutdownAfterEngineSuccessStillRecordsOutcome(t *testing.T) {
	e := newEnv(t)
	source := testsupport.MustCreateAsset(t, e.cfg, e.store, "a.mp4", 128)
	unit := e.submit(t, source, store.KindTrim, store.TrimParams{Start: 0, End: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Shutdown lands while ffmpeg is finishing successfully.
	e.engine.hook = cancel

	if err := e.worker.Execute(ctx, unit); err != nil {
		t.Fatalf("expected finished work to be recorded, got %v", err)
	}
	job := e.job(t, unit.JobID)
	if job.Status != store.StatusCompleted || job.Result.ProducedAssetID == nil {
		t.Fatalf("expected completed job with produced asset, got %s %+v", job.Status, job.Result)
	}

	// A redelivery of the same unit must not derive a second asset.
	if err := e.worker.Execute(context.Background(), unit); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if n := e.assetCount(t); n != 2 {
		t.Fatalf("expected source plus one derived asset, got %d", n)
	}
}

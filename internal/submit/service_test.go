package submit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
	"mediaforge/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	queue   *dispatch.SQLiteQueue
	service *submit.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	queue := dispatch.NewSQLite(st)
	return fixture{cfg: cfg, store: st, queue: queue, service: submit.NewService(cfg, st, queue, logging.NewNop())}
}

func (f fixture) queued(t *testing.T) int {
	t.Helper()
	stats, err := f.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return stats.Queued
}

func (f fixture) jobCount(t *testing.T) int {
	t.Helper()
	jobs, err := f.store.ListJobs(context.Background(), store.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	return len(jobs)
}

func TestUploadCopiesAndQueuesIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := testsupport.WriteBytes(t, filepath.Join(t.TempDir(), "holiday.mp4"), testsupport.MP4Header)

	sub, err := f.service.Upload(ctx, source)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if sub.Kind != store.KindIngest || sub.JobID == "" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	asset, err := f.service.GetAsset(ctx, sub.AssetID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Name != "holiday.mp4" || asset.OriginalName != "holiday.mp4" || asset.Ingested {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if filepath.Dir(asset.Path) != f.cfg.Paths.MediaDir || asset.Path == source {
		t.Fatalf("expected copy in media dir, got %q", asset.Path)
	}
	if _, err := os.Stat(asset.Path); err != nil {
		t.Fatalf("copied file missing: %v", err)
	}

	view, err := f.service.Status(ctx, sub.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != store.StatusPending || view.AssetID != sub.AssetID {
		t.Fatalf("unexpected job view %+v", view)
	}
	if f.queued(t) != 1 {
		t.Fatalf("expected one queued unit")
	}
}

func TestUploadRejectsNonMedia(t *testing.T) {
	f := newFixture(t)
	source := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(source, []byte("just some text\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := f.service.Upload(context.Background(), source)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n, _ := f.store.CountAssets(context.Background()); n != 0 {
		t.Fatalf("expected no asset rows, got %d", n)
	}

	if _, err := f.service.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.mp4")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing source, got %v", err)
	}
}

func TestUploadHonoursUploadDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := t.TempDir()
	f.cfg.Paths.UploadDir = root

	inside := testsupport.WriteBytes(t, filepath.Join(root, "day1", "clip.mp4"), testsupport.MP4Header)
	if _, err := f.service.Upload(ctx, inside); err != nil {
		t.Fatalf("Upload inside upload dir: %v", err)
	}

	outside := testsupport.WriteBytes(t, filepath.Join(t.TempDir(), "secret.mp4"), testsupport.MP4Header)
	link := filepath.Join(root, "link.mp4")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	tests := []struct {
		name string
		path string
	}{
		{"outside root", outside},
		{"dot-dot escape", root + "/day1/../../" + filepath.Base(filepath.Dir(outside)) + "/secret.mp4"},
		{"symlink out of root", link},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.Upload(ctx, tt.path); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if n, _ := f.store.CountAssets(ctx); n != 1 {
		t.Fatalf("expected only the accepted upload recorded, got %d assets", n)
	}
}

func TestUploadAcceptsStandInMedia(t *testing.T) {
	f := newFixture(t)
	source := filepath.Join(t.TempDir(), "take.mp4")
	testsupport.WriteFile(t, source, 256)
	if _, err := f.service.Upload(context.Background(), source); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestRejectedSubmissionsCreateNoJob(t *testing.T) {
	f := newFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "a.mp4", 128)
	ctx := context.Background()

	tests := []struct {
		name   string
		submit func() error
		marker error
	}{
		{"4K quality", func() error { _, err := f.service.Quality(ctx, asset.ID, "4K"); return err }, services.ErrValidation},
		{"inverted trim", func() error { _, err := f.service.Trim(ctx, asset.ID, 5, 2); return err }, services.ErrValidation},
		{"negative trim", func() error { _, err := f.service.Trim(ctx, asset.ID, -1, 2); return err }, services.ErrValidation},
		{"unknown position", func() error {
			_, err := f.service.Watermark(ctx, asset.ID, "logo.png", "middle")
			return err
		}, services.ErrValidation},
		{"missing overlay", func() error {
			_, err := f.service.BRollOverlay(ctx, asset.ID, submit.OverlayRequest{Source: "nope", Position: "center"})
			return err
		}, services.ErrNotFound},
		{"unknown asset", func() error { _, err := f.service.Trim(ctx, 999, 0, 1); return err }, services.ErrNotFound},
		{"unknown kind", func() error { _, err := f.service.Submit(ctx, "blur", asset.ID, nil); return err }, services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.submit(); !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if f.jobCount(t) != 0 || f.queued(t) != 0 {
				t.Fatal("rejected submission left a job or work unit behind")
			}
		})
	}
}

func TestQualityIsCanonicalized(t *testing.T) {
	f := newFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "a.mp4", 128)
	sub, err := f.service.Quality(context.Background(), asset.ID, " 720P ")
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	view, err := f.service.Status(context.Background(), sub.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Parameters["quality"] != "720p" {
		t.Fatalf("expected canonical tier, got %v", view.Parameters)
	}
}

func TestBRollResolvesCatalogName(t *testing.T) {
	f := newFixture(t)
	asset := testsupport.MustCreateAsset(t, f.cfg, f.store, "a.mp4", 128)
	clip := testsupport.WriteBytes(t, filepath.Join(f.cfg.Paths.OverlayDir, "city.mp4"), testsupport.MP4Header)
	end := 6.0

	sub, err := f.service.BRollOverlay(context.Background(), asset.ID, submit.OverlayRequest{
		Source: "city", Position: "Top Right", Start: 2, End: &end,
	})
	if err != nil {
		t.Fatalf("BRollOverlay: %v", err)
	}
	job, err := f.store.GetJobByExternalID(context.Background(), sub.JobID)
	if err != nil {
		t.Fatalf("GetJobByExternalID: %v", err)
	}
	params, ok := job.Params.(store.OverlayParams)
	if !ok {
		t.Fatalf("unexpected params %#v", job.Params)
	}
	if params.OverlayPath != clip || params.Position != "top-right" || params.End == nil || *params.End != 6 {
		t.Fatalf("unexpected overlay params %+v", params)
	}
}

type failingDispatcher struct{}

func (failingDispatcher) Enqueue(context.Context, dispatch.WorkUnit) error {
	return errors.New("broker unavailable")
}

func TestEnqueueFailureDiscardsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := submit.NewService(cfg, st, failingDispatcher{}, logging.NewNop())
	asset := testsupport.MustCreateAsset(t, cfg, st, "a.mp4", 128)

	sub, err := service.Trim(context.Background(), asset.ID, 0, 1)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if sub.JobID != "" {
		t.Fatalf("expected no job id for a failed submission, got %q", sub.JobID)
	}
	jobs, err := st.ListJobs(context.Background(), store.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected undispatched job discarded, got %+v", jobs[0])
	}
}

func TestListOverlays(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteBytes(t, filepath.Join(f.cfg.Paths.OverlayDir, "logo.png"), testsupport.PNGHeader)
	testsupport.WriteBytes(t, filepath.Join(f.cfg.Paths.OverlayDir, "city.mp4"), testsupport.MP4Header)
	testsupport.WriteBytes(t, filepath.Join(f.cfg.Paths.OverlayDir, "README.txt"), []byte("overlay notes"))

	overlays, err := f.service.ListOverlays()
	if err != nil {
		t.Fatalf("ListOverlays: %v", err)
	}
	if len(overlays) != 2 || overlays[0].Name != "city" || overlays[1].Name != "logo" {
		t.Fatalf("unexpected catalog %+v", overlays)
	}
	if !overlays[0].IsVideo() || overlays[1].IsVideo() {
		t.Fatalf("unexpected media types %+v", overlays)
	}
}

func TestListOverlaysMissingDir(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.OverlayDir = filepath.Join(t.TempDir(), "absent")
	overlays, err := f.service.ListOverlays()
	if err != nil || len(overlays) != 0 {
		t.Fatalf("expected empty catalog, got %v %v", overlays, err)
	}
}

func TestExportAndChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := testsupport.MustCreateAsset(t, f.cfg, f.store, "a.mp4", 128)
	childPath := filepath.Join(f.cfg.Paths.MediaDir, "trimmed_1_x.mp4")
	testsupport.WriteFile(t, childPath, 32)
	parentID := parent.ID
	child, err := f.store.CreateAsset(ctx, store.NewAsset{Name: "trimmed_a.mp4", Path: childPath, Ingested: true, ParentID: &parentID})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	children, err := f.service.Children(ctx, parent.ID)
	if err != nil || len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("Children = %+v, %v", children, err)
	}
	if _, err := f.service.Children(ctx, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	dest := t.TempDir()
	written, err := f.service.ExportAsset(ctx, child.ID, dest)
	if err != nil {
		t.Fatalf("ExportAsset: %v", err)
	}
	if written != filepath.Join(dest, "trimmed_a.mp4") {
		t.Fatalf("unexpected export path %q", written)
	}
	info, err := os.Stat(written)
	if err != nil || info.Size() != 32 {
		t.Fatalf("exported file: %v %v", info, err)
	}
	if _, err := f.service.ExportAsset(ctx, child.ID, dest); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
}

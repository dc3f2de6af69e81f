package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mediaforge/internal/command"
	"mediaforge/internal/config"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/logging"
	"mediaforge/internal/probe"
	"mediaforge/internal/store"
	"mediaforge/internal/testsupport"
	"mediaforge/internal/worker"
)

type engineCall struct {
	inputs []string
	desc   command.Descriptor
	output string
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []engineCall
	err   error
	panic string
	hook  func()
}

func (f *fakeEngine) Transform(_ context.Context, inputs []string, desc command.Descriptor, output string) error {
	f.mu.Lock()
	f.calls = append(f.calls, engineCall{inputs: inputs, desc: desc, output: output})
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	if f.panic != "" {
		panic(f.panic)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(output, []byte("video"), 0o644); err != nil {
		return err
	}
	return f.err
}

func (f *fakeEngine) Calls() []engineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engineCall(nil), f.calls...)
}

type fakeProber struct {
	mu    sync.Mutex
	meta  probe.Metadata
	err   error
	paths []string
}

func (f *fakeProber) Probe(_ context.Context, path string) (probe.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return probe.Metadata{}, f.err
	}
	return f.meta, nil
}

type env struct {
	cfg    *config.Config
	store  *store.Store
	engine *fakeEngine
	prober *fakeProber
	worker *worker.Worker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng := &fakeEngine{}
	prober := &fakeProber{meta: probe.Metadata{DurationSeconds: 3, SizeBytes: 5}}
	return &env{
		cfg:    cfg,
		store:  st,
		engine: eng,
		prober: prober,
		worker: worker.New(st, eng, prober, cfg.Paths.MediaDir, logging.NewNop()),
	}
}

// submit records a pending job and returns its work unit, the way the
// submission service does.
func (e *env) submit(t *testing.T, asset *store.Asset, kind store.Kind, params store.Params) dispatch.WorkUnit {
	t.Helper()
	job, err := e.store.CreateJob(context.Background(), "", asset.ID, kind, params)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	unit, err := dispatch.NewWorkUnit(job, asset, "")
	if err != nil {
		t.Fatalf("NewWorkUnit: %v", err)
	}
	return unit
}

func (e *env) job(t *testing.T, id int64) *store.Job {
	t.Helper()
	job, err := e.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func (e *env) assetCount(t *testing.T) int64 {
	t.Helper()
	n, err := e.store.CountAssets(context.Background())
	if err != nil {
		t.Fatalf("CountAssets: %v", err)
	}
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

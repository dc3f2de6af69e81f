package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediaforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OverlayDir = filepath.Join(base, "overlays")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Engine.TimeoutSeconds = 30
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the worker pool size on the test config.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithEngineTimeout sets the transform engine timeout in seconds.
func WithEngineTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.TimeoutSeconds = seconds
	}
}

// WithStubbedBinaries writes executables that exit successfully for the
// provided names and prepends them to PATH. If names is empty, ffmpeg and
// ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WriteScript writes an executable shell script named name into dir and
// returns its path. body is placed after the shebang line.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

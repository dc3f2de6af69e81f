package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediaforge/internal/command"
	"mediaforge/internal/logging"
	"mediaforge/internal/services"
)

// Engine turns inputs into outputPath according to a command descriptor.
type Engine interface {
	Transform(ctx context.Context, inputs []string, desc command.Descriptor, outputPath string) error
}

// stderrTailBytes bounds the diagnostic text kept from a failed run.
const stderrTailBytes = 4096

// FFmpeg invokes the ffmpeg binary.
type FFmpeg struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewFFmpeg returns an engine using binary (ffmpeg when empty).
func NewFFmpeg(binary string, timeout time.Duration, logger *slog.Logger) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, Timeout: timeout, Logger: logging.NewComponentLogger(logger, "engine")}
}

// Args returns the full argument list for a run.
func Args(inputs []string, desc command.Descriptor, outputPath string) []string {
	args := make([]string, 0, 6+len(inputs)*2+len(desc.Args))
	args = append(args, "-y", "-hide_banner", "-loglevel", "error")
	for _, input := range inputs {
		args = append(args, "-i", input)
	}
	args = append(args, desc.Args...)
	return append(args, outputPath)
}

// Transform runs ffmpeg and waits for it to exit.
func (f *FFmpeg) Transform(ctx context.Context, inputs []string, desc command.Descriptor, outputPath string) error {
	if len(inputs) != desc.Inputs {
		return services.Wrap(services.ErrValidation, "engine", "transform",
			fmt.Sprintf("descriptor expects %d inputs, got %d", desc.Inputs, len(inputs)), nil)
	}
	if strings.TrimSpace(outputPath) == "" {
		return services.Wrap(services.ErrValidation, "engine", "transform", "output path is required", nil)
	}
	for _, input := range inputs {
		if _, err := os.Stat(input); err != nil {
			return services.Wrap(services.ErrNotFound, "engine", "transform", "input "+input, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Wrap(services.ErrProcessing, "engine", "transform", "create output directory", err)
	}

	runCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := Args(inputs, desc, outputPath)
	logger := logging.WithContext(ctx, f.logger())
	logger.Debug("engine starting", logging.String("binary", f.Binary), logging.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(runCtx, f.Binary, args...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	if runErr == nil {
		info, err := os.Stat(outputPath)
		if err != nil || info.Size() == 0 {
			removePartial(outputPath)
			return services.Wrap(services.ErrProcessing, "engine", "transform", "engine produced no output", err)
		}
		logger.Debug("engine finished", logging.Duration("elapsed", time.Since(started)))
		return nil
	}

	removePartial(outputPath)
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		logging.WarnWithContext(logger, "engine timed out", "engine_timeout",
			logging.Duration("timeout", f.Timeout),
			logging.String(logging.FieldErrorHint, "raise engine.timeout_seconds for long inputs"))
		return services.Wrap(services.ErrTimeout, "engine", "transform",
			fmt.Sprintf("exceeded %s", f.Timeout), runErr)
	case ctx.Err() != nil:
		return services.Wrap(services.ErrProcessing, "engine", "transform", "cancelled", ctx.Err())
	default:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffmpeg failed"
		}
		return services.Wrap(services.ErrExternalTool, "engine", "transform", detail, runErr)
	}
}

func (f *FFmpeg) logger() *slog.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger
}

func removePartial(path string) {
	_ = os.Remove(path)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

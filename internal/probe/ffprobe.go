package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediaforge/internal/services"
)

// Metadata is what ingest records on an asset.
type Metadata struct {
	DurationSeconds float64
	SizeBytes       int64
	Width           int
	Height          int
	VideoStreams    int
	AudioStreams    int
}

// Prober reads metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	d := parseFloat(r.Format.Duration)
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func (r Result) streamCount(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

func (r Result) firstVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// commandContext is swapped by tests.
var commandContext = exec.CommandContext

// FFprobe probes files with the ffprobe binary.
type FFprobe struct {
	Binary  string
	Timeout time.Duration
}

// NewFFprobe returns a prober using binary (ffprobe when empty).
func NewFFprobe(binary string, timeout time.Duration) *FFprobe {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{Binary: binary, Timeout: timeout}
}

// Inspect runs ffprobe against path and decodes the JSON response.
func (p *FFprobe) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "probe", "inspect", "empty path", nil)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := commandContext(ctx, p.Binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "probe", "inspect", path, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		return Result{}, services.Wrap(services.ErrExternalTool, "probe", "inspect", detail, err)
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "probe", "parse", "invalid ffprobe output", err)
	}
	return result, nil
}

// Probe returns duration and size for path. A file with no readable duration
// is reported as a processing error.
func (p *FFprobe) Probe(ctx context.Context, path string) (Metadata, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return Metadata{}, services.Wrap(services.ErrNotFound, "probe", "stat", path, statErr)
		}
		return Metadata{}, services.Wrap(services.ErrProcessing, "probe", "stat", path, statErr)
	}

	result, err := p.Inspect(ctx, path)
	if err != nil {
		return Metadata{}, err
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return Metadata{}, services.Wrap(services.ErrProcessing, "probe", "duration",
			fmt.Sprintf("no duration reported for %s", path), nil)
	}

	meta := Metadata{
		DurationSeconds: duration,
		SizeBytes:       info.Size(),
		VideoStreams:    result.streamCount("video"),
		AudioStreams:    result.streamCount("audio"),
	}
	if meta.SizeBytes <= 0 {
		meta.SizeBytes = result.SizeBytes()
	}
	if video, ok := result.firstVideo(); ok {
		meta.Width = video.Width
		meta.Height = video.Height
	}
	return meta, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

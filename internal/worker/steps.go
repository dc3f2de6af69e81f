package worker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mediaforge/internal/command"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// stepResult is the outcome of executing a unit. A nil err means success;
// produced is set when the job created a derived asset.
type stepResult struct {
	produced *int64
	err      error
}

func failed(err error) stepResult { return stepResult{err: err} }

// plan is a transform ready to hand to the engine.
type plan struct {
	op      command.Operation
	prefix  string
	quality string
}

// planFor maps typed job params onto a command operation, the derived-name
// prefix, and the quality label of the result.
func planFor(kind store.Kind, params store.Params, input *store.Asset) (plan, error) {
	switch p := params.(type) {
	case store.TrimParams:
		return plan{op: command.Trim{Start: p.Start, End: p.End}, prefix: "trimmed", quality: input.Quality}, nil
	case store.QualityParams:
		tier, err := command.ParseQuality(p.Quality)
		if err != nil {
			return plan{}, err
		}
		return plan{op: command.Quality{Tier: tier}, prefix: string(tier), quality: string(tier)}, nil
	case store.OverlayParams:
		position, err := command.ParsePosition(p.Position)
		if err != nil {
			return plan{}, err
		}
		op := command.Overlay{
			Source:   p.OverlayPath,
			Position: position,
			Timing:   command.Timing{Start: p.Start, End: p.End},
		}
		return plan{op: op, prefix: overlayPrefix(kind), quality: input.Quality}, nil
	case store.WatermarkParams:
		position, err := command.ParsePosition(p.Position)
		if err != nil {
			return plan{}, err
		}
		op := command.Watermark{Source: p.WatermarkPath, Position: position}
		return plan{op: op, prefix: "with_watermark", quality: input.Quality}, nil
	default:
		return plan{}, services.Wrap(services.ErrValidation, "worker", "plan", fmt.Sprintf("unsupported params %T", params), nil)
	}
}

// overlayPrefix distinguishes the two overlay kinds, which share params.
func overlayPrefix(kind store.Kind) string {
	if kind == store.KindImageOverlay {
		return "with_image"
	}
	return "with_broll"
}

// outputPath returns a fresh file under mediaDir so concurrent jobs on the
// same asset never collide.
func outputPath(mediaDir, prefix string, assetID int64) string {
	return filepath.Join(mediaDir, fmt.Sprintf("%s_%d_%s.mp4", prefix, assetID, uuid.NewString()))
}

// derivedName is the display name of an asset produced from input.
func derivedName(prefix string, input *store.Asset) string {
	base := strings.TrimSpace(input.Name)
	if base == "" {
		base = filepath.Base(input.Path)
	}
	return prefix + "_" + base
}

package command

import (
	"fmt"
	"strings"

	"mediaforge/internal/services"
)

// Operation is a validated-or-not transform request. Build validates it.
type Operation interface {
	// Inputs is the number of engine inputs the operation consumes.
	Inputs() int
}

// Trim keeps [Start, End) of the input without re-encoding.
type Trim struct {
	Start float64
	End   float64
}

// Quality re-encodes the input to a tier.
type Quality struct {
	Tier Tier
}

// Overlay composites a second input (video or image) over the first at a
// position, optionally gated in time.
type Overlay struct {
	Source   string
	Position Position
	Timing   Timing
}

// Watermark composites a second input over the whole first input.
type Watermark struct {
	Source   string
	Position Position
}

func (Trim) Inputs() int      { return 1 }
func (Quality) Inputs() int   { return 1 }
func (Overlay) Inputs() int   { return 2 }
func (Watermark) Inputs() int { return 2 }

// Descriptor is the engine-ready form of an operation: the arguments placed
// between the inputs and the output path. Extra holds inputs the operation
// brings beyond the main one.
type Descriptor struct {
	Inputs int
	Extra  []string
	Args   []string
}

// String renders the descriptor for logs.
func (d Descriptor) String() string {
	return strings.Join(d.Args, " ")
}

// Build validates op and returns its descriptor.
func Build(op Operation) (Descriptor, error) {
	switch o := op.(type) {
	case Trim:
		return buildTrim(o)
	case Quality:
		return buildQuality(o)
	case Overlay:
		return buildOverlay(o)
	case Watermark:
		return buildWatermark(o)
	case nil:
		return Descriptor{}, services.Wrap(services.ErrValidation, "command", "build", "operation is required", nil)
	default:
		return Descriptor{}, services.Wrap(services.ErrValidation, "command", "build",
			fmt.Sprintf("unsupported operation %T", op), nil)
	}
}

func buildTrim(o Trim) (Descriptor, error) {
	end := o.End
	if err := (Timing{Start: o.Start, End: &end}).Validate(); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Inputs: 1,
		Args:   []string{"-ss", formatSeconds(o.Start), "-to", formatSeconds(o.End), "-c", "copy"},
	}, nil
}

func buildQuality(o Quality) (Descriptor, error) {
	preset, err := QualityPreset(o.Tier)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Inputs: 1,
		Args:   []string{"-s", preset.Size(), "-b:v", preset.Bitrate(), "-c:a", "copy"},
	}, nil
}

func buildOverlay(o Overlay) (Descriptor, error) {
	if strings.TrimSpace(o.Source) == "" {
		return Descriptor{}, services.Wrap(services.ErrValidation, "command", "overlay", "overlay path is required", nil)
	}
	xy, err := OverlayCoordinates(o.Position)
	if err != nil {
		return Descriptor{}, err
	}
	if err := o.Timing.Validate(); err != nil {
		return Descriptor{}, err
	}
	filter := "overlay=" + xy
	if gate := Gate(o.Timing); gate != "" {
		filter += ":enable='" + gate + "'"
	}
	return Descriptor{
		Inputs: 2,
		Extra:  []string{o.Source},
		Args: []string{
			"-filter_complex", "[0:v][1:v] " + filter + " [v]",
			"-map", "[v]",
			"-map", "0:a?",
			"-c:a", "copy",
		},
	}, nil
}

func buildWatermark(o Watermark) (Descriptor, error) {
	if strings.TrimSpace(o.Source) == "" {
		return Descriptor{}, services.Wrap(services.ErrValidation, "command", "watermark", "watermark path is required", nil)
	}
	xy, err := OverlayCoordinates(o.Position)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Inputs: 2,
		Extra:  []string{o.Source},
		Args:   []string{"-filter_complex", "overlay=" + xy, "-codec:a", "copy"},
	}, nil
}

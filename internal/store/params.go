package store

import (
	"encoding/json"
	"fmt"
)

// Params holds the typed request parameters for a job. The concrete type is
// fixed by the job kind; see ParamsForKind.
type Params interface {
	values() map[string]any
}

// IngestParams carries no options.
type IngestParams struct{}

// TrimParams keeps the [Start, End) range of the input, in seconds.
type TrimParams struct {
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// QualityParams re-encodes to a named tier (1080p, 720p, 480p).
type QualityParams struct {
	Quality string `json:"quality"`
}

// OverlayParams composites OverlayPath over the input. End is optional; a nil
// End keeps the overlay visible from Start onward.
type OverlayParams struct {
	OverlayPath string   `json:"overlay_path"`
	Position    string   `json:"position"`
	Start       float64  `json:"start_time"`
	End         *float64 `json:"end_time,omitempty"`
}

// WatermarkParams composites WatermarkPath over the whole input.
type WatermarkParams struct {
	WatermarkPath string `json:"watermark_path"`
	Position      string `json:"position"`
}

func (IngestParams) values() map[string]any { return map[string]any{} }

func (p TrimParams) values() map[string]any {
	return map[string]any{"start_time": p.Start, "end_time": p.End}
}

func (p QualityParams) values() map[string]any {
	return map[string]any{"quality": p.Quality}
}

func (p OverlayParams) values() map[string]any {
	out := map[string]any{
		"overlay_path": p.OverlayPath,
		"position":     p.Position,
		"start_time":   p.Start,
	}
	if p.End != nil {
		out["end_time"] = *p.End
	}
	return out
}

func (p WatermarkParams) values() map[string]any {
	return map[string]any{"watermark_path": p.WatermarkPath, "position": p.Position}
}

// ParamsForKind returns the zero-valued params type for kind.
func ParamsForKind(kind Kind) (Params, error) {
	switch kind {
	case KindIngest:
		return IngestParams{}, nil
	case KindTrim:
		return TrimParams{}, nil
	case KindQuality:
		return QualityParams{}, nil
	case KindBRollOverlay, KindImageOverlay:
		return OverlayParams{}, nil
	case KindWatermark:
		return WatermarkParams{}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

// checkParams verifies params has the concrete type kind expects.
func checkParams(kind Kind, params Params) error {
	var ok bool
	switch kind {
	case KindIngest:
		_, ok = params.(IngestParams)
	case KindTrim:
		_, ok = params.(TrimParams)
	case KindQuality:
		_, ok = params.(QualityParams)
	case KindBRollOverlay, KindImageOverlay:
		_, ok = params.(OverlayParams)
	case KindWatermark:
		_, ok = params.(WatermarkParams)
	default:
		return fmt.Errorf("unknown job kind %q", kind)
	}
	if !ok {
		return fmt.Errorf("params %T do not match job kind %q", params, kind)
	}
	return nil
}

// EncodeParams serializes params for storage or transport.
func EncodeParams(params Params) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

// DecodeParams parses raw into the params type for kind. Empty input yields
// the zero params.
func DecodeParams(kind Kind, raw []byte) (Params, error) {
	switch kind {
	case KindIngest:
		return IngestParams{}, nil
	case KindTrim:
		var p TrimParams
		if err := decodeInto(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindQuality:
		var p QualityParams
		if err := decodeInto(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindBRollOverlay, KindImageOverlay:
		var p OverlayParams
		if err := decodeInto(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindWatermark:
		var p WatermarkParams
		if err := decodeInto(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

func decodeInto(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

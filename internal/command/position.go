package command

import (
	"fmt"
	"strings"

	"mediaforge/internal/services"
)

// Position anchors an overlay within the main frame.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
)

// overlayMargin is the inset, in pixels, applied to corner positions.
const overlayMargin = 10

var coordinates = map[Position]string{
	TopLeft:     fmt.Sprintf("%d:%d", overlayMargin, overlayMargin),
	TopRight:    fmt.Sprintf("main_w-overlay_w-%d:%d", overlayMargin, overlayMargin),
	BottomLeft:  fmt.Sprintf("%d:main_h-overlay_h-%d", overlayMargin, overlayMargin),
	BottomRight: fmt.Sprintf("main_w-overlay_w-%d:main_h-overlay_h-%d", overlayMargin, overlayMargin),
	Center:      "(main_w-overlay_w)/2:(main_h-overlay_h)/2",
}

// Positions lists every supported position.
func Positions() []Position {
	return []Position{TopLeft, TopRight, BottomLeft, BottomRight, Center}
}

// ParsePosition normalizes value ("Top_Right" and "top-right" are equal) and
// rejects unknown positions.
func ParsePosition(value string) (Position, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if normalized == "centre" {
		normalized = string(Center)
	}
	position := Position(normalized)
	if _, ok := coordinates[position]; !ok {
		return "", services.Wrap(services.ErrValidation, "command", "parse position",
			fmt.Sprintf("unknown position %q", value), nil)
	}
	return position, nil
}

// OverlayCoordinates returns the overlay filter x:y expression for p.
func OverlayCoordinates(p Position) (string, error) {
	expr, ok := coordinates[p]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "command", "overlay coordinates",
			fmt.Sprintf("unknown position %q", p), nil)
	}
	return expr, nil
}

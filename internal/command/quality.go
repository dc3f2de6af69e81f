package command

import (
	"fmt"
	"strings"

	"mediaforge/internal/services"
)

// Tier names a re-encode target.
type Tier string

const (
	Tier1080p Tier = "1080p"
	Tier720p  Tier = "720p"
	Tier480p  Tier = "480p"
)

// Preset is the frame size and video bitrate for a tier.
type Preset struct {
	Width       int
	Height      int
	BitrateKbps int
}

// Size returns the WxH form used by the engine.
func (p Preset) Size() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// Bitrate returns the engine bitrate value, e.g. 4000k.
func (p Preset) Bitrate() string {
	return fmt.Sprintf("%dk", p.BitrateKbps)
}

var presets = map[Tier]Preset{
	Tier1080p: {Width: 1920, Height: 1080, BitrateKbps: 4000},
	Tier720p:  {Width: 1280, Height: 720, BitrateKbps: 2500},
	Tier480p:  {Width: 854, Height: 480, BitrateKbps: 1000},
}

// Tiers lists supported tiers from highest to lowest.
func Tiers() []Tier {
	return []Tier{Tier1080p, Tier720p, Tier480p}
}

// ParseQuality validates a tier name. Matching is case-insensitive.
func ParseQuality(value string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := presets[tier]; !ok {
		return "", services.Wrap(services.ErrValidation, "command", "parse quality",
			fmt.Sprintf("unsupported quality %q (want 1080p, 720p, or 480p)", value), nil)
	}
	return tier, nil
}

// QualityPreset returns the preset for tier.
func QualityPreset(tier Tier) (Preset, error) {
	preset, ok := presets[tier]
	if !ok {
		return Preset{}, services.Wrap(services.ErrValidation, "command", "quality preset",
			fmt.Sprintf("unsupported quality %q", tier), nil)
	}
	return preset, nil
}

package command

import (
	"fmt"
	"strconv"

	"mediaforge/internal/services"
)

// Timing bounds when an overlay is visible, in seconds from the start of the
// main input. A nil End leaves the overlay visible until the input ends.
type Timing struct {
	Start float64
	End   *float64
}

// Validate rejects negative starts and empty or inverted windows.
func (t Timing) Validate() error {
	if t.Start < 0 {
		return services.Wrap(services.ErrValidation, "command", "timing",
			fmt.Sprintf("start %s must not be negative", formatSeconds(t.Start)), nil)
	}
	if t.End != nil && *t.End <= t.Start {
		return services.Wrap(services.ErrValidation, "command", "timing",
			fmt.Sprintf("end %s must be after start %s", formatSeconds(*t.End), formatSeconds(t.Start)), nil)
	}
	return nil
}

// Gate returns the overlay enable expression for t, or "" when the overlay
// is visible for the whole input.
func Gate(t Timing) string {
	switch {
	case t.End != nil:
		return fmt.Sprintf("between(t,%s,%s)", formatSeconds(t.Start), formatSeconds(*t.End))
	case t.Start > 0:
		return fmt.Sprintf("gte(t,%s)", formatSeconds(t.Start))
	default:
		return ""
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

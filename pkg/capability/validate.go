package capability

import (
	"fmt"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Parameter limits enforced before a command is sent.
const (
	MinDuration   = 30 * time.Millisecond
	MinBrightness = 1
	MaxBrightness = 100
	MinColorTemp  = 1700
	MaxColorTemp  = 6500
	MaxHue        = 359
	MaxSaturation = 100
	MaxRGB        = 0xFFFFFF
	MaxPercentage = 100
	MinMinutes    = 1
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", wire.ErrInvalidParams, fmt.Sprintf(format, args...))
}

// ValidateDuration checks a transition duration.
func ValidateDuration(d time.Duration) error {
	if d < MinDuration {
		return invalid("duration %v below %v", d, MinDuration)
	}
	return nil
}

// ValidateBrightness checks a brightness percentage.
func ValidateBrightness(bright int) error {
	if bright < MinBrightness || bright > MaxBrightness {
		return invalid("brightness %d out of range %d-%d", bright, MinBrightness, MaxBrightness)
	}
	return nil
}

// ValidateColorTemp checks a color temperature in Kelvin.
func ValidateColorTemp(ct int) error {
	if ct < MinColorTemp || ct > MaxColorTemp {
		return invalid("color temperature %d out of range %d-%d", ct, MinColorTemp, MaxColorTemp)
	}
	return nil
}

// ValidateHue checks a hue in degrees.
func ValidateHue(hue int) error {
	if hue < 0 || hue > MaxHue {
		return invalid("hue %d out of range 0-%d", hue, MaxHue)
	}
	return nil
}

// ValidateSaturation checks a saturation percentage.
func ValidateSaturation(sat int) error {
	if sat < 0 || sat > MaxSaturation {
		return invalid("saturation %d out of range 0-%d", sat, MaxSaturation)
	}
	return nil
}

// ValidateRGB checks a packed 24-bit color.
func ValidateRGB(rgb int) error {
	if rgb < 0 || rgb > MaxRGB {
		return invalid("rgb %#x out of range", rgb)
	}
	return nil
}

// ValidatePercentage checks an adjust percentage.
func ValidatePercentage(pct int) error {
	if pct < -MaxPercentage || pct > MaxPercentage {
		return invalid("percentage %d out of range -%d-%d", pct, MaxPercentage, MaxPercentage)
	}
	return nil
}

// ValidateMinutes checks a timer length in minutes.
func ValidateMinutes(minutes int) error {
	if minutes < MinMinutes {
		return invalid("minutes %d below %d", minutes, MinMinutes)
	}
	return nil
}

// ValidateName checks a device name.
func ValidateName(name string) error {
	if name == "" {
		return invalid("name is empty")
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

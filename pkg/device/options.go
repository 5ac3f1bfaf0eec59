package device

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied to every operation unless overridden by an Option.
const (
	DefaultEffect   = EffectSmooth
	DefaultDuration = 500 * time.Millisecond
)

// Effect is the transition style of a state change.
type Effect uint8

const (
	// EffectSmooth fades over the operation duration.
	EffectSmooth Effect = iota

	// EffectSudden applies the change immediately. The device ignores the
	// duration.
	EffectSudden
)

// String returns the wire name of the effect.
func (e Effect) String() string {
	if e == EffectSudden {
		return "sudden"
	}
	return "smooth"
}

// ParseEffect parses "smooth" or "sudden".
func ParseEffect(s string) (Effect, error) {
	switch strings.ToLower(s) {
	case "smooth":
		return EffectSmooth, nil
	case "sudden":
		return EffectSudden, nil
	}
	return EffectSmooth, fmt.Errorf("unknown effect %q", s)
}

// Mode selects what a light switches to when powered on.
type Mode uint8

const (
	// ModeCurrent keeps the last mode. It is not sent on the wire.
	ModeCurrent Mode = iota
	ModeCT
	ModeRGB
	ModeHSV
	ModeFlow
	ModeNight
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCurrent:
		return "current"
	case ModeCT:
		return "ct"
	case ModeRGB:
		return "rgb"
	case ModeHSV:
		return "hsv"
	case ModeFlow:
		return "flow"
	case ModeNight:
		return "night"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := ModeCurrent; m <= ModeNight; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ModeCurrent, fmt.Errorf("unknown mode %q", s)
}

// LightType selects which light channel of a device an operation addresses.
type LightType uint8

const (
	// LightAuto addresses both channels when the device has both,
	// otherwise whichever one it has.
	LightAuto LightType = iota

	// LightMain addresses the main light only.
	LightMain

	// LightBackground addresses the background light only.
	LightBackground

	// LightBoth addresses main then background. Both must be supported.
	LightBoth
)

// String returns the light type name.
func (l LightType) String() string {
	switch l {
	case LightAuto:
		return "auto"
	case LightMain:
		return "main"
	case LightBackground:
		return "background"
	case LightBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseLightType parses a light type name. "bg" is accepted for background.
func ParseLightType(s string) (LightType, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return LightAuto, nil
	case "main":
		return LightMain, nil
	case "background", "bg":
		return LightBackground, nil
	case "both":
		return LightBoth, nil
	}
	return LightAuto, fmt.Errorf("unknown light type %q", s)
}

// AdjustAction is the action of set_adjust.
type AdjustAction string

const (
	AdjustIncrease AdjustAction = "increase"
	AdjustDecrease AdjustAction = "decrease"
	AdjustCircle   AdjustAction = "circle"
)

// AdjustProp is the property set_adjust changes. Only AdjustPropColor
// accepts AdjustCircle.
type AdjustProp string

const (
	AdjustPropBright AdjustProp = "bright"
	AdjustPropCT     AdjustProp = "ct"
	AdjustPropColor  AdjustProp = "color"
)

// Option modifies a single operation.
type Option func(*options)

type options struct {
	effect   Effect
	duration time.Duration
	mode     Mode
	light    LightType
}

func buildOptions(opts []Option) options {
	o := options{
		effect:   DefaultEffect,
		duration: DefaultDuration,
		mode:     ModeCurrent,
		light:    LightAuto,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEffect sets the transition effect.
func WithEffect(e Effect) Option {
	return func(o *options) { o.effect = e }
}

// WithDuration sets the transition duration. The minimum is 30ms.
func WithDuration(d time.Duration) Option {
	return func(o *options) { o.duration = d }
}

// WithSudden is shorthand for WithEffect(EffectSudden).
func WithSudden() Option {
	return WithEffect(EffectSudden)
}

// WithMode sets the mode a power-on switches to.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithLight selects the light channel.
func WithLight(l LightType) Option {
	return func(o *options) { o.light = l }
}

// durationMillis returns the duration in whole milliseconds for the wire.
func (o options) durationMillis() int {
	return int(o.duration / time.Millisecond)
}

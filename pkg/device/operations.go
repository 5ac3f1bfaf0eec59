package device

import (
	"context"
	"fmt"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/color"
	"github.com/yeelight-lan/yeelight-go/pkg/flow"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Scene classes of set_scene.
const (
	sceneColor        = "color"
	sceneHSV          = "hsv"
	sceneCT           = "ct"
	sceneFlow         = "cf"
	sceneAutoDelayOff = "auto_delay_off"
)

// cronTypePowerOff is the only timer type the devices implement.
const cronTypePowerOff = 0

// SetPower switches the light on or off. WithMode selects the mode a
// power-on switches to.
func (s *Session) SetPower(ctx context.Context, on bool, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opPower, o.light, func() ([]any, error) {
		if err := capability.ValidateDuration(o.duration); err != nil {
			return nil, err
		}
		if o.mode > ModeNight {
			return nil, fmt.Errorf("%w: unknown mode %d", wire.ErrInvalidParams, o.mode)
		}
		state := "off"
		if on {
			state = "on"
		}
		params := []any{state, o.effect.String(), o.durationMillis()}
		if o.mode != ModeCurrent {
			params = append(params, int(o.mode))
		}
		return params, nil
	})
}

// TurnOn is SetPower(ctx, true, opts...).
func (s *Session) TurnOn(ctx context.Context, opts ...Option) error {
	return s.SetPower(ctx, true, opts...)
}

// TurnOff is SetPower(ctx, false, opts...).
func (s *Session) TurnOff(ctx context.Context, opts ...Option) error {
	return s.SetPower(ctx, false, opts...)
}

// Toggle flips the power state. With both channels selected it sends a
// single dev_toggle.
func (s *Session) Toggle(ctx context.Context, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opToggle, o.light, noParams)
}

// SetBrightness sets the brightness in percent (1-100).
func (s *Session) SetBrightness(ctx context.Context, bright int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opBrightness, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateBrightness(bright),
			capability.ValidateDuration(o.duration),
		); err != nil {
			return nil, err
		}
		return []any{bright, o.effect.String(), o.durationMillis()}, nil
	})
}

// SetColorTemp sets the color temperature in Kelvin (1700-6500).
func (s *Session) SetColorTemp(ctx context.Context, kelvin int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opColorTemp, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateColorTemp(kelvin),
			capability.ValidateDuration(o.duration),
		); err != nil {
			return nil, err
		}
		return []any{kelvin, o.effect.String(), o.durationMillis()}, nil
	})
}

// SetRGB sets a packed 0xRRGGBB color.
func (s *Session) SetRGB(ctx context.Context, rgb int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opRGB, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateRGB(rgb),
			capability.ValidateDuration(o.duration),
		); err != nil {
			return nil, err
		}
		return []any{rgb, o.effect.String(), o.durationMillis()}, nil
	})
}

// SetRGBComponents sets a color from its components.
func (s *Session) SetRGBComponents(ctx context.Context, r, g, b uint8, opts ...Option) error {
	return s.SetRGB(ctx, color.PackRGB(r, g, b), opts...)
}

// SetHSV sets hue (0-359) and saturation (0-100).
func (s *Session) SetHSV(ctx context.Context, hue, sat int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opHSV, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateHue(hue),
			capability.ValidateSaturation(sat),
			capability.ValidateDuration(o.duration),
		); err != nil {
			return nil, err
		}
		return []any{hue, sat, o.effect.String(), o.durationMillis()}, nil
	})
}

// SetSceneRGB switches the light on and sets color and brightness at once.
func (s *Session) SetSceneRGB(ctx context.Context, rgb, bright int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opScene, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateRGB(rgb),
			capability.ValidateBrightness(bright),
		); err != nil {
			return nil, err
		}
		return []any{sceneColor, rgb, bright}, nil
	})
}

// SetSceneHSV switches the light on with hue, saturation and brightness.
func (s *Session) SetSceneHSV(ctx context.Context, hue, sat, bright int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opScene, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateHue(hue),
			capability.ValidateSaturation(sat),
			capability.ValidateBrightness(bright),
		); err != nil {
			return nil, err
		}
		return []any{sceneHSV, hue, sat, bright}, nil
	})
}

// SetSceneColorTemp switches the light on with color temperature and
// brightness.
func (s *Session) SetSceneColorTemp(ctx context.Context, kelvin, bright int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opScene, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateColorTemp(kelvin),
			capability.ValidateBrightness(bright),
		); err != nil {
			return nil, err
		}
		return []any{sceneCT, kelvin, bright}, nil
	})
}

// SetSceneAutoDelayOff switches the light on at bright and turns it off
// after minutes.
func (s *Session) SetSceneAutoDelayOff(ctx context.Context, bright, minutes int, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opScene, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidateBrightness(bright),
			capability.ValidateMinutes(minutes),
		); err != nil {
			return nil, err
		}
		return []any{sceneAutoDelayOff, bright, minutes}, nil
	})
}

// SetSceneFlow switches the light on and starts p.
func (s *Session) SetSceneFlow(ctx context.Context, p flow.Program, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opScene, o.light, func() ([]any, error) {
		params, err := p.Params()
		if err != nil {
			return nil, err
		}
		return append([]any{sceneFlow}, params...), nil
	})
}

// StartFlow starts p. The light must be on.
func (s *Session) StartFlow(ctx context.Context, p flow.Program, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opStartFlow, o.light, p.Params)
}

// StopFlow stops a running flow.
func (s *Session) StopFlow(ctx context.Context, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opStopFlow, o.light, noParams)
}

// SetDefault saves the current state as the power-on default.
func (s *Session) SetDefault(ctx context.Context, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opDefault, o.light, noParams)
}

// SetName stores name on the device.
func (s *Session) SetName(ctx context.Context, name string) error {
	return s.execute(ctx, opName, LightMain, func() ([]any, error) {
		if err := capability.ValidateName(name); err != nil {
			return nil, err
		}
		return []any{name}, nil
	})
}

// SetTurnOffDelay turns the light off after minutes.
func (s *Session) SetTurnOffDelay(ctx context.Context, minutes int) error {
	return s.execute(ctx, opCronAdd, LightMain, func() ([]any, error) {
		if err := capability.ValidateMinutes(minutes); err != nil {
			return nil, err
		}
		return []any{cronTypePowerOff, minutes}, nil
	})
}

// RemoveTurnOffDelay cancels a timer set with SetTurnOffDelay.
func (s *Session) RemoveTurnOffDelay(ctx context.Context) error {
	return s.execute(ctx, opCronDel, LightMain, func() ([]any, error) {
		return []any{cronTypePowerOff}, nil
	})
}

// AdjustBrightness changes the brightness by pct percent (-100 to 100).
func (s *Session) AdjustBrightness(ctx context.Context, pct int, opts ...Option) error {
	return s.adjustBy(ctx, opAdjustBright, pct, opts)
}

// AdjustColorTemp changes the color temperature by pct percent.
func (s *Session) AdjustColorTemp(ctx context.Context, pct int, opts ...Option) error {
	return s.adjustBy(ctx, opAdjustCT, pct, opts)
}

// AdjustColor changes the color by pct percent.
func (s *Session) AdjustColor(ctx context.Context, pct int, opts ...Option) error {
	return s.adjustBy(ctx, opAdjustColor, pct, opts)
}

func (s *Session) adjustBy(ctx context.Context, op operation, pct int, opts []Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, op, o.light, func() ([]any, error) {
		if err := capability.First(
			capability.ValidatePercentage(pct),
			capability.ValidateDuration(o.duration),
		); err != nil {
			return nil, err
		}
		return []any{pct, o.durationMillis()}, nil
	})
}

// SetAdjust steps prop in the direction of action without knowing its
// current value. AdjustPropColor only accepts AdjustCircle.
func (s *Session) SetAdjust(ctx context.Context, action AdjustAction, prop AdjustProp, opts ...Option) error {
	o := buildOptions(opts)
	return s.execute(ctx, opAdjust, o.light, func() ([]any, error) {
		switch action {
		case AdjustIncrease, AdjustDecrease, AdjustCircle:
		default:
			return nil, fmt.Errorf("%w: unknown adjust action %q", wire.ErrInvalidParams, action)
		}
		switch prop {
		case AdjustPropBright, AdjustPropCT:
		case AdjustPropColor:
			if action != AdjustCircle {
				return nil, fmt.Errorf("%w: color only supports %s", wire.ErrInvalidParams, AdjustCircle)
			}
		default:
			return nil, fmt.Errorf("%w: unknown adjust property %q", wire.ErrInvalidParams, prop)
		}
		return []any{string(action), string(prop)}, nil
	})
}

func noParams() ([]any, error) {
	return []any{}, nil
}

package mock

import (
	"strings"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Device error replies.
var (
	errUnsupported   = &wire.DeviceError{Code: -1, Message: "method not supported"}
	errInvalidParams = &wire.DeviceError{Code: -1, Message: "invalid params"}
)

var okResult = []any{"ok"}

// light addresses the main or background fields of a state.
type light struct {
	power, flowing                   *bool
	bright, ct, rgb, hue, sat, lmode *int
}

func mainLight(p *props.Properties) light {
	return light{&p.Power, &p.Flowing, &p.Bright, &p.CT, &p.RGB, &p.Hue, &p.Sat, &p.ColorMode}
}

func bgLight(p *props.Properties) light {
	return light{&p.BgPower, &p.BgFlowing, &p.BgBright, &p.BgCT, &p.BgRGB, &p.BgHue, &p.BgSat, &p.BgLMode}
}

// Execute applies cmd to the state. It returns the reply result, the
// changed properties as notified, or the device error to reply with.
func (d *Device) Execute(cmd wire.Command) ([]any, map[string]any, *wire.DeviceError) {
	method := capability.Method(cmd.Method)
	if !d.Support.Empty() && !d.Support.Has(method) {
		return nil, nil, errUnsupported
	}

	d.mu.Lock()
	before := d.state
	result, derr := d.apply(method, cmd.Params)
	if derr != nil {
		d.state = before
		d.mu.Unlock()
		return nil, nil, derr
	}
	changed := changes(before, d.state)
	d.mu.Unlock()
	return result, changed, nil
}

// apply runs with d.mu held.
func (d *Device) apply(method capability.Method, params []any) ([]any, *wire.DeviceError) {
	p := &d.state
	name := string(method)
	l := mainLight(p)
	if base, ok := strings.CutPrefix(name, "bg_"); ok {
		name = base
		l = bgLight(p)
	}

	switch name {
	case string(capability.GetProp):
		out := make([]any, len(params))
		for i, n := range params {
			out[i] = propString(*p, wire.ToString(n))
		}
		return out, nil

	case string(capability.SetPower):
		if len(params) < 3 {
			return nil, errInvalidParams
		}
		on, err := wire.ToBool(params[0])
		if err != nil {
			return nil, errInvalidParams
		}
		*l.power = on
		if len(params) > 3 {
			mode, err := wire.ToInt(params[3])
			if err != nil {
				return nil, errInvalidParams
			}
			applyMode(p, l, mode)
		}

	case string(capability.Toggle):
		*l.power = !*l.power

	case string(capability.DevToggle):
		p.Power = !p.Power
		p.BgPower = !p.BgPower

	case string(capability.SetBright):
		v, ok := intParam(params, 0, 1, 100)
		if !ok {
			return nil, errInvalidParams
		}
		*l.bright = v

	case string(capability.SetCtAbx):
		v, ok := intParam(params, 0, 1700, 6500)
		if !ok {
			return nil, errInvalidParams
		}
		*l.ct, *l.lmode = v, props.ModeCT

	case string(capability.SetRGB):
		v, ok := intParam(params, 0, 0, 0xFFFFFF)
		if !ok {
			return nil, errInvalidParams
		}
		*l.rgb, *l.lmode = v, props.ModeRGB

	case string(capability.SetHSV):
		hue, ok1 := intParam(params, 0, 0, 359)
		sat, ok2 := intParam(params, 1, 0, 100)
		if !ok1 || !ok2 {
			return nil, errInvalidParams
		}
		*l.hue, *l.sat, *l.lmode = hue, sat, props.ModeHSV

	case string(capability.SetScene):
		if derr := d.applyScene(p, l, params); derr != nil {
			return nil, derr
		}

	case string(capability.StartCF):
		if len(params) != 3 {
			return nil, errInvalidParams
		}
		*l.flowing = true

	case string(capability.StopCF):
		*l.flowing = false

	case string(capability.SetDefault):

	case string(capability.CronAdd):
		v, ok := intParam(params, 1, 1, 1440)
		if !ok {
			return nil, errInvalidParams
		}
		p.DelayOff = v

	case string(capability.CronGet):
		return []any{map[string]any{"type": 0, "delay": p.DelayOff, "mix": 0}}, nil

	case string(capability.CronDel):
		p.DelayOff = 0

	case string(capability.SetAdjust):
		if len(params) != 2 {
			return nil, errInvalidParams
		}
		action, prop := wire.ToString(params[0]), wire.ToString(params[1])
		if !adjust(l, action, prop) {
			return nil, errInvalidParams
		}

	case string(capability.AdjustBright):
		v, ok := intParam(params, 0, -100, 100)
		if !ok {
			return nil, errInvalidParams
		}
		*l.bright = clamp(*l.bright+v, 1, 100)

	case string(capability.AdjustCT):
		v, ok := intParam(params, 0, -100, 100)
		if !ok {
			return nil, errInvalidParams
		}
		*l.ct = clamp(*l.ct+v*(6500-1700)/100, 1700, 6500)

	case string(capability.AdjustColor):
		v, ok := intParam(params, 0, -100, 100)
		if !ok {
			return nil, errInvalidParams
		}
		*l.hue = ((*l.hue+v*360/100)%360 + 360) % 360

	case string(capability.SetName):
		if len(params) != 1 {
			return nil, errInvalidParams
		}
		p.Name = wire.ToString(params[0])

	case string(capability.SetMusic):
		on, ok := intParam(params, 0, 0, 1)
		if !ok || (on == 1 && len(params) != 3) {
			return nil, errInvalidParams
		}
		p.MusicOn = on == 1

	default:
		return nil, errUnsupported
	}
	return okResult, nil
}

func (d *Device) applyScene(p *props.Properties, l light, params []any) *wire.DeviceError {
	if len(params) < 2 {
		return errInvalidParams
	}
	var ok bool
	switch wire.ToString(params[0]) {
	case "color":
		var rgb, bright int
		rgb, ok = intParam(params, 1, 0, 0xFFFFFF)
		if ok {
			bright, ok = intParam(params, 2, 1, 100)
		}
		*l.rgb, *l.bright, *l.lmode = rgb, bright, props.ModeRGB
	case "hsv":
		var hue, sat, bright int
		hue, ok = intParam(params, 1, 0, 359)
		if ok {
			sat, ok = intParam(params, 2, 0, 100)
		}
		if ok {
			bright, ok = intParam(params, 3, 1, 100)
		}
		*l.hue, *l.sat, *l.bright, *l.lmode = hue, sat, bright, props.ModeHSV
	case "ct":
		var ct, bright int
		ct, ok = intParam(params, 1, 1700, 6500)
		if ok {
			bright, ok = intParam(params, 2, 1, 100)
		}
		*l.ct, *l.bright, *l.lmode = ct, bright, props.ModeCT
	case "auto_delay_off":
		var bright, minutes int
		bright, ok = intParam(params, 1, 1, 100)
		if ok {
			minutes, ok = intParam(params, 2, 1, 1440)
		}
		*l.bright, p.DelayOff = bright, minutes
	case "cf":
		ok = len(params) == 4
		*l.flowing = true
	}
	if !ok {
		return errInvalidParams
	}
	*l.power = true
	return nil
}

func applyMode(p *props.Properties, l light, mode int) {
	switch mode {
	case 1:
		*l.lmode = props.ModeCT
	case 2:
		*l.lmode = props.ModeRGB
	case 3:
		*l.lmode = props.ModeHSV
	case 4:
		*l.flowing = true
	case 5:
		p.ActiveMode = 1
	}
}

func adjust(l light, action, prop string) bool {
	var step int
	switch action {
	case "increase":
		step = 1
	case "decrease":
		step = -1
	case "circle":
	default:
		return false
	}

	switch prop {
	case "bright":
		if step == 0 {
			*l.bright = *l.bright%100 + 10
			*l.bright = clamp(*l.bright, 1, 100)
			return true
		}
		*l.bright = clamp(*l.bright+10*step, 1, 100)
	case "ct":
		if step == 0 {
			*l.ct += 500
			if *l.ct > 6500 {
				*l.ct = 1700
			}
			return true
		}
		*l.ct = clamp(*l.ct+500*step, 1700, 6500)
	case "color":
		if step != 0 {
			return false
		}
		*l.hue = (*l.hue + 30) % 360
		*l.lmode = props.ModeHSV
	default:
		return false
	}
	return true
}

func intParam(params []any, i, lo, hi int) (int, bool) {
	if i >= len(params) {
		return 0, false
	}
	v, err := wire.ToInt(params[i])
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// propString formats a property the way get_prop reports it.
func propString(p props.Properties, name string) any {
	switch v := p.Get(name).(type) {
	case bool:
		if v {
			return "on"
		}
		return "off"
	case int:
		return wire.ToString(v)
	case string:
		return v
	default:
		return ""
	}
}

// changes returns the properties that differ, valued as notifications carry
// them.
func changes(before, after props.Properties) map[string]any {
	out := make(map[string]any)
	for _, name := range props.Names {
		a, b := before.Get(name), after.Get(name)
		if a == b {
			continue
		}
		if v, ok := b.(bool); ok {
			if v {
				out[name] = "on"
			} else {
				out[name] = "off"
			}
			continue
		}
		out[name] = b
	}
	return out
}

package device

import (
	"fmt"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// operation names the protocol methods that implement one session operation
// on each light channel. combined, when set, addresses both channels in a
// single command.
type operation struct {
	name       string
	main       capability.Method
	background capability.Method
	combined   capability.Method
}

// Command table.
var (
	opPower        = operation{"power", capability.SetPower, capability.BgSetPower, ""}
	opToggle       = operation{"toggle", capability.Toggle, capability.BgToggle, capability.DevToggle}
	opBrightness   = operation{"brightness", capability.SetBright, capability.BgSetBright, ""}
	opColorTemp    = operation{"color_temp", capability.SetCtAbx, capability.BgSetCtAbx, ""}
	opRGB          = operation{"rgb", capability.SetRGB, capability.BgSetRGB, ""}
	opHSV          = operation{"hsv", capability.SetHSV, capability.BgSetHSV, ""}
	opScene        = operation{"scene", capability.SetScene, capability.BgSetScene, ""}
	opStartFlow    = operation{"start_flow", capability.StartCF, capability.BgStartCF, ""}
	opStopFlow     = operation{"stop_flow", capability.StopCF, capability.BgStopCF, ""}
	opDefault      = operation{"default", capability.SetDefault, capability.BgSetDefault, ""}
	opAdjust       = operation{"adjust", capability.SetAdjust, capability.BgSetAdjust, ""}
	opAdjustBright = operation{"adjust_bright", capability.AdjustBright, capability.BgAdjustBright, ""}
	opAdjustCT     = operation{"adjust_ct", capability.AdjustCT, capability.BgAdjustCT, ""}
	opAdjustColor  = operation{"adjust_color", capability.AdjustColor, capability.BgAdjustColor, ""}
	opName         = operation{"name", capability.SetName, "", ""}
	opCronAdd      = operation{"cron_add", capability.CronAdd, "", ""}
	opCronGet      = operation{"cron_get", capability.CronGet, "", ""}
	opCronDel      = operation{"cron_del", capability.CronDel, "", ""}
	opMusic        = operation{"music", capability.SetMusic, "", ""}
	opGetProp      = operation{"get_prop", capability.GetProp, "", ""}
)

// step is one command of a plan.
type step struct {
	light  LightType
	method capability.Method
}

// plan maps a light selector to the ordered commands that carry out op on a
// device with caps. Every command of the plan is gated here, before any of
// them is sent.
func plan(op operation, light LightType, caps capability.Set) ([]step, error) {
	switch light {
	case LightMain:
		if err := caps.Check(op.main); err != nil {
			return nil, err
		}
		return []step{{LightMain, op.main}}, nil

	case LightBackground:
		if op.background == "" {
			return nil, fmt.Errorf("%s on background light: %w", op.name, wire.ErrMethodNotSupported)
		}
		if err := caps.Check(op.background); err != nil {
			return nil, err
		}
		return []step{{LightBackground, op.background}}, nil

	case LightBoth:
		if op.background == "" {
			return nil, fmt.Errorf("%s on background light: %w", op.name, wire.ErrMethodNotSupported)
		}
		return planBoth(op, caps)

	case LightAuto:
		hasMain := caps.Has(op.main)
		hasBackground := op.background != "" && caps.Has(op.background)
		switch {
		case hasMain && hasBackground:
			return planBoth(op, caps)
		case hasMain:
			return []step{{LightMain, op.main}}, nil
		case hasBackground:
			return []step{{LightBackground, op.background}}, nil
		}
		return nil, caps.Check(op.main)
	}
	return nil, fmt.Errorf("%w: unknown light type %d", wire.ErrInvalidParams, light)
}

func planBoth(op operation, caps capability.Set) ([]step, error) {
	if err := caps.Check(op.main); err != nil {
		return nil, err
	}
	if err := caps.Check(op.background); err != nil {
		return nil, err
	}
	if op.combined != "" && caps.Has(op.combined) {
		return []step{{LightBoth, op.combined}}, nil
	}
	return []step{{LightMain, op.main}, {LightBackground, op.background}}, nil
}

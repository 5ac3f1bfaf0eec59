package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/color"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/flow"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Errors returned by Parse and Apply.
var (
	ErrEmptyCommand   = fmt.Errorf("command has no action: %w", wire.ErrInvalidParams)
	ErrInvalidCommand = fmt.Errorf("invalid command: %w", wire.ErrInvalidParams)
)

// Light is the part of a device session a command drives.
// Implemented by *device.Session.
type Light interface {
	ID() string
	IsConnected() bool
	DirectActive() bool
	Capabilities() capability.Set
	Properties() props.Properties

	SetPower(ctx context.Context, on bool, opts ...device.Option) error
	Toggle(ctx context.Context, opts ...device.Option) error
	SetBrightness(ctx context.Context, bright int, opts ...device.Option) error
	SetColorTemp(ctx context.Context, kelvin int, opts ...device.Option) error
	SetRGB(ctx context.Context, rgb int, opts ...device.Option) error
	SetHSV(ctx context.Context, hue, sat int, opts ...device.Option) error
	StartFlow(ctx context.Context, p flow.Program, opts ...device.Option) error
	StopFlow(ctx context.Context, opts ...device.Option) error
	SetAdjust(ctx context.Context, action device.AdjustAction, prop device.AdjustProp, opts ...device.Option) error
	SetDefault(ctx context.Context, opts ...device.Option) error
	SetName(ctx context.Context, name string) error
	SetTurnOffDelay(ctx context.Context, minutes int) error
	RemoveTurnOffDelay(ctx context.Context) error
	EnableDirectMode(ctx context.Context) error
	DisableDirectMode(ctx context.Context) error
}

var _ Light = (*device.Session)(nil)

// Power states accepted in Command.State.
const (
	StateOn     = "on"
	StateOff    = "off"
	StateToggle = "toggle"
)

// FlowStop in Command.Flow stops a running flow.
const FlowStop = "stop"

// Command is a JSON control request. Every set field is one action; they
// run in field order and stop at the first failure.
type Command struct {
	// Direct enables (true) or disables (false) the direct channel before
	// the other actions.
	Direct *bool `json:"direct,omitempty"`

	// State is on, off or toggle. Off skips the color actions.
	State string `json:"state,omitempty"`

	Brightness *int    `json:"brightness,omitempty"`
	ColorTemp  *int    `json:"color_temp,omitempty"`
	RGB        *int    `json:"rgb,omitempty"`
	Color      *Color  `json:"color,omitempty"`
	HS         *HS     `json:"hs,omitempty"`
	Adjust     *Adjust `json:"adjust,omitempty"`

	// Flow names a preset to start, or "stop".
	Flow string `json:"flow,omitempty"`

	Name *string `json:"name,omitempty"`

	// OffDelay sets the sleep timer in minutes. Zero removes it.
	OffDelay *int `json:"off_delay,omitempty"`

	// SaveDefault stores the current state as power-on default.
	SaveDefault bool `json:"save_default,omitempty"`

	// Transition is the fade in milliseconds. Zero switches instantly.
	// Unset uses the session default.
	Transition *int `json:"transition,omitempty"`

	// Light selects main, background, both or auto (default).
	Light string `json:"light,omitempty"`
}

// Color is an RGB triple.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HS is a hue/saturation pair.
type HS struct {
	Hue int `json:"hue"`
	Sat int `json:"sat"`
}

// Adjust is a relative step without a value.
type Adjust struct {
	Action string `json:"action"`
	Prop   string `json:"prop"`
}

// Parse decodes and checks a JSON command. Unknown fields are rejected.
func Parse(data []byte) (Command, error) {
	var c Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Validate checks the fields that are not range-checked by the session.
func (c Command) Validate() error {
	if c.empty() {
		return ErrEmptyCommand
	}
	switch strings.ToLower(c.State) {
	case "", StateOn, StateOff, StateToggle:
	default:
		return fmt.Errorf("%w: state %q", ErrInvalidCommand, c.State)
	}
	if _, err := device.ParseLightType(c.Light); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if c.Flow != "" && c.Flow != FlowStop {
		if _, err := flow.Preset(c.Flow); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	if c.Transition != nil && *c.Transition < 0 {
		return fmt.Errorf("%w: negative transition", ErrInvalidCommand)
	}
	if c.Adjust != nil {
		if _, _, err := c.Adjust.parse(); err != nil {
			return err
		}
	}
	return nil
}

func (c Command) empty() bool {
	return c.Direct == nil && c.State == "" && c.Brightness == nil && c.ColorTemp == nil &&
		c.RGB == nil && c.Color == nil && c.HS == nil && c.Adjust == nil && c.Flow == "" &&
		c.Name == nil && c.OffDelay == nil && !c.SaveDefault
}

func (a Adjust) parse() (device.AdjustAction, device.AdjustProp, error) {
	action := device.AdjustAction(strings.ToLower(a.Action))
	switch action {
	case device.AdjustIncrease, device.AdjustDecrease, device.AdjustCircle:
	default:
		return "", "", fmt.Errorf("%w: adjust action %q", ErrInvalidCommand, a.Action)
	}
	prop := device.AdjustProp(strings.ToLower(a.Prop))
	switch prop {
	case device.AdjustPropBright, device.AdjustPropCT, device.AdjustPropColor:
	default:
		return "", "", fmt.Errorf("%w: adjust prop %q", ErrInvalidCommand, a.Prop)
	}
	return action, prop, nil
}

func (c Command) options() []device.Option {
	light, _ := device.ParseLightType(c.Light)
	opts := []device.Option{device.WithLight(light)}
	if c.Transition != nil {
		if *c.Transition == 0 {
			opts = append(opts, device.WithSudden())
		} else {
			opts = append(opts, device.WithDuration(time.Duration(*c.Transition)*time.Millisecond))
		}
	}
	return opts
}

// Apply runs the command against l. The returned error names the failing
// action and wraps the session error.
func (c Command) Apply(ctx context.Context, l Light) error {
	if err := c.Validate(); err != nil {
		return err
	}
	opts := c.options()

	type action struct {
		name string
		run  func() error
	}
	var actions []action
	add := func(name string, run func() error) {
		actions = append(actions, action{name, run})
	}

	if c.Direct != nil {
		if *c.Direct {
			add("direct", func() error { return l.EnableDirectMode(ctx) })
		} else {
			add("direct", func() error { return l.DisableDirectMode(ctx) })
		}
	}

	switch strings.ToLower(c.State) {
	case StateOff:
		add("state", func() error { return l.SetPower(ctx, false, opts...) })
	case StateOn:
		add("state", func() error { return l.SetPower(ctx, true, opts...) })
	case StateToggle:
		add("state", func() error { return l.Toggle(ctx, opts...) })
	}

	if !strings.EqualFold(c.State, StateOff) {
		if c.Brightness != nil {
			add("brightness", func() error { return l.SetBrightness(ctx, *c.Brightness, opts...) })
		}
		if c.ColorTemp != nil {
			add("color_temp", func() error { return l.SetColorTemp(ctx, *c.ColorTemp, opts...) })
		}
		if c.RGB != nil {
			add("rgb", func() error { return l.SetRGB(ctx, *c.RGB, opts...) })
		}
		if c.Color != nil {
			rgb := color.PackRGB(c.Color.R, c.Color.G, c.Color.B)
			add("color", func() error { return l.SetRGB(ctx, rgb, opts...) })
		}
		if c.HS != nil {
			add("hs", func() error { return l.SetHSV(ctx, c.HS.Hue, c.HS.Sat, opts...) })
		}
		if c.Adjust != nil {
			action, prop, _ := c.Adjust.parse()
			add("adjust", func() error { return l.SetAdjust(ctx, action, prop, opts...) })
		}
		switch c.Flow {
		case "":
		case FlowStop:
			add("flow", func() error { return l.StopFlow(ctx, opts...) })
		default:
			p, _ := flow.Preset(c.Flow)
			add("flow", func() error { return l.StartFlow(ctx, p, opts...) })
		}
	}

	if c.Name != nil {
		add("name", func() error { return l.SetName(ctx, *c.Name) })
	}
	if c.OffDelay != nil {
		if *c.OffDelay == 0 {
			add("off_delay", func() error { return l.RemoveTurnOffDelay(ctx) })
		} else {
			add("off_delay", func() error { return l.SetTurnOffDelay(ctx, *c.OffDelay) })
		}
	}
	if c.SaveDefault {
		add("save_default", func() error { return l.SetDefault(ctx, opts...) })
	}

	for _, a := range actions {
		if err := a.run(); err != nil {
			return fmt.Errorf("%s: %w", a.name, err)
		}
	}
	return nil
}

// IsClientError reports whether err was caused by the request rather than
// the device or the network.
func IsClientError(err error) bool {
	return errors.Is(err, wire.ErrInvalidParams) || errors.Is(err, wire.ErrMethodNotSupported)
}

package command

import (
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/color"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
)

// State is the JSON view of a light published by the bridge and the API.
type State struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
	Direct    bool   `json:"direct"`

	ChannelState

	DelayOff int `json:"off_delay"`

	// Background is set for devices with a background light.
	Background *ChannelState `json:"background,omitempty"`
}

// ChannelState is the state of one light channel.
type ChannelState struct {
	State      string `json:"state"`
	Brightness int    `json:"brightness"`
	ColorMode  string `json:"color_mode"`
	ColorTemp  int    `json:"color_temp"`
	RGB        int    `json:"rgb"`
	Color      Color  `json:"color"`
	HS         HS     `json:"hs"`
	Flowing    bool   `json:"flowing"`
}

// Snapshot returns the current state of l.
func Snapshot(l Light) State {
	p := l.Properties()
	s := State{
		ID:        l.ID(),
		Name:      p.Name,
		Connected: l.IsConnected(),
		Direct:    l.DirectActive(),
		DelayOff:  p.DelayOff,
		ChannelState: channel(p.Power, p.Bright, p.ColorMode, p.CT, p.RGB, p.Hue, p.Sat, p.Flowing),
	}
	if l.Capabilities().Has(capability.BgSetPower) {
		bg := channel(p.BgPower, p.BgBright, p.BgLMode, p.BgCT, p.BgRGB, p.BgHue, p.BgSat, p.BgFlowing)
		s.Background = &bg
	}
	return s
}

func channel(power bool, bright, mode, ct, rgb, hue, sat int, flowing bool) ChannelState {
	r, g, b := color.UnpackRGB(rgb)
	c := ChannelState{
		State:      StateOff,
		Brightness: bright,
		ColorMode:  colorMode(mode),
		ColorTemp:  ct,
		RGB:        rgb,
		Color:      Color{R: r, G: g, B: b},
		HS:         HS{Hue: hue, Sat: sat},
		Flowing:    flowing,
	}
	if power {
		c.State = StateOn
	}
	return c
}

func colorMode(mode int) string {
	switch mode {
	case props.ModeRGB:
		return "rgb"
	case props.ModeCT:
		return "ct"
	case props.ModeHSV:
		return "hsv"
	default:
		return "unknown"
	}
}

package flow

import (
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/color"
)

// Builder assembles a Program step by step.
//
//	p := flow.NewBuilder().
//		RGB(500*time.Millisecond, 0xFF0000, 100).
//		Sleep(time.Second).
//		CT(500*time.Millisecond, 2700, 50).
//		Count(3).
//		Action(flow.ActionStay).
//		Build()
type Builder struct {
	p Program
}

// NewBuilder returns an empty builder (count 0, ActionRecover).
func NewBuilder() *Builder {
	return &Builder{}
}

// RGB appends a color step with a packed RGB value.
func (b *Builder) RGB(d time.Duration, rgb int, brightness int) *Builder {
	b.p.Steps = append(b.p.Steps, Step{Duration: d, Kind: KindColor, Value: rgb, Brightness: brightness})
	return b
}

// RGBComponents appends a color step from 8-bit components.
func (b *Builder) RGBComponents(d time.Duration, r, g, bl uint8, brightness int) *Builder {
	return b.RGB(d, color.PackRGB(r, g, bl), brightness)
}

// HSV appends a color step converted from hue and saturation at full value.
func (b *Builder) HSV(d time.Duration, hue, sat, brightness int) *Builder {
	return b.RGB(d, color.HSVToPacked(hue, sat, 100), brightness)
}

// CT appends a color temperature step.
func (b *Builder) CT(d time.Duration, kelvin int, brightness int) *Builder {
	b.p.Steps = append(b.p.Steps, Step{Duration: d, Kind: KindColorTemp, Value: kelvin, Brightness: brightness})
	return b
}

// Sleep appends a hold step.
func (b *Builder) Sleep(d time.Duration) *Builder {
	b.p.Steps = append(b.p.Steps, Step{Duration: d, Kind: KindSleep})
	return b
}

// Append appends existing steps.
func (b *Builder) Append(steps ...Step) *Builder {
	b.p.Steps = append(b.p.Steps, steps...)
	return b
}

// Count sets the repeat count. 0 repeats forever.
func (b *Builder) Count(n int) *Builder {
	b.p.Count = n
	return b
}

// Action sets the action taken after the flow ends.
func (b *Builder) Action(a Action) *Builder {
	b.p.Action = a
	return b
}

// Build returns the program. The builder may be reused.
func (b *Builder) Build() Program {
	steps := make([]Step, len(b.p.Steps))
	copy(steps, b.p.Steps)
	return Program{Steps: steps, Count: b.p.Count, Action: b.p.Action}
}

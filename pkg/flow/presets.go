package flow

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

const ms = time.Millisecond

// randomHue is replaced in tests.
var randomHue = func() int { return rand.IntN(360) }

// Disco cycles four hues on and off at the given beats per minute.
func Disco(bpm int) Program {
	if bpm <= 0 {
		bpm = 120
	}
	d := time.Duration(60000/bpm) * ms
	b := NewBuilder()
	for _, hue := range []int{0, 90, 180, 270} {
		b.HSV(d, hue, 100, 100).HSV(d, hue, 100, 1)
	}
	return b.Build()
}

// Temp swings between the warmest and coldest white.
func Temp(d time.Duration) Program {
	return NewBuilder().CT(d, 1700, 100).CT(d, 6500, 100).Build()
}

// Strobe flashes white.
func Strobe(d time.Duration) Program {
	return NewBuilder().HSV(d, 0, 0, 100).HSV(d, 0, 0, 1).Build()
}

// Pulse fades a color in and out count times.
func Pulse(r, g, bl uint8, d time.Duration, brightness, count int) Program {
	return NewBuilder().
		RGBComponents(d, r, g, bl, brightness).
		RGBComponents(d, r, g, bl, 1).
		Count(count).
		Build()
}

// StrobeColor flashes through six saturated hues.
func StrobeColor(d time.Duration, brightness int) Program {
	b := NewBuilder()
	for _, hue := range []int{240, 60, 330, 0, 173, 30} {
		b.HSV(d, hue, 100, brightness)
	}
	return b.Build()
}

// Alarm pulses red.
func Alarm(d time.Duration) Program {
	return NewBuilder().HSV(d, 0, 100, 100).HSV(d, 0, 100, 60).Build()
}

// Police alternates red and blue.
func Police(d time.Duration, brightness int) Program {
	return NewBuilder().
		RGBComponents(d, 255, 0, 0, brightness).
		RGBComponents(d, 0, 0, 255, brightness).
		Build()
}

// Police2 is a double-flash red/blue pattern.
func Police2(d time.Duration, brightness int) Program {
	return NewBuilder().
		RGBComponents(d, 255, 0, 0, brightness).
		RGBComponents(d, 0, 0, 255, 1).
		RGBComponents(d, 255, 0, 0, brightness).
		Sleep(d).
		RGBComponents(d, 0, 0, 255, brightness).
		RGBComponents(d, 0, 0, 255, 1).
		RGBComponents(d, 0, 0, 255, brightness).
		Sleep(d).
		Build()
}

// LSD cycles five pastel hues.
func LSD(d time.Duration, brightness int) Program {
	return NewBuilder().
		HSV(d, 3, 85, brightness).
		HSV(d, 20, 90, brightness).
		HSV(d, 55, 95, brightness).
		HSV(d, 93, 50, brightness).
		HSV(d, 198, 97, brightness).
		Build()
}

// Christmas alternates red and green with a hold between.
func Christmas(d time.Duration, brightness int, hold time.Duration) Program {
	return NewBuilder().
		HSV(d, 0, 100, brightness).Sleep(hold).
		HSV(d, 120, 100, brightness).Sleep(hold).
		Build()
}

// RGBCycle steps through red, green and blue with a hold after each.
func RGBCycle(d time.Duration, brightness int, hold time.Duration) Program {
	return NewBuilder().
		HSV(d, 0, 100, brightness).Sleep(hold).
		HSV(d, 120, 100, brightness).Sleep(hold).
		HSV(d, 240, 100, brightness).Sleep(hold).
		Build()
}

// RandomLoop shows n random hues.
func RandomLoop(d time.Duration, brightness, n int) Program {
	b := NewBuilder()
	for i := 0; i < n; i++ {
		b.HSV(d, randomHue(), 100, brightness)
	}
	return b.Build()
}

// Slowdown shows n random hues, each transition longer than the last.
func Slowdown(d time.Duration, brightness, n int) Program {
	b := NewBuilder()
	for i := 0; i < n; i++ {
		b.HSV(d*time.Duration(i+1), randomHue(), 100, brightness)
	}
	return b.Build()
}

// Home is a neutral white.
func Home(d time.Duration, brightness int) Program {
	return NewBuilder().CT(d, 3200, brightness).Build()
}

// NightMode is a dim orange.
func NightMode(d time.Duration, brightness int) Program {
	return NewBuilder().RGB(d, 0xFF9900, brightness).Build()
}

// DateNight is a warm orange.
func DateNight(d time.Duration, brightness int) Program {
	return NewBuilder().RGB(d, 0xFF6600, brightness).Build()
}

// Movie is a dark blue.
func Movie(d time.Duration, brightness int) Program {
	return NewBuilder().RGB(d, 0x141432, brightness).Build()
}

// Sunrise brightens from red through warm white over fifteen minutes.
func Sunrise() Program {
	return NewBuilder().
		RGB(50*ms, 0xFF4D00, 1).
		CT(360000*ms, 1700, 10).
		CT(540000*ms, 2700, 100).
		Count(1).
		Action(ActionStay).
		Build()
}

// Sunset dims to red and turns off.
func Sunset() Program {
	return NewBuilder().
		CT(50*ms, 2700, 10).
		CT(180000*ms, 1700, 5).
		RGB(420000*ms, 0xFF4C00, 1).
		Count(1).
		Action(ActionOff).
		Build()
}

// Romance drifts between two dim purples.
func Romance() Program {
	return NewBuilder().
		RGB(4000*ms, 0x59156D, 1).
		RGB(4000*ms, 0x66142A, 1).
		Action(ActionStay).
		Build()
}

// HappyBirthday cycles warm festive colors.
func HappyBirthday() Program {
	return NewBuilder().
		RGB(1996*ms, 0xDC5019, 80).
		RGB(1996*ms, 0xDC781E, 80).
		RGB(1996*ms, 0xAA3214, 80).
		Action(ActionStay).
		Build()
}

// CandleFlicker varies brightness of a warm white irregularly.
func CandleFlicker() Program {
	b := NewBuilder()
	for _, s := range []struct {
		d      time.Duration
		bright int
	}{
		{800, 50}, {800, 30}, {1200, 80}, {800, 60}, {1200, 90},
		{2400, 50}, {1200, 80}, {800, 60}, {400, 70},
	} {
		b.CT(s.d*ms, 2700, s.bright)
	}
	return b.Build()
}

// TeaTime is a soft white.
func TeaTime(d time.Duration, brightness int) Program {
	return NewBuilder().CT(d, 3000, brightness).Build()
}

// presets maps kebab-case names to programs with default parameters.
var presets = map[string]func() Program{
	"disco":          func() Program { return Disco(120) },
	"temp":           func() Program { return Temp(40000 * ms) },
	"strobe":         func() Program { return Strobe(50 * ms) },
	"pulse":          func() Program { return Pulse(255, 0, 0, 250*ms, 100, 1) },
	"strobe-color":   func() Program { return StrobeColor(50*ms, 100) },
	"alarm":          func() Program { return Alarm(250 * ms) },
	"police":         func() Program { return Police(300*ms, 100) },
	"police2":        func() Program { return Police2(250*ms, 100) },
	"lsd":            func() Program { return LSD(300*ms, 100) },
	"christmas":      func() Program { return Christmas(250*ms, 100, 3000*ms) },
	"rgb":            func() Program { return RGBCycle(250*ms, 100, 3000*ms) },
	"random-loop":    func() Program { return RandomLoop(750*ms, 100, 9) },
	"slowdown":       func() Program { return Slowdown(2000*ms, 100, 8) },
	"home":           func() Program { return Home(500*ms, 80) },
	"night-mode":     func() Program { return NightMode(500*ms, 1) },
	"date-night":     func() Program { return DateNight(500*ms, 50) },
	"movie":          func() Program { return Movie(500*ms, 50) },
	"sunrise":        Sunrise,
	"sunset":         Sunset,
	"romance":        Romance,
	"happy-birthday": HappyBirthday,
	"candle-flicker": CandleFlicker,
	"tea-time":       func() Program { return TeaTime(500*ms, 50) },
}

// Preset returns the named preset with its default parameters.
func Preset(name string) (Program, error) {
	fn, ok := presets[name]
	if !ok {
		return Program{}, fmt.Errorf("unknown preset %q", name)
	}
	return fn(), nil
}

// PresetNames returns all preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

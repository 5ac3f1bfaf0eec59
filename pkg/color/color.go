// Package color provides conversions between the color encodings used on the wire.
package color

import "math"

// PackRGB packs 8-bit components into the 24-bit integer the device expects.
func PackRGB(r, g, b uint8) int {
	return int(r)<<16 | int(g)<<8 | int(b)
}

// UnpackRGB splits a packed 24-bit color into its components.
func UnpackRGB(rgb int) (r, g, b uint8) {
	return uint8(rgb >> 16), uint8(rgb >> 8), uint8(rgb)
}

// HSVToRGB converts hue (0-359 degrees), saturation and value (0-100 percent)
// to 8-bit RGB components. Out-of-range inputs are clamped.
func HSVToRGB(hue, sat, val int) (r, g, b uint8) {
	h := float64(((hue % 360) + 360) % 360)
	s := clamp(float64(sat)/100, 0, 1)
	v := clamp(float64(val)/100, 0, 1)

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}

	return toByte(rf + m), toByte(gf + m), toByte(bf + m)
}

// HSVToPacked converts HSV to a packed 24-bit color.
func HSVToPacked(hue, sat, val int) int {
	r, g, b := HSVToRGB(hue, sat, val)
	return PackRGB(r, g, b)
}

func toByte(f float64) uint8 {
	return uint8(math.Round(clamp(f, 0, 1) * 255))
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

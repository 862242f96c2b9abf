package imgproc

import (
	"image/color"
	"math"
)

// HSV is a colour in the 8-bit full-range space: 0 <= H, S, V <= 255.
// Hue covers the whole circle in 256 steps rather than OpenCV's default 0-179.
type HSV struct {
	H uint8
	S uint8
	V uint8
}

// RGBA converts an HSV color to RGBA, where `A` is implicitly set to 255 (solid)
func (col HSV) RGBA() color.RGBA {
	var rp, gp, bp float64 // R' G' B'

	h := float64(col.H) * 360.0 / 256.0
	s := float64(col.S) / 255.0
	v := float64(col.V) / 255.0

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	switch {
	case h < 60:
		rp, gp, bp = c, x, 0
	case h < 120:
		rp, gp, bp = x, c, 0
	case h < 180:
		rp, gp, bp = 0, c, x
	case h < 240:
		rp, gp, bp = 0, x, c
	case h < 300:
		rp, gp, bp = x, 0, c
	default:
		rp, gp, bp = c, 0, x
	}

	r := uint8(math.Round((rp + m) * 255))
	g := uint8(math.Round((gp + m) * 255))
	b := uint8(math.Round((bp + m) * 255))

	return color.RGBA{r, g, b, 255}
}

// HSVRange holds the calibration bounds for one colour class. Bounds are inclusive.
type HSVRange struct {
	HueMin int `json:"hue_min"`
	HueMax int `json:"hue_max"`
	SatMin int `json:"sat_min"`
	SatMax int `json:"sat_max"`
	ValMin int `json:"val_min"`
	ValMax int `json:"val_max"`
}

// FullRange accepts every pixel
func FullRange() HSVRange {
	return HSVRange{HueMax: 255, SatMax: 255, ValMax: 255}
}

// Contains reports whether the colour lies inside the range on all three axes
func (r HSVRange) Contains(col HSV) bool {
	return int(col.H) >= r.HueMin && int(col.H) <= r.HueMax &&
		int(col.S) >= r.SatMin && int(col.S) <= r.SatMax &&
		int(col.V) >= r.ValMin && int(col.V) <= r.ValMax
}

// Degenerate is true when any axis has min > max, which selects nothing
func (r HSVRange) Degenerate() bool {
	return r.HueMin > r.HueMax || r.SatMin > r.SatMax || r.ValMin > r.ValMax
}

// Clamp limits every bound to 0-255
func (r HSVRange) Clamp() HSVRange {
	return HSVRange{
		HueMin: clampInt(r.HueMin, 0, 255),
		HueMax: clampInt(r.HueMax, 0, 255),
		SatMin: clampInt(r.SatMin, 0, 255),
		SatMax: clampInt(r.SatMax, 0, 255),
		ValMin: clampInt(r.ValMin, 0, 255),
		ValMax: clampInt(r.ValMax, 0, 255),
	}
}

// Mid returns the colour in the middle of the range, used to paint overlay markers
func (r HSVRange) Mid() HSV {
	c := r.Clamp()
	return HSV{
		H: uint8((c.HueMin + c.HueMax) / 2),
		S: uint8((c.SatMin + c.SatMax) / 2),
		V: uint8((c.ValMin + c.ValMax) / 2),
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

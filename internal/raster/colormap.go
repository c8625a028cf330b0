package raster

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Colormap maps a weight in [0, 1] to a color.
type Colormap func(w float64) colorful.Color

// Heat blends from deep blue through white to red in CIE L*a*b*, so equal
// weight steps look like equal color steps.
func Heat(w float64) colorful.Color {
	w = math.Max(0, math.Min(1, w))
	cold := colorful.Color{R: 0.05, G: 0.15, B: 0.6}
	mid := colorful.Color{R: 0.95, G: 0.95, B: 0.92}
	hot := colorful.Color{R: 0.75, G: 0.05, B: 0.05}
	if w < 0.5 {
		return cold.BlendLab(mid, w*2).Clamped()
	}
	return mid.BlendLab(hot, (w-0.5)*2).Clamped()
}

// Gray maps weights to luminance.
func Gray(w float64) colorful.Color {
	w = math.Max(0, math.Min(1, w))
	return colorful.Color{R: w, G: w, B: w}
}

// ParseColormap looks a colormap up by name.
func ParseColormap(name string) (Colormap, error) {
	switch name {
	case "", "heat":
		return Heat, nil
	case "gray", "grey":
		return Gray, nil
	default:
		return nil, fmt.Errorf("unknown colormap %q", name)
	}
}

// Palette returns n distinct colors evenly spaced in hue.
func Palette(n int) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		h := 360 * float64(i) / float64(max(n, 1))
		out[i] = colorful.Hcl(h, 0.6, 0.7).Clamped()
	}
	return out
}

// Blend mixes palette colors by weight, giving soft borders between
// dominant regions.
func Blend(palette []colorful.Color, weights []float64) colorful.Color {
	var c colorful.Color
	for h, w := range weights {
		if h >= len(palette) || w <= 0 {
			continue
		}
		c.R += w * palette[h].R
		c.G += w * palette[h].G
		c.B += w * palette[h].B
	}
	return c.Clamped()
}

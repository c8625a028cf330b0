package raster

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Vertex is a projected corner: pixel coordinates, depth and color.
type Vertex struct {
	X, Y, Z float64
	Color   colorful.Color
}

// RasterizeTriangle fills a triangle with Gouraud interpolated colors scaled
// by shade, testing and writing the z-buffer. Pixels are sampled at their
// centers; winding does not matter.
func RasterizeTriangle(fb *FrameBuffer, a, b, c Vertex, shade float64) {
	minX := int(math.Floor(min(a.X, b.X, c.X)))
	maxX := int(math.Ceil(max(a.X, b.X, c.X)))
	minY := int(math.Floor(min(a.Y, b.Y, c.Y)))
	maxY := int(math.Ceil(max(a.Y, b.Y, c.Y)))
	minX, minY = max(minX, 0), max(minY, 0)
	maxX, maxY = min(maxX, fb.Width-1), min(maxY, fb.Height-1)
	if minX > maxX || minY > maxY {
		return
	}

	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if math.Abs(det) < 1e-12 {
		return
	}
	invDet := 1 / det

	dy12 := b.Y - c.Y
	dx21 := c.X - b.X
	dy20 := c.Y - a.Y
	dx02 := a.X - c.X

	for sy := minY; sy <= maxY; sy++ {
		dsy := float64(sy) + 0.5 - c.Y
		row := sy * fb.Width
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) + 0.5 - c.X
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1 - w0 - w1
			if w0 < -1e-9 || w1 < -1e-9 || w2 < -1e-9 {
				continue
			}

			z := w0*a.Z + w1*b.Z + w2*c.Z
			zi := row + sx
			if z <= fb.ZBuf[zi] {
				continue
			}
			fb.ZBuf[zi] = z

			r := (w0*a.Color.R + w1*b.Color.R + w2*c.Color.R) * shade
			g := (w0*a.Color.G + w1*b.Color.G + w2*c.Color.G) * shade
			bl := (w0*a.Color.B + w1*b.Color.B + w2*c.Color.B) * shade

			px := zi * 4
			fb.Color[px] = clamp255(r * 255)
			fb.Color[px+1] = clamp255(g * 255)
			fb.Color[px+2] = clamp255(bl * 255)
			fb.Color[px+3] = 255
		}
	}
}

func clamp255(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

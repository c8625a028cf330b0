package raster

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/pkg/voxel"
)

// HandleColors colors each row of w by its weight for one handle.
func HandleColors(w *mat.Dense, handle int, cmap Colormap) []colorful.Color {
	rows, _ := w.Dims()
	out := make([]colorful.Color, rows)
	for i := range out {
		out[i] = cmap(w.At(i, handle))
	}
	return out
}

// BlendColors colors each row of w by mixing one palette color per handle.
func BlendColors(w *mat.Dense) []colorful.Color {
	rows, cols := w.Dims()
	palette := Palette(cols)
	out := make([]colorful.Color, rows)
	for i := range out {
		out[i] = Blend(palette, w.RawRowView(i))
	}
	return out
}

var labelColors = [...]color.NRGBA{
	voxel.Outside:  {0, 0, 0, 0},
	voxel.Boundary: {230, 140, 40, 255},
	voxel.Inside:   {60, 110, 200, 255},
}

// Slice draws layer z of g, one scale x scale block per voxel, with y up.
func Slice(g *voxel.Grid, z, scale int) *image.NRGBA {
	scale = max(scale, 1)
	nx, ny := g.Dims[0], g.Dims[1]
	img := image.NewNRGBA(image.Rect(0, 0, nx*scale, ny*scale))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			c := labelColors[g.At(x, y, z)]
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetNRGBA(x*scale+dx, (ny-1-y)*scale+dy, c)
				}
			}
		}
	}
	return img
}

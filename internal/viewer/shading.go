package viewer

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/internal/raster"
	"github.com/Faultbox/bbweights/pkg/bbw"
)

// shading is the selected coloring: one handle through a colormap, or
// every vertex by its dominant handle.
type shading struct {
	weights  *mat.Dense
	names    []string
	cmap     raster.Colormap
	handle   int
	dominant bool
}

// step moves the selected handle by d, wrapping around, and leaves
// dominant mode.
func (s *shading) step(d int) {
	n := len(s.names)
	if n == 0 {
		return
	}
	s.dominant = false
	s.handle = ((s.handle+d)%n + n) % n
}

func (s *shading) colors() []colorful.Color {
	if s.dominant {
		_, cols := s.weights.Dims()
		palette := raster.Palette(cols)
		dom := bbw.Dominant(s.weights)
		out := make([]colorful.Color, len(dom))
		for i, j := range dom {
			out[i] = palette[j]
		}
		return out
	}
	return raster.HandleColors(s.weights, s.handle, s.cmap)
}

func (s *shading) label() string {
	if s.dominant {
		return "dominant"
	}
	if len(s.names) == 0 {
		return "-"
	}
	return fmt.Sprintf("%s (%d/%d)", s.names[s.handle], s.handle+1, len(s.names))
}

// Package raster draws weight previews of a surface mesh without a GPU.
package raster

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
)

// ErrColors is returned when the color count does not match the vertices.
var ErrColors = errors.New("one color per vertex required")

// Options controls the view.
type Options struct {
	Size        int     // output width and height in pixels
	Supersample int     // render at Size*Supersample then downscale
	Yaw         float64 // rotation about +y, radians
	Pitch       float64 // rotation about +x after yaw, radians
	Background  color.NRGBA
	Ambient     float64
}

// DefaultOptions returns a three-quarter view on a transparent background.
func DefaultOptions() Options {
	return Options{
		Size:        512,
		Supersample: 2,
		Yaw:         math.Pi / 6,
		Pitch:       -math.Pi / 9,
		Ambient:     0.35,
	}
}

var lightDir = r3.Unit(r3.Vec{X: 0.4, Y: 0.6, Z: 1})

// Render draws m with one color per vertex, orthographically projected and
// fitted to the frame.
func Render(m *mesh.Mesh, colors []colorful.Color, opts Options) (*image.NRGBA, error) {
	if len(colors) != len(m.Vertices) {
		return nil, ErrColors
	}
	if opts.Size <= 0 {
		opts.Size = DefaultOptions().Size
	}
	ss := max(opts.Supersample, 1)
	size := opts.Size * ss

	view := View(m, opts.Yaw, opts.Pitch)
	b := view.Bounds()
	span := math.Max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	if span < 1e-12 {
		span = 1
	}
	margin := float64(8 * ss)
	scale := (float64(size) - 2*margin) / span
	cx, cy := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2

	verts := make([]Vertex, len(view.Vertices))
	for i, p := range view.Vertices {
		verts[i] = Vertex{
			X:     float64(size)/2 + (p.X-cx)*scale,
			Y:     float64(size)/2 - (p.Y-cy)*scale,
			Z:     p.Z,
			Color: colors[i],
		}
	}

	fb := NewFrameBuffer(size, size)
	bg := opts.Background
	fb.Fill(bg.R, bg.G, bg.B, bg.A)
	for f := range view.Faces {
		t := view.Triangle(f)
		n := r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
		if r3.Norm(n) == 0 {
			continue
		}
		lambert := math.Abs(r3.Dot(r3.Unit(n), lightDir))
		shade := opts.Ambient + (1-opts.Ambient)*lambert
		face := view.Faces[f]
		RasterizeTriangle(fb, verts[face[0]], verts[face[1]], verts[face[2]], shade)
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	copy(img.Pix, fb.Color)
	if ss > 1 {
		img = Downsample(img, opts.Size)
	}
	return img, nil
}

// View returns a copy of m rotated by yaw about +y and then pitch about +x.
func View(m *mesh.Mesh, yaw, pitch float64) *mesh.Mesh {
	ry := r3.NewRotation(yaw, r3.Vec{Y: 1})
	rx := r3.NewRotation(pitch, r3.Vec{X: 1})
	out := &mesh.Mesh{Vertices: make([]r3.Vec, len(m.Vertices)), Faces: m.Faces}
	for i, p := range m.Vertices {
		out.Vertices[i] = rx.Rotate(ry.Rotate(p))
	}
	return out
}

// Downsample scales a supersampled frame to size x size with CatmullRom,
// premultiplying alpha first so transparent edges do not darken.
func Downsample(img *image.NRGBA, size int) *image.NRGBA {
	b := img.Bounds()
	premul := image.NewRGBA(b)
	draw.Draw(premul, b, img, b.Min, draw.Src)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), premul, b, draw.Src, nil)

	out := image.NewNRGBA(dst.Bounds())
	draw.Draw(out, out.Bounds(), dst, image.Point{}, draw.Src)
	return out
}

// Package viewer shows solved weights on the mesh in an OpenGL window.
//
// Drag with the left button to orbit and use the wheel to zoom. Tab and
// Shift+Tab (or the arrow keys) cycle handles, D toggles the dominant
// handle view, S the skeleton, B the grid bounds and R resets the camera.
// Esc quits.
package viewer

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/raster"
	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

func init() {
	// OpenGL calls must be made from the main thread.
	runtime.LockOSThread()
}

const fovY = math.Pi / 4

var lightDir = r3.Unit(r3.Vec{X: 0.3, Y: 0.8, Z: 0.5})

// Scene is what the viewer shows.
type Scene struct {
	Mesh     *mesh.Mesh
	Skeleton *skeleton.Skeleton
	Weights  *mat.Dense // one row per mesh vertex
	Names    []string   // one per weight column
	Bounds   r3.Box     // grid bounds; drawn when non-empty
}

// Config holds viewer settings.
type Config struct {
	Window   WindowConfig
	Colormap raster.Colormap // nil uses raster.Heat
	Logger   *zap.Logger
}

// ErrScene is returned when weights and mesh disagree.
var ErrScene = errors.New("viewer: weights do not match the mesh")

// drawable is one uploaded vertex array.
type drawable struct {
	vao, vbo, ebo, cbo uint32
	count              int32
}

type viewer struct {
	cfg   Config
	log   *zap.Logger
	win   *window
	cam   *orbitCamera
	in    input
	shade shading
	scene Scene

	surfaceProgram, lineProgram uint32
	surface, skeleton, bounds   drawable

	showSkeleton, showBounds bool
}

// Run opens the window and blocks until it is closed. It must be called
// from the main goroutine.
func Run(cfg Config, scene Scene) error {
	if rows, cols := scene.Weights.Dims(); rows != len(scene.Mesh.Vertices) || cols != len(scene.Names) {
		return fmt.Errorf("%w: %dx%d weights, %d vertices, %d names",
			ErrScene, rows, cols, len(scene.Mesh.Vertices), len(scene.Names))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Colormap == nil {
		cfg.Colormap = raster.Heat
	}

	v := &viewer{
		cfg:          cfg,
		log:          cfg.Logger,
		cam:          newOrbitCamera(),
		scene:        scene,
		showSkeleton: true,
		showBounds:   !isEmpty(scene.Bounds),
		shade: shading{
			weights: scene.Weights,
			names:   scene.Names,
			cmap:    cfg.Colormap,
		},
	}
	if err := v.init(); err != nil {
		v.close()
		return err
	}
	defer v.close()
	v.resetCamera()
	v.loop()
	return nil
}

func (v *viewer) init() error {
	var err error
	v.win, err = newWindow(v.cfg.Window, v.log)
	if err != nil {
		return err
	}
	if err := gl.Init(); err != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	v.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.MULTISAMPLE)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)

	if v.surfaceProgram, err = compileProgram(surfaceVertexShader, surfaceFragmentShader); err != nil {
		return fmt.Errorf("surface program: %w", err)
	}
	if v.lineProgram, err = compileProgram(lineVertexShader, lineFragmentShader); err != nil {
		return fmt.Errorf("line program: %w", err)
	}

	verts, indices := surfaceVertices(v.scene.Mesh)
	v.surface = uploadSurface(verts, indices, colorData(v.shade.colors()))

	if v.scene.Skeleton != nil {
		r := 0.01 * r3.Norm(r3.Sub(v.scene.Mesh.Bounds().Max, v.scene.Mesh.Bounds().Min))
		v.skeleton = uploadLines(skeletonLines(v.scene.Skeleton, r))
	}
	if !isEmpty(v.scene.Bounds) {
		v.bounds = uploadLines(boxLines(v.scene.Bounds))
	}
	v.updateTitle()
	return nil
}

func (v *viewer) loop() {
	for v.in.poll() {
		if v.in.dragX != 0 || v.in.dragY != 0 {
			v.cam.HandleDrag(v.in.dragX, v.in.dragY)
		}
		if v.in.zoom != 0 {
			v.cam.HandleZoom(v.in.zoom)
		}
		for _, a := range v.in.actions {
			v.apply(a)
		}
		v.draw()
		v.win.swap()
	}
}

func (v *viewer) apply(a action) {
	switch a {
	case actionNextHandle:
		v.shade.step(1)
	case actionPrevHandle:
		v.shade.step(-1)
	case actionToggleDominant:
		v.shade.dominant = !v.shade.dominant
	case actionToggleSkeleton:
		v.showSkeleton = !v.showSkeleton
		return
	case actionToggleBounds:
		v.showBounds = !v.showBounds
		return
	case actionResetCamera:
		v.resetCamera()
		return
	default:
		return
	}
	v.recolor()
}

func (v *viewer) recolor() {
	data := colorData(v.shade.colors())
	gl.BindBuffer(gl.ARRAY_BUFFER, v.surface.cbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(data)*4, unsafe.Pointer(&data[0]))
	v.updateTitle()
}

func (v *viewer) resetCamera() {
	v.cam.FitToBounds(v.scene.Mesh.Bounds(), fovY)
}

func (v *viewer) updateTitle() {
	v.win.setTitle(fmt.Sprintf("%s - %s", v.cfg.Window.Title, v.shade.label()))
}

func (v *viewer) draw() {
	w, h := v.win.drawableSize()
	gl.Viewport(0, 0, int32(w), int32(h))
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	radius := v.cam.Distance
	proj := perspective(fovY, float64(w)/math.Max(float64(h), 1), radius*0.01, radius*10)
	mvp := proj.mul(v.cam.ViewMatrix())

	gl.UseProgram(v.surfaceProgram)
	gl.UniformMatrix4fv(uniform(v.surfaceProgram, "uMVP"), 1, false, &mvp[0])
	gl.Uniform3f(uniform(v.surfaceProgram, "uLightDir"), float32(lightDir.X), float32(lightDir.Y), float32(lightDir.Z))
	gl.Uniform1f(uniform(v.surfaceProgram, "uAmbient"), 0.35)
	gl.BindVertexArray(v.surface.vao)
	gl.DrawElements(gl.TRIANGLES, v.surface.count, gl.UNSIGNED_INT, nil)

	gl.UseProgram(v.lineProgram)
	gl.UniformMatrix4fv(uniform(v.lineProgram, "uMVP"), 1, false, &mvp[0])
	if v.showBounds && v.bounds.vao != 0 {
		gl.BindVertexArray(v.bounds.vao)
		gl.DrawArrays(gl.LINES, 0, v.bounds.count)
	}
	if v.showSkeleton && v.skeleton.vao != 0 {
		// Bones stay visible through the surface.
		gl.Disable(gl.DEPTH_TEST)
		gl.BindVertexArray(v.skeleton.vao)
		gl.DrawArrays(gl.LINES, 0, v.skeleton.count)
		gl.Enable(gl.DEPTH_TEST)
	}
	gl.BindVertexArray(0)
}

func (v *viewer) close() {
	for _, d := range []*drawable{&v.surface, &v.skeleton, &v.bounds} {
		d.release()
	}
	if v.surfaceProgram != 0 {
		gl.DeleteProgram(v.surfaceProgram)
	}
	if v.lineProgram != 0 {
		gl.DeleteProgram(v.lineProgram)
	}
	if v.win != nil {
		v.win.close()
		v.win = nil
	}
}

func uploadSurface(verts []float32, indices []uint32, colors []float32) drawable {
	var d drawable
	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, unsafe.Pointer(&verts[0]), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, surfaceStride*4, 0)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, surfaceStride*4, 3*4)

	gl.GenBuffers(1, &d.cbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.cbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(colors)*4, unsafe.Pointer(&colors[0]), gl.DYNAMIC_DRAW)
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointerWithOffset(2, 3, gl.FLOAT, false, colorStride*4, 0)

	gl.GenBuffers(1, &d.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, unsafe.Pointer(&indices[0]), gl.STATIC_DRAW)
	d.count = int32(len(indices))

	gl.BindVertexArray(0)
	return d
}

func uploadLines(verts []float32) drawable {
	var d drawable
	if len(verts) == 0 {
		return d
	}
	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, unsafe.Pointer(&verts[0]), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, lineStride*4, 0)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, lineStride*4, 3*4)
	d.count = int32(len(verts) / lineStride)

	gl.BindVertexArray(0)
	return d
}

func (d *drawable) release() {
	for _, b := range []*uint32{&d.vbo, &d.ebo, &d.cbo} {
		if *b != 0 {
			gl.DeleteBuffers(1, b)
			*b = 0
		}
	}
	if d.vao != 0 {
		gl.DeleteVertexArrays(1, &d.vao)
		d.vao = 0
	}
}

func isEmpty(b r3.Box) bool {
	return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y || b.Max.Z <= b.Min.Z
}

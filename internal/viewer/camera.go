package viewer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// orbitCamera circles a center point.
type orbitCamera struct {
	Center r3.Vec

	Distance float64
	Pitch    float64 // radians above the horizon
	Yaw      float64 // radians about +y

	MinDistance, MaxDistance float64
	MinPitch, MaxPitch       float64

	DragSensitivity float64
	ZoomSensitivity float64
}

func newOrbitCamera() *orbitCamera {
	return &orbitCamera{
		Distance:        3,
		Pitch:           0.35,
		Yaw:             0.5,
		MinDistance:     0.01,
		MaxDistance:     1e6,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the eye in world space.
func (c *orbitCamera) Position() r3.Vec {
	cp := math.Cos(c.Pitch)
	return r3.Add(c.Center, r3.Vec{
		X: c.Distance * cp * math.Sin(c.Yaw),
		Y: c.Distance * math.Sin(c.Pitch),
		Z: c.Distance * cp * math.Cos(c.Yaw),
	})
}

func (c *orbitCamera) ViewMatrix() mat4 {
	return lookAt(c.Position(), c.Center, r3.Vec{Y: 1})
}

// HandleDrag rotates by a mouse delta in pixels.
func (c *orbitCamera) HandleDrag(dx, dy float64) {
	c.Yaw -= dx * c.DragSensitivity
	c.Pitch = clamp(c.Pitch+dy*c.DragSensitivity, c.MinPitch, c.MaxPitch)
}

// HandleZoom scales the distance by wheel steps.
func (c *orbitCamera) HandleZoom(delta float64) {
	c.Distance = clamp(c.Distance-delta*c.Distance*c.ZoomSensitivity, c.MinDistance, c.MaxDistance)
}

// FitToBounds centers on b at a distance that shows all of it for the
// vertical field of view fovY.
func (c *orbitCamera) FitToBounds(b r3.Box, fovY float64) {
	c.Center = r3.Scale(0.5, r3.Add(b.Min, b.Max))
	radius := 0.5 * r3.Norm(r3.Sub(b.Max, b.Min))
	if radius <= 0 {
		radius = 1
	}
	c.Distance = radius / math.Sin(fovY/2) * 1.1
	c.MinDistance = radius * 0.05
	c.MaxDistance = radius * 50
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

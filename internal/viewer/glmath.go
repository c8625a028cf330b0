package viewer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// mat4 is a 4x4 matrix in column-major order, the layout OpenGL expects.
//
//	[m0 m4 m8  m12]
//	[m1 m5 m9  m13]
//	[m2 m6 m10 m14]
//	[m3 m7 m11 m15]
type mat4 [16]float32

func identity() mat4 {
	return mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// perspective returns a right-handed projection. fovY is in radians.
func perspective(fovY, aspect, near, far float64) mat4 {
	f := 1 / math.Tan(fovY/2)
	nf := 1 / (near - far)
	return mat4{
		float32(f / aspect), 0, 0, 0,
		0, float32(f), 0, 0,
		0, 0, float32((far + near) * nf), -1,
		0, 0, float32(2 * far * near * nf), 0,
	}
}

// lookAt returns a view matrix from eye towards center.
func lookAt(eye, center, up r3.Vec) mat4 {
	f := r3.Unit(r3.Sub(center, eye))
	s := r3.Unit(r3.Cross(f, up))
	u := r3.Cross(s, f)
	return mat4{
		float32(s.X), float32(u.X), float32(-f.X), 0,
		float32(s.Y), float32(u.Y), float32(-f.Y), 0,
		float32(s.Z), float32(u.Z), float32(-f.Z), 0,
		float32(-r3.Dot(s, eye)), float32(-r3.Dot(u, eye)), float32(r3.Dot(f, eye)), 1,
	}
}

// mul returns m * o.
func (m mat4) mul(o mat4) mat4 {
	var r mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			r[col*4+row] = m[row]*o[col*4] +
				m[4+row]*o[col*4+1] +
				m[8+row]*o[col*4+2] +
				m[12+row]*o[col*4+3]
		}
	}
	return r
}

// apply transforms p with a perspective divide.
func (m mat4) apply(p r3.Vec) r3.Vec {
	x, y, z := float32(p.X), float32(p.Y), float32(p.Z)
	ox := m[0]*x + m[4]*y + m[8]*z + m[12]
	oy := m[1]*x + m[5]*y + m[9]*z + m[13]
	oz := m[2]*x + m[6]*y + m[10]*z + m[14]
	w := m[3]*x + m[7]*y + m[11]*z + m[15]
	if w != 0 && w != 1 {
		ox, oy, oz = ox/w, oy/w, oz/w
	}
	return r3.Vec{X: float64(ox), Y: float64(oy), Z: float64(oz)}
}

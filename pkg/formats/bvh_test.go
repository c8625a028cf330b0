package formats

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const armBVH = `HIERARCHY
ROOT Hips
{
	OFFSET 0.00 1.00 0.00
	CHANNELS 6 Xposition Yposition Zposition Zrotation Xrotation Yrotation
	JOINT Arm
	{
		OFFSET 1.0 0.0 0.0
		CHANNELS 3 Zrotation Xrotation Yrotation
		JOINT Hand
		{
			OFFSET 1.0 0.5 0.0
			CHANNELS 3 Zrotation Xrotation Yrotation
			End Site
			{
				OFFSET 0.0 0.0 0.25
			}
		}
	}
}
MOTION
Frames: 1
Frame Time: 0.033333
0 0 0 0 0 0 0 0 0 0 0 0
`

func TestParseBVH(t *testing.T) {
	s, err := ParseBVH([]byte(armBVH))
	if err != nil {
		t.Fatalf("ParseBVH failed: %v", err)
	}
	want := []struct {
		name   string
		parent int
		pos    r3.Vec
	}{
		{"Hips", -1, r3.Vec{Y: 1}},
		{"Arm", 0, r3.Vec{X: 1, Y: 1}},
		{"Hand", 1, r3.Vec{X: 2, Y: 1.5}},
		{"Hand_end", 2, r3.Vec{X: 2, Y: 1.5, Z: 0.25}},
	}
	if len(s.Joints) != len(want) {
		t.Fatalf("expected %d joints, got %d", len(want), len(s.Joints))
	}
	for i, w := range want {
		j := s.Joints[i]
		if j.Name != w.name || j.Parent != w.parent || j.Position != w.pos {
			t.Errorf("joint %d: expected %s/%d/%v, got %s/%d/%v", i, w.name, w.parent, w.pos, j.Name, j.Parent, j.Position)
		}
	}
	if err := s.Validate(); err != nil {
		t.Errorf("expected a valid tree: %v", err)
	}
}

func TestParseBVH_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrInvalidBVH},
		{"no root", "HIERARCHY\nJOINT a", ErrInvalidBVH},
		{"truncated", "HIERARCHY\nROOT a\n{\nOFFSET 0 0 0\n", ErrTruncatedBVH},
		{"bad offset", "HIERARCHY\nROOT a\n{\nOFFSET 0 x 0\n}\n", ErrInvalidBVH},
		{"bad channels", "HIERARCHY\nROOT a\n{\nOFFSET 0 0 0\nCHANNELS many\n}\n", ErrInvalidBVH},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBVH([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

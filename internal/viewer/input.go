package viewer

import (
	"github.com/veandco/go-sdl2/sdl"
)

// action is a viewer command decoded from input.
type action int

const (
	actionNone action = iota
	actionQuit
	actionNextHandle
	actionPrevHandle
	actionToggleDominant
	actionToggleSkeleton
	actionToggleBounds
	actionResetCamera
)

// input turns SDL events into camera motion and actions.
type input struct {
	dragging bool
	dragX    float64
	dragY    float64
	zoom     float64
	actions  []action
}

// poll drains the SDL queue. It reports false once the window should close.
func (in *input) poll() bool {
	in.dragX, in.dragY, in.zoom = 0, 0, 0
	in.actions = in.actions[:0]

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return false

		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN {
				continue
			}
			a := keyAction(e.Keysym.Scancode, uint32(e.Keysym.Mod)&uint32(sdl.KMOD_SHIFT) != 0)
			if a == actionQuit {
				return false
			}
			if a != actionNone {
				in.actions = append(in.actions, a)
			}

		case *sdl.MouseButtonEvent:
			if e.Button == sdl.BUTTON_LEFT {
				in.dragging = e.Type == sdl.MOUSEBUTTONDOWN
			}

		case *sdl.MouseMotionEvent:
			if in.dragging {
				in.dragX += float64(e.XRel)
				in.dragY += float64(e.YRel)
			}

		case *sdl.MouseWheelEvent:
			in.zoom += float64(e.Y)
		}
	}
	return true
}

func keyAction(key sdl.Scancode, shift bool) action {
	switch key {
	case sdl.SCANCODE_ESCAPE, sdl.SCANCODE_Q:
		return actionQuit
	case sdl.SCANCODE_TAB:
		if shift {
			return actionPrevHandle
		}
		return actionNextHandle
	case sdl.SCANCODE_RIGHT:
		return actionNextHandle
	case sdl.SCANCODE_LEFT:
		return actionPrevHandle
	case sdl.SCANCODE_D:
		return actionToggleDominant
	case sdl.SCANCODE_S:
		return actionToggleSkeleton
	case sdl.SCANCODE_B:
		return actionToggleBounds
	case sdl.SCANCODE_R:
		return actionResetCamera
	}
	return actionNone
}

package formats

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// BVH format errors.
var (
	ErrInvalidBVH   = errors.New("invalid BVH data")
	ErrTruncatedBVH = errors.New("truncated BVH hierarchy")
)

// ParseBVH reads the HIERARCHY section of a BVH motion file. Offsets are
// accumulated into rest pose world positions. End sites become leaf joints
// named after their parent with an "_end" suffix so the last bone of every
// chain has a tip. The MOTION section is ignored.
func ParseBVH(data []byte) (*skeleton.Skeleton, error) {
	p := &bvhParser{tokens: strings.Fields(string(data))}
	if p.next() != "HIERARCHY" {
		return nil, fmt.Errorf("%w: missing HIERARCHY", ErrInvalidBVH)
	}
	if p.next() != "ROOT" {
		return nil, fmt.Errorf("%w: missing ROOT", ErrInvalidBVH)
	}
	s := &skeleton.Skeleton{}
	if err := p.joint(s, -1, r3.Vec{}); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseBVHFile reads and parses a BVH file from disk.
func ParseBVHFile(path string) (*skeleton.Skeleton, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading BVH file: %w", err)
	}
	return ParseBVH(data)
}

type bvhParser struct {
	tokens []string
	pos    int
}

func (p *bvhParser) next() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *bvhParser) expect(want string) error {
	got := p.next()
	switch got {
	case want:
		return nil
	case "":
		return fmt.Errorf("%w: expected %q", ErrTruncatedBVH, want)
	default:
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidBVH, want, got)
	}
}

func (p *bvhParser) offset() (r3.Vec, error) {
	if err := p.expect("OFFSET"); err != nil {
		return r3.Vec{}, err
	}
	var c [3]float64
	for i := range c {
		tok := p.next()
		if tok == "" {
			return r3.Vec{}, ErrTruncatedBVH
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("%w: offset %q", ErrInvalidBVH, tok)
		}
		c[i] = f
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// joint parses "name { OFFSET .. CHANNELS .. children }" after the ROOT or
// JOINT keyword.
func (p *bvhParser) joint(s *skeleton.Skeleton, parent int, origin r3.Vec) error {
	name := p.next()
	if name == "" {
		return ErrTruncatedBVH
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	off, err := p.offset()
	if err != nil {
		return err
	}
	pos := r3.Add(origin, off)
	self := len(s.Joints)
	s.Joints = append(s.Joints, skeleton.Joint{Name: name, Parent: parent, Position: pos})

	for {
		switch tok := p.next(); tok {
		case "CHANNELS":
			n, err := strconv.Atoi(p.next())
			if err != nil || n < 0 {
				return fmt.Errorf("%w: bad channel count for %q", ErrInvalidBVH, name)
			}
			p.pos += n
		case "JOINT":
			if err := p.joint(s, self, pos); err != nil {
				return err
			}
		case "End":
			if err := p.expect("Site"); err != nil {
				return err
			}
			if err := p.expect("{"); err != nil {
				return err
			}
			off, err := p.offset()
			if err != nil {
				return err
			}
			if err := p.expect("}"); err != nil {
				return err
			}
			s.Joints = append(s.Joints, skeleton.Joint{
				Name:     name + "_end",
				Parent:   self,
				Position: r3.Add(pos, off),
			})
		case "}":
			return nil
		case "":
			return ErrTruncatedBVH
		default:
			return fmt.Errorf("%w: unexpected %q in %q", ErrInvalidBVH, tok, name)
		}
	}
}

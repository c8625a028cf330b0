package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/voxel"
)

// Binvox format errors.
var (
	ErrInvalidBinvoxHeader = errors.New("invalid binvox header")
	ErrTruncatedBinvoxData = errors.New("truncated binvox data")
)

// Binvox is an occupancy grid in the binvox layout. Voxels are stored with
// y varying fastest, then z, then x.
type Binvox struct {
	Dims      [3]int // x, y, z
	Translate r3.Vec
	Scale     float64 // edge length of the longest axis
	Voxels    []bool
}

// Index returns the storage index of voxel (x, y, z).
func (b *Binvox) Index(x, y, z int) int {
	return (x*b.Dims[2]+z)*b.Dims[1] + y
}

// At reports whether voxel (x, y, z) is filled.
func (b *Binvox) At(x, y, z int) bool {
	return b.Voxels[b.Index(x, y, z)]
}

// Filled counts set voxels.
func (b *Binvox) Filled() int {
	n := 0
	for _, v := range b.Voxels {
		if v {
			n++
		}
	}
	return n
}

// BinvoxFromGrid converts the occupied voxels of g.
func BinvoxFromGrid(g *voxel.Grid) *Binvox {
	longest := max(g.Dims[0], g.Dims[1], g.Dims[2])
	b := &Binvox{
		Dims:      g.Dims,
		Translate: g.Origin,
		Scale:     g.Size * float64(longest),
		Voxels:    make([]bool, g.Len()),
	}
	for z := 0; z < g.Dims[2]; z++ {
		for y := 0; y < g.Dims[1]; y++ {
			for x := 0; x < g.Dims[0]; x++ {
				b.Voxels[b.Index(x, y, z)] = g.At(x, y, z).Occupied()
			}
		}
	}
	return b
}

// WriteBinvox encodes b with run-length encoded voxel data.
func WriteBinvox(out io.Writer, b *Binvox) error {
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "#binvox 1\n")
	fmt.Fprintf(w, "dim %d %d %d\n", b.Dims[0], b.Dims[1], b.Dims[2])
	fmt.Fprintf(w, "translate %s %s %s\n", formatFloat(b.Translate.X), formatFloat(b.Translate.Y), formatFloat(b.Translate.Z))
	fmt.Fprintf(w, "scale %s\n", formatFloat(b.Scale))
	fmt.Fprintf(w, "data\n")

	for i := 0; i < len(b.Voxels); {
		v := b.Voxels[i]
		n := 1
		for i+n < len(b.Voxels) && b.Voxels[i+n] == v && n < 255 {
			n++
		}
		var bit byte
		if v {
			bit = 1
		}
		w.WriteByte(bit)
		w.WriteByte(byte(n))
		i += n
	}
	return w.Flush()
}

// ParseBinvox parses a binvox file.
func ParseBinvox(data []byte) (*Binvox, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	magic, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(magic, "#binvox") {
		return nil, fmt.Errorf("%w: missing #binvox line", ErrInvalidBinvoxHeader)
	}

	b := &Binvox{Scale: 1}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBinvoxHeader, err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "data" {
			break
		}
		if err := b.header(fields); err != nil {
			return nil, err
		}
	}
	n := b.Dims[0] * b.Dims[1] * b.Dims[2]
	if n <= 0 {
		return nil, fmt.Errorf("%w: missing dim", ErrInvalidBinvoxHeader)
	}

	b.Voxels = make([]bool, 0, n)
	var pair [2]byte
	for len(b.Voxels) < n {
		if _, err := io.ReadFull(r, pair[:]); err != nil {
			return nil, fmt.Errorf("%w: %d of %d voxels", ErrTruncatedBinvoxData, len(b.Voxels), n)
		}
		run := int(pair[1])
		if len(b.Voxels)+run > n {
			return nil, fmt.Errorf("%w: run overflows the grid", ErrInvalidBinvoxHeader)
		}
		for k := 0; k < run; k++ {
			b.Voxels = append(b.Voxels, pair[0] != 0)
		}
	}
	return b, nil
}

func (b *Binvox) header(fields []string) error {
	nums := func(want int) ([]float64, error) {
		if len(fields) != want+1 {
			return nil, fmt.Errorf("%w: %q needs %d values", ErrInvalidBinvoxHeader, fields[0], want)
		}
		out := make([]float64, want)
		for i := range out {
			f, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrInvalidBinvoxHeader, fields[0], err)
			}
			out[i] = f
		}
		return out, nil
	}
	switch fields[0] {
	case "dim":
		v, err := nums(3)
		if err != nil {
			return err
		}
		b.Dims = [3]int{int(v[0]), int(v[1]), int(v[2])}
	case "translate":
		v, err := nums(3)
		if err != nil {
			return err
		}
		b.Translate = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	case "scale":
		v, err := nums(1)
		if err != nil {
			return err
		}
		b.Scale = v[0]
	}
	return nil
}

// ParseBinvoxFile reads and parses a binvox file from disk.
func ParseBinvoxFile(path string) (*Binvox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading binvox file: %w", err)
	}
	return ParseBinvox(data)
}

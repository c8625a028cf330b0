package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Weight file errors.
var (
	ErrInvalidWeightsMagic       = errors.New("invalid weights magic: expected 'BBWW'")
	ErrUnsupportedWeightsVersion = errors.New("unsupported weights version")
	ErrTruncatedWeightsData      = errors.New("truncated weights data")
	ErrWeightsShape              = errors.New("handle names do not match weight columns")
)

const weightsMagic = "BBWW"

// WeightsVersion is the binary weight file version.
type WeightsVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v WeightsVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentWeightsVersion is written by WriteWeights.
var CurrentWeightsVersion = WeightsVersion{Major: 1, Minor: 0}

// Weights is a parsed weight file: one row per vertex and one column per
// named handle.
//
// Layout (little-endian):
//
//	magic    [4]byte "BBWW"
//	version  major, minor uint8
//	rows     uint32
//	cols     uint32
//	names    cols × (uint16 length, bytes)
//	weights  rows × cols float64, row major
type Weights struct {
	Version WeightsVersion
	Names   []string
	W       *mat.Dense
}

// ParseWeights parses a binary weight file.
func ParseWeights(data []byte) (*Weights, error) {
	if len(data) < 14 {
		return nil, ErrTruncatedWeightsData
	}
	if string(data[0:4]) != weightsMagic {
		return nil, ErrInvalidWeightsMagic
	}
	out := &Weights{Version: WeightsVersion{Major: data[4], Minor: data[5]}}
	if out.Version.Major != CurrentWeightsVersion.Major {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWeightsVersion, out.Version)
	}

	r := bytes.NewReader(data[6:])
	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncatedWeightsData, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncatedWeightsData, err)
	}

	out.Names = make([]string, cols)
	for i := range out.Names {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: name %d: %w", ErrTruncatedWeightsData, i, err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: name %d: %w", ErrTruncatedWeightsData, i, err)
		}
		out.Names[i] = string(buf)
	}

	total := uint64(rows) * uint64(cols)
	if uint64(r.Len()) < total*8 {
		return nil, fmt.Errorf("%w: %d weights need %d bytes, have %d",
			ErrTruncatedWeightsData, total, total*8, r.Len())
	}
	if total == 0 {
		out.W = &mat.Dense{}
		return out, nil
	}
	raw := data[len(data)-r.Len():]
	vals := make([]float64, total)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	out.W = mat.NewDense(int(rows), int(cols), vals)
	return out, nil
}

// ParseWeightsFile reads and parses a weight file from disk.
func ParseWeightsFile(path string) (*Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights file: %w", err)
	}
	return ParseWeights(data)
}

// WriteWeights encodes w with one name per column.
func WriteWeights(out io.Writer, names []string, w *mat.Dense) error {
	var rows, cols int
	if !w.IsEmpty() {
		rows, cols = w.Dims()
	}
	if len(names) != cols {
		return fmt.Errorf("%w: %d names, %d columns", ErrWeightsShape, len(names), cols)
	}

	bw := bufio.NewWriter(out)
	bw.WriteString(weightsMagic)
	bw.WriteByte(CurrentWeightsVersion.Major)
	bw.WriteByte(CurrentWeightsVersion.Minor)

	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(rows))
	bw.Write(scratch[:4])
	binary.LittleEndian.PutUint32(scratch[:], uint32(cols))
	bw.Write(scratch[:4])
	for _, n := range names {
		if len(n) > math.MaxUint16 {
			return fmt.Errorf("handle name too long: %d bytes", len(n))
		}
		binary.LittleEndian.PutUint16(scratch[:], uint16(len(n)))
		bw.Write(scratch[:2])
		bw.WriteString(n)
	}
	for i := 0; i < rows; i++ {
		for _, v := range w.RawRowView(i) {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			bw.Write(scratch[:])
		}
	}
	return bw.Flush()
}

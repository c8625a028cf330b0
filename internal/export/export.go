// Package export writes solved weight tables to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/formats"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// ErrUnknownFormat is returned for an unrecognized format name or extension.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output encoding.
type Format int

// Output formats.
const (
	CSV Format = iota
	JSON
	XLSX
	Binary
)

// String returns the format name used in config files.
func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case XLSX:
		return "xlsx"
	case Binary:
		return "bbw"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "xlsx":
		return XLSX, nil
	case "bbw", "bin", "binary":
		return Binary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Table is a weight matrix ready for export.
type Table struct {
	RunID    string
	Names    []string
	Weights  *mat.Dense
	Warnings []bbw.Warning

	// MinWeight drops entries below it in the sparse JSON layout. 0 writes
	// a dense matrix.
	MinWeight float64
}

// FromResult builds a table from a solve. With joints set, bone columns are
// folded into joint columns named after skel's joints.
func FromResult(res *bbw.Result, skel *skeleton.Skeleton, joints *mat.Dense) Table {
	t := Table{
		RunID:    res.RunID.String(),
		Names:    res.HandleNames(),
		Weights:  res.Weights,
		Warnings: res.Warnings,
	}
	if joints != nil {
		_, cols := joints.Dims()
		t.Weights = joints
		t.Names = make([]string, cols)
		for j := range t.Names {
			t.Names[j] = skel.JointName(j)
		}
	}
	return t
}

func (t Table) dims() (rows, cols int) {
	if t.Weights == nil || t.Weights.IsEmpty() {
		return 0, len(t.Names)
	}
	return t.Weights.Dims()
}

// Write encodes t in format f.
func Write(w io.Writer, f Format, t Table) error {
	if _, cols := t.dims(); cols != len(t.Names) {
		return fmt.Errorf("%d handle names for %d columns", len(t.Names), cols)
	}
	switch f {
	case CSV:
		return writeCSV(w, t)
	case JSON:
		return writeJSON(w, t)
	case XLSX:
		return writeXLSX(w, t)
	case Binary:
		weights := t.Weights
		if weights == nil {
			weights = &mat.Dense{}
		}
		return formats.WriteWeights(w, t.Names, weights)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// WriteFile writes t to path in the format given by its extension.
func WriteFile(path string, t Table) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(out, f, t); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	rows, cols := t.dims()
	record := make([]string, cols+1)
	record[0] = "vertex"
	copy(record[1:], t.Names)
	if err := cw.Write(record); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		record[0] = strconv.Itoa(i)
		for h, v := range t.Weights.RawRowView(i) {
			record[h+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON layout. Exactly one of Weights and Entries is set.
type Document struct {
	RunID    string        `json:"run_id,omitempty"`
	Vertices int           `json:"vertices"`
	Handles  []string      `json:"handles"`
	Warnings []bbw.Warning `json:"warnings,omitempty"`
	Weights  [][]float64   `json:"weights,omitempty"`
	Entries  []Entry       `json:"entries,omitempty"`
}

// Entry is one non-zero weight in the sparse layout.
type Entry struct {
	Vertex int     `json:"vertex"`
	Handle int     `json:"handle"`
	Weight float64 `json:"weight"`
}

func writeJSON(w io.Writer, t Table) error {
	rows, _ := t.dims()
	doc := Document{
		RunID:    t.RunID,
		Vertices: rows,
		Handles:  t.Names,
		Warnings: t.Warnings,
	}
	if t.MinWeight > 0 && rows > 0 {
		doc.Entries = Entries(ToSparse(t.Weights, t.MinWeight))
	} else {
		doc.Weights = make([][]float64, rows)
		for i := range doc.Weights {
			doc.Weights[i] = t.Weights.RawRowView(i)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ToSparse keeps the weights at or above min. Small weights carry almost no
// influence in skinning and most of a skin's table is near zero.
func ToSparse(w *mat.Dense, min float64) *sparse.SparseArray {
	rows, cols := w.Dims()
	out := sparse.ZerosSparse(rows, cols)
	for i := 0; i < rows; i++ {
		for h, v := range w.RawRowView(i) {
			if v >= min && v != 0 {
				out.AddVal(v, i, h)
			}
		}
	}
	return out
}

// Entries lists the elements of a two dimensional sparse array in row major
// order.
func Entries(s *sparse.SparseArray) []Entry {
	out := make([]Entry, 0, len(s.Elements))
	for i := 0; i < s.Shape[0]; i++ {
		for h := 0; h < s.Shape[1]; h++ {
			if v := s.Get(i, h); v != 0 {
				out = append(out, Entry{Vertex: i, Handle: h, Weight: v})
			}
		}
	}
	return out
}

func writeXLSX(w io.Writer, t Table) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("weights")
	if err != nil {
		return err
	}
	rows, _ := t.dims()
	header := sheet.AddRow()
	header.AddCell().SetString("vertex")
	for _, n := range t.Names {
		header.AddCell().SetString(n)
	}
	for i := 0; i < rows; i++ {
		row := sheet.AddRow()
		row.AddCell().SetInt(i)
		for _, v := range t.Weights.RawRowView(i) {
			row.AddCell().SetFloat(v)
		}
	}

	info, err := file.AddSheet("handles")
	if err != nil {
		return err
	}
	header = info.AddRow()
	header.AddCell().SetString("column")
	header.AddCell().SetString("name")
	for h, n := range t.Names {
		row := info.AddRow()
		row.AddCell().SetInt(h)
		row.AddCell().SetString(n)
	}
	if t.RunID != "" {
		row := info.AddRow()
		row.AddCell().SetString("run")
		row.AddCell().SetString(t.RunID)
	}
	return file.Write(w)
}

package formats

import (
	"bytes"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestWriteWeights_Parse(t *testing.T) {
	w := mat.NewDense(3, 2, []float64{
		1, 0,
		0.25, 0.75,
		0.1, 0.9,
	})
	var buf bytes.Buffer
	if err := WriteWeights(&buf, []string{"root", "tip"}, w); err != nil {
		t.Fatalf("WriteWeights failed: %v", err)
	}
	if got := buf.Bytes()[:4]; string(got) != "BBWW" {
		t.Errorf("expected magic BBWW, got %q", got)
	}

	parsed, err := ParseWeights(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWeights failed: %v", err)
	}
	if parsed.Version != CurrentWeightsVersion {
		t.Errorf("expected version %s, got %s", CurrentWeightsVersion, parsed.Version)
	}
	if len(parsed.Names) != 2 || parsed.Names[0] != "root" || parsed.Names[1] != "tip" {
		t.Errorf("unexpected names %v", parsed.Names)
	}
	if !mat.Equal(parsed.W, w) {
		t.Errorf("weights differ:\n%v", mat.Formatted(parsed.W))
	}
}

func TestParseWeights_Errors(t *testing.T) {
	var good bytes.Buffer
	if err := WriteWeights(&good, []string{"a"}, mat.NewDense(2, 1, []float64{1, 1})); err != nil {
		t.Fatal(err)
	}
	data := good.Bytes()

	badVersion := append([]byte(nil), data...)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", data[:8], ErrTruncatedWeightsData},
		{"magic", append([]byte("XXXX"), data[4:]...), ErrInvalidWeightsMagic},
		{"version", badVersion, ErrUnsupportedWeightsVersion},
		{"missing rows", data[:len(data)-4], ErrTruncatedWeightsData},
		{"missing name", data[:16], ErrTruncatedWeightsData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWeights(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteWeights_NameMismatch(t *testing.T) {
	err := WriteWeights(&bytes.Buffer{}, []string{"a"}, mat.NewDense(1, 2, nil))
	if !errors.Is(err, ErrWeightsShape) {
		t.Errorf("expected ErrWeightsShape, got %v", err)
	}
}

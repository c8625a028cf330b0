package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/bbweights/pkg/mesh"
)

// ErrUnknownFormat is returned when a file extension has no reader.
var ErrUnknownFormat = errors.New("unknown file format")

// ParseMeshFile reads a surface mesh, choosing the parser by extension.
func ParseMeshFile(path string) (*mesh.Mesh, error) {
	switch {
	case extIs(path, ".obj"):
		return ParseOBJFile(path)
	case extIs(path, ".stl"):
		return ParseSTLFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

func extIs(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

package grid

import (
	"errors"
	"fmt"

	"github.com/notargets/gomg/mesh"
)

var ErrUnsupportedElement = errors.New("grid: unsupported element type")

// FromMesh builds level 0 of a new hierarchy from a coarse mesh and flags its boundary
func FromMesh(m *mesh.Mesh) (mg *MultiGrid, err error) {
	mg = NewMultiGrid()
	for _, x := range m.Vertices {
		mg.CreateVertex([3]float64{x[0], x[1], x[2]}, NoParent)
	}
	for k, verts := range m.EtoV {
		switch m.ElementTypes[k] {
		case mesh.Triangle, mesh.Quad:
			mg.CreateFace(verts, NoParent)
		case mesh.Tet:
			mg.CreateVolume([4]int{verts[0], verts[1], verts[2], verts[3]}, NoParent)
		default:
			err = fmt.Errorf("element %d of type %s: %w", k, m.ElementTypes[k], ErrUnsupportedElement)
			return nil, err
		}
	}
	mg.MarkBoundary()
	return
}

package mesh

import (
	"fmt"
	"sort"
	"strings"
)

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// NumVertices is the vertex count of the linear element
func (e ElementType) NumVertices() int {
	return [...]int{2, 3, 4, 4, 8, 6, 5}[e]
}

// Mesh is the coarse grid handed to the multigrid hierarchy as level 0
type Mesh struct {
	// Geometry
	Vertices [][]float64 // Vertex coordinates [nvertices][3]

	// Element data
	EtoV         [][]int       // Element to vertex connectivity [nelems][nverts_per_elem]
	ElementTypes []ElementType // Element type for each element

	// Mesh statistics
	NumElements int
	NumVertices int
}

// NewMesh creates an empty mesh
func NewMesh() *Mesh {
	return &Mesh{}
}

// AddNode appends a vertex, missing coordinates are zero
func (m *Mesh) AddNode(coords ...float64) (id int) {
	if len(coords) > 3 {
		panic(fmt.Errorf("a node has at most 3 coordinates, have %d", len(coords)))
	}
	x := make([]float64, 3)
	copy(x, coords)
	id = len(m.Vertices)
	m.Vertices = append(m.Vertices, x)
	m.NumVertices = len(m.Vertices)
	return
}

// AddElement appends an element after checking its vertex count and vertex indices
func (m *Mesh) AddElement(et ElementType, verts ...int) (id int, err error) {
	if len(verts) != et.NumVertices() {
		err = fmt.Errorf("a %s needs %d vertices, have %d", et, et.NumVertices(), len(verts))
		return
	}
	for _, v := range verts {
		if v < 0 || v >= m.NumVertices {
			err = fmt.Errorf("vertex %d of %s out of range [0,%d)", v, et, m.NumVertices)
			return
		}
	}
	id = len(m.EtoV)
	m.EtoV = append(m.EtoV, append([]int{}, verts...))
	m.ElementTypes = append(m.ElementTypes, et)
	m.NumElements = len(m.EtoV)
	return
}

// GetElementFaces returns the face vertices for each element type
func GetElementFaces(elemType ElementType, vertices []int) [][]int {
	switch elemType {
	case Triangle:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[0]},
		}
	case Quad:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[3]},
			{vertices[3], vertices[0]},
		}
	case Tet:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]}, // Face 0
			{vertices[1], vertices[2], vertices[3]}, // Face 1
			{vertices[2], vertices[0], vertices[3]}, // Face 2
			{vertices[0], vertices[1], vertices[3]}, // Face 3
		}
	default:
		return [][]int{}
	}
}

// BoundaryFaces returns the sorted vertex lists of faces (edges in 2D) owned by exactly one element
func (m *Mesh) BoundaryFaces() (faces [][]int) {
	count := make(map[string]int)
	verts := make(map[string][]int)
	for k := 0; k < m.NumElements; k++ {
		for _, f := range GetElementFaces(m.ElementTypes[k], m.EtoV[k]) {
			sorted := append([]int{}, f...)
			sort.Ints(sorted)
			key := fmt.Sprintf("%v", sorted)
			count[key]++
			verts[key] = sorted
		}
	}
	keys := make([]string, 0, len(count))
	for key, c := range count {
		if c == 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		faces = append(faces, verts[key])
	}
	return
}

// Statistics summarizes the mesh
func (m *Mesh) Statistics() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mesh Statistics:\n")
	fmt.Fprintf(&sb, "  Vertices: %d\n", m.NumVertices)
	fmt.Fprintf(&sb, "  Elements: %d\n", m.NumElements)

	// Count element types
	typeCounts := make(map[ElementType]int)
	for _, t := range m.ElementTypes {
		typeCounts[t]++
	}
	types := make([]ElementType, 0, len(typeCounts))
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	fmt.Fprintf(&sb, "  Element types:\n")
	for _, t := range types {
		fmt.Fprintf(&sb, "    %s: %d\n", t, typeCounts[t])
	}
	fmt.Fprintf(&sb, "  Boundary faces: %d\n", len(m.BoundaryFaces()))
	return sb.String()
}

package grid

import "fmt"

type Dim int

const (
	DimVertex Dim = iota
	DimEdge
	DimFace
	DimVolume
	NumDims = 4
)

func (d Dim) String() string {
	if d < 0 || d >= NumDims {
		return fmt.Sprintf("Dim(%d)", int(d))
	}
	return [...]string{"Vertex", "Edge", "Face", "Volume"}[d]
}

type ElementType int

const (
	Point ElementType = iota
	Line
	Triangle
	Quad
	Tet
)

func (e ElementType) String() string {
	return [...]string{"Point", "Line", "Triangle", "Quad", "Tet"}[e]
}

func (e ElementType) Dim() Dim {
	return [...]Dim{DimVertex, DimEdge, DimFace, DimFace, DimVolume}[e]
}

// Status is the persistent refinement status an element received when it was created
type Status uint8

const (
	StatusNone Status = iota
	StatusRegular
	StatusCopy
	StatusIrregular
)

func (s Status) String() string {
	return [...]string{"None", "Regular", "Copy", "Irregular"}[s]
}

// ConstraintType tells whether an element takes part in a hanging node constraint
type ConstraintType uint8

const (
	Normal ConstraintType = iota
	Constrained
	Constraining
)

func (c ConstraintType) String() string {
	return [...]string{"Normal", "Constrained", "Constraining"}[c]
}

// Ref addresses an element by dimension and index within that dimension
type Ref struct {
	Dim   Dim
	Index int
}

var NoParent = Ref{Dim: -1, Index: -1}

func (r Ref) Valid() bool { return r.Dim >= 0 && r.Dim < NumDims && r.Index >= 0 }

func (r Ref) String() string {
	if !r.Valid() {
		return "none"
	}
	return fmt.Sprintf("%s[%d]", r.Dim, r.Index)
}

func VertexRef(i int) Ref { return Ref{DimVertex, i} }
func EdgeRef(i int) Ref   { return Ref{DimEdge, i} }
func FaceRef(i int) Ref   { return Ref{DimFace, i} }
func VolumeRef(i int) Ref { return Ref{DimVolume, i} }

type Element struct {
	Type       ElementType
	Level      int
	Verts      []int // Global vertex indices, a vertex holds itself
	Edges      []int // Faces and volumes, in local edge order
	Faces      []int // Volumes, in local face order
	Parent     Ref   // Lookup only, NoParent on level 0
	Children   []Ref
	Status     Status
	Constraint ConstraintType
	Boundary   bool
}

func (e *Element) NumVertices() int { return len(e.Verts) }

var (
	// Local edge and face numbering of the reference elements
	TriEdges  = [3][2]int{{0, 1}, {1, 2}, {2, 0}}
	QuadEdges = [4][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}
	TetEdges  = [6][2]int{{0, 1}, {1, 2}, {2, 0}, {3, 0}, {3, 1}, {3, 2}}
	TetFaces  = [4][3]int{{0, 2, 1}, {1, 2, 3}, {2, 0, 3}, {0, 1, 3}}
	// Local edges of each tet face, matching TetFaces
	TetFaceEdges = [4][3]int{{2, 1, 0}, {1, 5, 4}, {2, 3, 5}, {0, 4, 3}}
)

func localEdges(t ElementType) [][2]int {
	switch t {
	case Triangle:
		return TriEdges[:]
	case Quad:
		return QuadEdges[:]
	case Tet:
		return TetEdges[:]
	}
	return nil
}

package grid

import (
	"fmt"
	"sort"

	"github.com/notargets/gomg/types"
)

type Option uint32

const (
	// OptionFullInterconnection maintains upward adjacency for every element, required by the refiners
	OptionFullInterconnection Option = 1 << iota
)

// Observer is notified about elements created inside a hierarchical insertion bracket
type Observer interface {
	ElementCreated(mg *MultiGrid, r Ref)
	HierarchicalInsertionEnded(mg *MultiGrid)
}

/*
MultiGrid stores the level hierarchy: vertices, edges, faces and volumes of every level along with their parent and
child relations. Elements are never removed, a refinement only appends a new level or adds elements to existing
levels.
*/
type MultiGrid struct {
	elems        [NumDims][]*Element
	pos          [][3]float64
	edgeMap      map[types.EdgeKey]int
	faceMap      map[types.ElementKey]int
	volMap       map[types.ElementKey]int
	up           [NumDims][NumDims][][]int // up[low][high][lowIndex] holds the high dim elements containing it
	options      Option
	numLevels    int
	hierarchical bool
	observers    []Observer
	revision     int
	levelCache   [NumDims][][]int
	cacheRev     int
}

func NewMultiGrid() (mg *MultiGrid) {
	mg = &MultiGrid{
		edgeMap:  make(map[types.EdgeKey]int),
		faceMap:  make(map[types.ElementKey]int),
		volMap:   make(map[types.ElementKey]int),
		cacheRev: -1,
	}
	return
}

func (mg *MultiGrid) Revision() int  { return mg.revision }
func (mg *MultiGrid) NumLevels() int { return mg.numLevels }
func (mg *MultiGrid) Num(d Dim) int  { return len(mg.elems[d]) }

// Touch invalidates data derived from the grid for changes it does not track itself, like process interfaces
func (mg *MultiGrid) Touch() { mg.revision++ }

// EnsureLevels makes the hierarchy report at least n levels, levels without elements are legal
func (mg *MultiGrid) EnsureLevels(n int) {
	if n > mg.numLevels {
		mg.numLevels = n
		mg.revision++
	}
}

// TopDim is the highest dimension that holds elements
func (mg *MultiGrid) TopDim() Dim {
	for d := DimVolume; d > DimVertex; d-- {
		if len(mg.elems[d]) > 0 {
			return d
		}
	}
	return DimVertex
}

func (mg *MultiGrid) Element(r Ref) *Element {
	if !r.Valid() || r.Index >= len(mg.elems[r.Dim]) {
		panic(fmt.Errorf("invalid element reference %v", r))
	}
	return mg.elems[r.Dim][r.Index]
}

func (mg *MultiGrid) Vertex(i int) *Element { return mg.Element(VertexRef(i)) }
func (mg *MultiGrid) Edge(i int) *Element   { return mg.Element(EdgeRef(i)) }
func (mg *MultiGrid) Face(i int) *Element   { return mg.Element(FaceRef(i)) }
func (mg *MultiGrid) Volume(i int) *Element { return mg.Element(VolumeRef(i)) }

func (mg *MultiGrid) Pos(v int) [3]float64 { return mg.pos[v] }

func (mg *MultiGrid) Level(r Ref) int { return mg.Element(r).Level }

func (mg *MultiGrid) Centroid(r Ref) (c [3]float64) {
	el := mg.Element(r)
	for _, v := range el.Verts {
		for i := 0; i < 3; i++ {
			c[i] += mg.pos[v][i]
		}
	}
	for i := 0; i < 3; i++ {
		c[i] /= float64(len(el.Verts))
	}
	return
}

func (mg *MultiGrid) SetStatus(r Ref, s Status) { mg.Element(r).Status = s }

func (mg *MultiGrid) SetConstraintType(r Ref, c ConstraintType) { mg.Element(r).Constraint = c }

func (mg *MultiGrid) HasChildren(r Ref) bool { return len(mg.Element(r).Children) != 0 }

// ChildVertex returns the vertex child of a vertex, edge or quad face
func (mg *MultiGrid) ChildVertex(r Ref) (v int, ok bool) {
	for _, c := range mg.Element(r).Children {
		if c.Dim == DimVertex {
			return c.Index, true
		}
	}
	return -1, false
}

func (mg *MultiGrid) ChildrenOfDim(r Ref, d Dim) (children []int) {
	for _, c := range mg.Element(r).Children {
		if c.Dim == d {
			children = append(children, c.Index)
		}
	}
	return
}

// LeafVertex follows the copy chain of a vertex to its finest descendant
func (mg *MultiGrid) LeafVertex(v int) int {
	for {
		child, ok := mg.ChildVertex(VertexRef(v))
		if !ok {
			return v
		}
		v = child
	}
}

// AncestorOnLevel follows parents upward until it reaches the given level
func (mg *MultiGrid) AncestorOnLevel(r Ref, level int) (anc Ref, ok bool) {
	anc = r
	for {
		el := mg.Element(anc)
		if el.Level == level {
			return anc, true
		}
		if el.Level < level || !el.Parent.Valid() {
			return NoParent, false
		}
		anc = el.Parent
	}
}

func (mg *MultiGrid) FindEdge(v0, v1 int) (e int, ok bool) {
	e, ok = mg.edgeMap[types.NewEdgeKey([2]int{v0, v1})]
	return
}

func (mg *MultiGrid) FindFace(verts ...int) (f int, ok bool) {
	f, ok = mg.faceMap[types.NewElementKey(verts)]
	return
}

func (mg *MultiGrid) FindVolume(verts ...int) (v int, ok bool) {
	v, ok = mg.volMap[types.NewElementKey(verts)]
	return
}

// ElementsOnLevel lists the elements of a dimension on one level in ascending index order
func (mg *MultiGrid) ElementsOnLevel(d Dim, level int) []int {
	if mg.cacheRev != mg.revision {
		for dd := DimVertex; dd < NumDims; dd++ {
			mg.levelCache[dd] = make([][]int, mg.numLevels)
			for i, el := range mg.elems[dd] {
				mg.levelCache[dd][el.Level] = append(mg.levelCache[dd][el.Level], i)
			}
		}
		mg.cacheRev = mg.revision
	}
	if level < 0 || level >= mg.numLevels {
		return nil
	}
	return mg.levelCache[d][level]
}

func (mg *MultiGrid) AddObserver(o Observer) {
	mg.observers = append(mg.observers, o)
}

func (mg *MultiGrid) RemoveObserver(o Observer) {
	for i, obs := range mg.observers {
		if obs == o {
			mg.observers = append(mg.observers[:i], mg.observers[i+1:]...)
			return
		}
	}
}

func (mg *MultiGrid) HierarchicalInsertionEnabled() bool { return mg.hierarchical }

func (mg *MultiGrid) BeginHierarchicalInsertion() {
	if mg.hierarchical {
		panic("hierarchical insertion is already enabled")
	}
	mg.hierarchical = true
}

func (mg *MultiGrid) EndHierarchicalInsertion() {
	if !mg.hierarchical {
		panic("hierarchical insertion is not enabled")
	}
	mg.hierarchical = false
	for _, o := range mg.observers {
		o.HierarchicalInsertionEnded(mg)
	}
}

func (mg *MultiGrid) levelFor(parent Ref) (level int) {
	if !parent.Valid() {
		if mg.hierarchical {
			panic("elements without parent can not be created during hierarchical insertion")
		}
		return 0
	}
	if !mg.hierarchical {
		panic(fmt.Errorf("child of %v created outside of a hierarchical insertion bracket", parent))
	}
	return mg.Element(parent).Level + 1
}

func (mg *MultiGrid) register(d Dim, el *Element) (r Ref) {
	r = Ref{d, len(mg.elems[d])}
	mg.elems[d] = append(mg.elems[d], el)
	if el.Level+1 > mg.numLevels {
		mg.numLevels = el.Level + 1
	}
	if el.Parent.Valid() {
		p := mg.Element(el.Parent)
		p.Children = append(p.Children, r)
		el.Boundary = el.Boundary || (p.Boundary && d < DimVolume)
	}
	if mg.options&OptionFullInterconnection != 0 {
		mg.connect(r)
	}
	mg.revision++
	if mg.hierarchical {
		for _, o := range mg.observers {
			o.ElementCreated(mg, r)
		}
	}
	return
}

func (mg *MultiGrid) checkLevel(level int, verts ...int) {
	for _, v := range verts {
		if v < 0 || v >= len(mg.elems[DimVertex]) {
			panic(fmt.Errorf("vertex %d does not exist", v))
		}
		if mg.elems[DimVertex][v].Level != level {
			panic(fmt.Errorf("vertex %d is on level %d, element is created on level %d",
				v, mg.elems[DimVertex][v].Level, level))
		}
	}
}

func (mg *MultiGrid) CreateVertex(pos [3]float64, parent Ref) (v int) {
	el := &Element{
		Type:   Point,
		Level:  mg.levelFor(parent),
		Parent: parent,
	}
	v = len(mg.elems[DimVertex])
	el.Verts = []int{v}
	mg.pos = append(mg.pos, pos)
	mg.register(DimVertex, el)
	return
}

func (mg *MultiGrid) CreateEdge(v0, v1 int, parent Ref) (e int) {
	level := mg.levelFor(parent)
	mg.checkLevel(level, v0, v1)
	key := types.NewEdgeKey([2]int{v0, v1})
	if _, exists := mg.edgeMap[key]; exists {
		panic(fmt.Errorf("edge (%d,%d) already exists", v0, v1))
	}
	el := &Element{
		Type:   Line,
		Level:  level,
		Verts:  []int{v0, v1},
		Parent: parent,
	}
	e = mg.register(DimEdge, el).Index
	mg.edgeMap[key] = e
	return
}

func (mg *MultiGrid) findOrCreateEdge(v0, v1 int, parent Ref) int {
	if e, ok := mg.FindEdge(v0, v1); ok {
		return e
	}
	return mg.CreateEdge(v0, v1, parent)
}

// CreateFace creates a triangle or quad, sides that do not exist yet are created with the same parent
func (mg *MultiGrid) CreateFace(verts []int, parent Ref) (f int) {
	var (
		level = mg.levelFor(parent)
		et    ElementType
	)
	switch len(verts) {
	case 3:
		et = Triangle
	case 4:
		et = Quad
	default:
		panic(fmt.Errorf("faces have 3 or 4 vertices, have %d", len(verts)))
	}
	mg.checkLevel(level, verts...)
	key := types.NewElementKey(verts)
	if _, exists := mg.faceMap[key]; exists {
		panic(fmt.Errorf("face %v already exists", verts))
	}
	el := &Element{
		Type:   et,
		Level:  level,
		Verts:  append([]int{}, verts...),
		Parent: parent,
	}
	for _, le := range localEdges(et) {
		el.Edges = append(el.Edges, mg.findOrCreateEdge(verts[le[0]], verts[le[1]], parent))
	}
	f = mg.register(DimFace, el).Index
	mg.faceMap[key] = f
	return
}

func (mg *MultiGrid) findOrCreateFace(verts []int, parent Ref) int {
	if f, ok := mg.FindFace(verts...); ok {
		return f
	}
	return mg.CreateFace(verts, parent)
}

// CreateVolume creates a tetrahedron, faces and edges that do not exist yet are created with the same parent
func (mg *MultiGrid) CreateVolume(verts [4]int, parent Ref) (vol int) {
	level := mg.levelFor(parent)
	mg.checkLevel(level, verts[:]...)
	key := types.NewElementKey(verts[:])
	if _, exists := mg.volMap[key]; exists {
		panic(fmt.Errorf("volume %v already exists", verts))
	}
	el := &Element{
		Type:   Tet,
		Level:  level,
		Verts:  append([]int{}, verts[:]...),
		Parent: parent,
	}
	for _, le := range TetEdges {
		el.Edges = append(el.Edges, mg.findOrCreateEdge(verts[le[0]], verts[le[1]], parent))
	}
	for _, lf := range TetFaces {
		el.Faces = append(el.Faces, mg.findOrCreateFace([]int{verts[lf[0]], verts[lf[1]], verts[lf[2]]}, parent))
	}
	vol = mg.register(DimVolume, el).Index
	mg.volMap[key] = vol
	return
}

// Sides returns the sub-entities of dimension d of an element, a vertex or edge returns its own vertices
func (mg *MultiGrid) Sides(r Ref, d Dim) []int {
	el := mg.Element(r)
	switch d {
	case DimVertex:
		return el.Verts
	case DimEdge:
		if r.Dim == DimEdge {
			return []int{r.Index}
		}
		return el.Edges
	case DimFace:
		if r.Dim == DimFace {
			return []int{r.Index}
		}
		return el.Faces
	}
	return nil
}

// LevelStats counts elements per dimension on each level
type LevelStats struct {
	Level  int
	Counts [NumDims]int
	Leaves [NumDims]int
}

func (mg *MultiGrid) Stats() (stats []LevelStats) {
	stats = make([]LevelStats, mg.numLevels)
	for l := range stats {
		stats[l].Level = l
	}
	for d := DimVertex; d < NumDims; d++ {
		for i, el := range mg.elems[d] {
			stats[el.Level].Counts[d]++
			if !mg.HasChildren(Ref{d, i}) {
				stats[el.Level].Leaves[d]++
			}
		}
	}
	return
}

// SortedByCentroid orders element references by their centroid coordinates
func (mg *MultiGrid) SortedByCentroid(refs []Ref) []Ref {
	sorted := append([]Ref{}, refs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := mg.Centroid(sorted[i]), mg.Centroid(sorted[j])
		for k := 0; k < 3; k++ {
			if ci[k] != cj[k] {
				return ci[k] < cj[k]
			}
		}
		return sorted[i].Dim < sorted[j].Dim
	})
	return sorted
}

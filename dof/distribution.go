package dof

import (
	"fmt"
	"sort"

	"github.com/notargets/gomg/parallel"
)

// SurfaceLevel is the level reported by the surface distribution
const SurfaceLevel = -1

var interfaceTypes = [...]parallel.InterfaceType{parallel.HMaster, parallel.HSlave, parallel.VMaster, parallel.VSlave}

/*
DoFDistribution numbers the P1 degrees of freedom of a level or of the surface. Every DoF is a grid vertex, DoFs are
numbered in ascending vertex order. Layouts are the vertex layouts of the distributed grid translated to DoF indices.
*/
type DoFDistribution struct {
	level    int
	vertices []int
	index    map[int]int
	layouts  map[parallel.InterfaceType]*parallel.Layout
}

func newDoFDistribution(level int, vertices []int) (dd *DoFDistribution) {
	sort.Ints(vertices)
	dd = &DoFDistribution{
		level:    level,
		vertices: vertices,
		index:    make(map[int]int, len(vertices)),
		layouts:  make(map[parallel.InterfaceType]*parallel.Layout),
	}
	for i, v := range vertices {
		dd.index[v] = i
	}
	return
}

func (dd *DoFDistribution) Level() int      { return dd.level }
func (dd *DoFDistribution) IsSurface() bool { return dd.level == SurfaceLevel }
func (dd *DoFDistribution) NumDoFs() int    { return len(dd.vertices) }

// Vertex returns the grid vertex of DoF i
func (dd *DoFDistribution) Vertex(i int) int { return dd.vertices[i] }

// Vertices is shared with the distribution and must not be modified
func (dd *DoFDistribution) Vertices() []int { return dd.vertices }

// Index returns the DoF of a grid vertex, false if the vertex carries no DoF in this distribution
func (dd *DoFDistribution) Index(v int) (i int, ok bool) {
	i, ok = dd.index[v]
	return
}

// Layout returns the DoF layout of an interface type, nil if the distribution has none
func (dd *DoFDistribution) Layout(t parallel.InterfaceType) *parallel.Layout {
	return dd.layouts[t]
}

func (dd *DoFDistribution) String() string {
	name := fmt.Sprintf("level %d", dd.level)
	if dd.IsSurface() {
		name = "surface"
	}
	return fmt.Sprintf("%s: %d DoFs", name, len(dd.vertices))
}

// addLayout appends the vertex layout l, translated to DoF indices, to the layout of type t
func (dd *DoFDistribution) addLayout(t parallel.InterfaceType, l *parallel.Layout) {
	mapped := l.Map(func(v int) int {
		if i, ok := dd.index[v]; ok {
			return i
		}
		return -1
	})
	if mapped.Empty() {
		return
	}
	target, ok := dd.layouts[t]
	if !ok {
		dd.layouts[t] = mapped
		return
	}
	for _, p := range mapped.Procs() {
		for _, i := range mapped.Interface(p) {
			target.Add(p, i)
		}
	}
}

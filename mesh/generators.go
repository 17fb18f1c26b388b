package mesh

import "fmt"

// UnitTet is the reference tetrahedron (0,0,0), (1,0,0), (0,1,0), (0,0,1)
func UnitTet() (m *Mesh) {
	m = NewMesh()
	m.AddNode(0, 0, 0)
	m.AddNode(1, 0, 0)
	m.AddNode(0, 1, 0)
	m.AddNode(0, 0, 1)
	mustAdd(m, Tet, 0, 1, 2, 3)
	return
}

// CubeTets meshes the unit cube with the 6 tetrahedra sharing the (0,0,0)-(1,1,1) diagonal
func CubeTets() (m *Mesh) {
	m = NewMesh()
	// Corner c has coordinates (c&1, c>>1&1, c>>2&1)
	for c := 0; c < 8; c++ {
		m.AddNode(float64(c&1), float64(c>>1&1), float64(c>>2&1))
	}
	for _, tet := range [][]int{
		{0, 1, 3, 7},
		{0, 1, 5, 7},
		{0, 2, 3, 7},
		{0, 2, 6, 7},
		{0, 4, 5, 7},
		{0, 4, 6, 7},
	} {
		mustAdd(m, Tet, tet...)
	}
	return
}

// UnitSquareTris meshes the unit square with n x n cells, each split into two triangles
func UnitSquareTris(n int) (m *Mesh) {
	m = squareNodes(n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v0 := j*(n+1) + i
			v1, v2, v3 := v0+1, v0+n+2, v0+n+1
			mustAdd(m, Triangle, v0, v1, v2)
			mustAdd(m, Triangle, v0, v2, v3)
		}
	}
	return
}

// UnitSquareQuads meshes the unit square with n x n quadrilaterals
func UnitSquareQuads(n int) (m *Mesh) {
	m = squareNodes(n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v0 := j*(n+1) + i
			mustAdd(m, Quad, v0, v0+1, v0+n+2, v0+n+1)
		}
	}
	return
}

func squareNodes(n int) (m *Mesh) {
	if n < 1 {
		panic(fmt.Errorf("a square mesh needs at least one cell per direction, have %d", n))
	}
	m = NewMesh()
	h := 1. / float64(n)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.AddNode(float64(i)*h, float64(j)*h)
		}
	}
	return
}

// ByName returns one of the built-in coarse meshes
func ByName(name string, n int) (m *Mesh, err error) {
	switch name {
	case "tet":
		m = UnitTet()
	case "cube":
		m = CubeTets()
	case "square":
		m = UnitSquareTris(n)
	case "quads":
		m = UnitSquareQuads(n)
	default:
		err = fmt.Errorf("unknown mesh %q, use one of tet, cube, square, quads", name)
	}
	return
}

func mustAdd(m *Mesh, et ElementType, verts ...int) {
	if _, err := m.AddElement(et, verts...); err != nil {
		panic(err)
	}
}

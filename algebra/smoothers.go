package algebra

import (
	"fmt"
)

/*
LinearIterator computes a correction c for a defect d. ApplyUpdateDefect also updates the defect, d := d - A*c, so
iterators can be chained. Clone returns an uninitialized iterator with the same configuration.
*/
type LinearIterator interface {
	Init(op LinearOperator, u *Vector) error
	ApplyUpdateDefect(c, d *Vector) error
	Apply(c, d *Vector) error
	Clone() LinearIterator
	Name() string
}

// applyOnCopy runs ApplyUpdateDefect on a copy of d
func applyOnCopy(it LinearIterator, c, d *Vector) error {
	return it.ApplyUpdateDefect(c, d.Clone())
}

// Jacobi is the damped point Jacobi smoother, c = damp * D^-1 d
type Jacobi struct {
	damp    float64
	A       *Matrix
	invDiag []float64
}

func NewJacobi(damp float64) *Jacobi { return &Jacobi{damp: damp} }

func (jac *Jacobi) Name() string { return fmt.Sprintf("Jacobi(%.3g)", jac.damp) }

func (jac *Jacobi) Clone() LinearIterator { return NewJacobi(jac.damp) }

func (jac *Jacobi) Init(op LinearOperator, u *Vector) (err error) {
	if jac.A, err = asMatrix(op); err != nil {
		return
	}
	diag := jac.A.Diagonal()
	jac.invDiag = make([]float64, len(diag))
	for i, a := range diag {
		if a == 0 {
			return fmt.Errorf("zero diagonal in row %d: %w", i, ErrSingular)
		}
		jac.invDiag[i] = 1. / a
	}
	return
}

func (jac *Jacobi) ApplyUpdateDefect(c, d *Vector) (err error) {
	if jac.A == nil {
		return ErrNotInitialized
	}
	if c.Len() != len(jac.invDiag) || d.Len() != len(jac.invDiag) {
		return fmt.Errorf("jacobi of size %d with vectors of length %d and %d: %w",
			len(jac.invDiag), c.Len(), d.Len(), ErrDimensionMismatch)
	}
	for i, id := range jac.invDiag {
		c.Data[i] = jac.damp * id * d.Data[i]
	}
	return jac.A.ApplySub(d, c)
}

func (jac *Jacobi) Apply(c, d *Vector) error { return applyOnCopy(jac, c, d) }

type Direction uint8

const (
	Forward Direction = iota
	Backward
	Symmetric
)

func (dir Direction) String() string {
	return [...]string{"Forward", "Backward", "Symmetric"}[dir]
}

// GaussSeidel solves with the lower (forward) or upper (backward) triangle of the operator
type GaussSeidel struct {
	dir Direction
	A   *Matrix
}

func NewGaussSeidel(dir Direction) *GaussSeidel { return &GaussSeidel{dir: dir} }

func (gs *GaussSeidel) Name() string { return "GaussSeidel(" + gs.dir.String() + ")" }

func (gs *GaussSeidel) Clone() LinearIterator { return NewGaussSeidel(gs.dir) }

func (gs *GaussSeidel) Init(op LinearOperator, u *Vector) (err error) {
	if gs.A, err = asMatrix(op); err != nil {
		return
	}
	for i, a := range gs.A.Diagonal() {
		if a == 0 {
			return fmt.Errorf("zero diagonal in row %d: %w", i, ErrSingular)
		}
	}
	return
}

func (gs *GaussSeidel) sweep(c, d *Vector, backward bool) {
	var (
		n    = c.Len()
		diag = gs.A.Diagonal()
	)
	step := func(i int) {
		sum := d.Data[i]
		gs.A.DoRowNonZero(i, func(j int, v float64) {
			if (!backward && j < i) || (backward && j > i) {
				sum -= v * c.Data[j]
			}
		})
		c.Data[i] = sum / diag[i]
	}
	if backward {
		for i := n - 1; i >= 0; i-- {
			step(i)
		}
		return
	}
	for i := 0; i < n; i++ {
		step(i)
	}
}

func (gs *GaussSeidel) ApplyUpdateDefect(c, d *Vector) (err error) {
	if gs.A == nil {
		return ErrNotInitialized
	}
	if nr, _ := gs.A.Dims(); c.Len() != nr || d.Len() != nr {
		return fmt.Errorf("gauss seidel of size %d with vectors of length %d and %d: %w",
			nr, c.Len(), d.Len(), ErrDimensionMismatch)
	}
	switch gs.dir {
	case Forward, Backward:
		gs.sweep(c, d, gs.dir == Backward)
		return gs.A.ApplySub(d, c)
	}
	gs.sweep(c, d, false)
	if err = gs.A.ApplySub(d, c); err != nil {
		return
	}
	second := NewVector(c.Len())
	gs.sweep(second, d, true)
	if err = gs.A.ApplySub(d, second); err != nil {
		return
	}
	c.Add(second)
	return
}

func (gs *GaussSeidel) Apply(c, d *Vector) error { return applyOnCopy(gs, c, d) }

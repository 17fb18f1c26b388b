package algebra

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gomg/utils"
)

var (
	ErrDimensionMismatch = errors.New("algebra: dimension mismatch")
	ErrMatrixRequired    = errors.New("algebra: operator is not an assembled matrix")
	ErrSingular          = errors.New("algebra: singular operator")
	ErrNotInitialized    = errors.New("algebra: iterator used before Init")
	ErrNotConverged      = errors.New("algebra: iteration did not converge")
	ErrStorageType       = errors.New("algebra: wrong storage type")
	ErrDiverged          = errors.New("algebra: defect is not finite")
)

// LinearOperator is anything that maps a vector to a vector
type LinearOperator interface {
	// Apply computes f = A*u
	Apply(f, u *Vector) error
	// ApplySub computes f -= A*u
	ApplySub(f, u *Vector) error
}

// MatrixBuilder collects the entries of a matrix during assembly
type MatrixBuilder struct {
	dok utils.DOK
}

func NewMatrixBuilder(nr, nc int) *MatrixBuilder {
	return &MatrixBuilder{dok: utils.NewDOK(nr, nc)}
}

func (b *MatrixBuilder) Add(i, j int, val float64) { b.dok.Add(i, j, val) }
func (b *MatrixBuilder) Set(i, j int, val float64) { b.dok.Set(i, j, val) }
func (b *MatrixBuilder) At(i, j int) float64       { return b.dok.At(i, j) }

// Build freezes the builder and returns the compressed matrix
func (b *MatrixBuilder) Build(name string) *Matrix {
	b.dok.SetReadOnly(name)
	return NewMatrix(b.dok.ToCSR())
}

// Matrix is an assembled sparse operator in compressed row form
type Matrix struct {
	csr  utils.CSR
	diag []float64
}

func NewMatrix(csr utils.CSR) (A *Matrix) {
	nr, nc := csr.Dims()
	A = &Matrix{csr: csr}
	n := min(nr, nc)
	A.diag = make([]float64, n)
	for i := 0; i < n; i++ {
		csr.DoRowNonZero(i, func(j int, v float64) {
			if j == i {
				A.diag[i] += v
			}
		})
	}
	return
}

func (A *Matrix) Dims() (nr, nc int) { return A.csr.Dims() }

func (A *Matrix) At(i, j int) float64 { return A.csr.At(i, j) }

func (A *Matrix) NNZ() int { return A.csr.NNZ() }

func (A *Matrix) CSR() utils.CSR { return A.csr }

// Diagonal is shared with the matrix and must not be modified
func (A *Matrix) Diagonal() []float64 { return A.diag }

func (A *Matrix) DoRowNonZero(i int, fn func(j int, v float64)) { A.csr.DoRowNonZero(i, fn) }

// Dense returns a dense copy, nil for empty matrices
func (A *Matrix) Dense() *mat.Dense { return A.csr.ToDense() }

func (A *Matrix) check(f, u *Vector, trans bool) error {
	nr, nc := A.csr.Dims()
	if trans {
		nr, nc = nc, nr
	}
	if f.Len() != nr || u.Len() != nc {
		return fmt.Errorf("%dx%d matrix (transposed=%v) with vectors of length %d and %d: %w",
			nr, nc, trans, f.Len(), u.Len(), ErrDimensionMismatch)
	}
	return nil
}

func (A *Matrix) Apply(f, u *Vector) (err error) {
	if err = A.check(f, u, false); err != nil {
		return
	}
	A.csr.MulVecTo(f.Data, false, u.Data)
	return
}

// ApplyTransposed computes f = A^T*u
func (A *Matrix) ApplyTransposed(f, u *Vector) (err error) {
	if err = A.check(f, u, true); err != nil {
		return
	}
	A.csr.MulVecTo(f.Data, true, u.Data)
	return
}

func (A *Matrix) ApplySub(f, u *Vector) (err error) {
	if err = A.check(f, u, false); err != nil {
		return
	}
	for i := range f.Data {
		A.csr.DoRowNonZero(i, func(j int, v float64) {
			f.Data[i] -= v * u.Data[j]
		})
	}
	return
}

func asMatrix(op LinearOperator) (A *Matrix, err error) {
	var ok bool
	if A, ok = op.(*Matrix); !ok || A == nil {
		return nil, fmt.Errorf("have %T: %w", op, ErrMatrixRequired)
	}
	return
}

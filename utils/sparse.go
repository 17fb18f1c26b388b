package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// DOK accumulates entries during assembly, it is converted to CSR once assembly is complete
type DOK struct {
	M        *sparse.DOK
	nr, nc   int
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		nr:   nr,
		nc:   nc,
		name: "unnamed - hint: pass a variable name to SetReadOnly()",
	}
	// Degenerate matrices appear on ranks that hold no DoFs of a level
	if nr > 0 && nc > 0 {
		R.M = sparse.NewDOK(nr, nc)
	}
	return
}

func (m DOK) Dims() (r, c int) { return m.nr, m.nc }
func (m DOK) At(i, j int) float64 {
	m.checkBounds(i, j)
	return m.M.At(i, j)
}

func (m DOK) Set(i, j int, val float64) {
	m.checkWritable()
	m.checkBounds(i, j)
	m.M.Set(i, j, val)
}

// Add accumulates val into entry (i,j)
func (m DOK) Add(i, j int, val float64) {
	m.checkWritable()
	m.checkBounds(i, j)
	m.M.Set(i, j, m.M.At(i, j)+val)
}

func (m *DOK) SetReadOnly(name ...string) {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

func (m DOK) checkBounds(i, j int) {
	if i < 0 || i >= m.nr || j < 0 || j >= m.nc {
		panic(fmt.Errorf("index (%d,%d) out of range for %dx%d matrix named: \"%v\"",
			i, j, m.nr, m.nc, m.name))
	}
}

func (m DOK) ToCSR() CSR {
	R := CSR{
		nr:       m.nr,
		nc:       m.nc,
		readOnly: m.readOnly,
		name:     m.name,
	}
	if m.M != nil {
		R.M = m.M.ToCSR()
	}
	return R
}

// CSR is the compressed row form used for all matrix-vector products
type CSR struct {
	M        *sparse.CSR
	nr, nc   int
	readOnly bool
	name     string
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int) { return m.nr, m.nc }
func (m CSR) At(i, j int) float64 {
	if m.M == nil {
		panic(fmt.Errorf("index (%d,%d) out of range for empty matrix named: \"%v\"", i, j, m.name))
	}
	return m.M.At(i, j)
}
func (m CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

func (m CSR) RawMatrix() *blas.SparseMatrix {
	if m.M == nil {
		return &blas.SparseMatrix{I: m.nr, J: m.nc, Indptr: make([]int, m.nr+1)}
	}
	return m.M.RawMatrix()
}

func (m CSR) NNZ() int {
	return len(m.RawMatrix().Data)
}

// DoRowNonZero calls fn for every stored entry of row i
func (m CSR) DoRowNonZero(i int, fn func(j int, v float64)) {
	if m.M == nil {
		return
	}
	raw := m.M.RawMatrix()
	for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
		fn(raw.Ind[k], raw.Data[k])
	}
}

/*
MulVecTo computes dst = A*x, or dst = A^T*x when trans is set, dst is overwritten
*/
func (m CSR) MulVecTo(dst []float64, trans bool, x []float64) {
	var (
		nr, nc = m.nr, m.nc
	)
	if trans {
		nr, nc = nc, nr
	}
	if len(dst) != nr || len(x) != nc {
		panic(fmt.Errorf("dimension mismatch in MulVecTo for \"%v\": dst %d, x %d, matrix %dx%d (trans=%v)",
			m.name, len(dst), len(x), m.nr, m.nc, trans))
	}
	for i := range dst {
		dst[i] = 0
	}
	if m.M == nil {
		return
	}
	raw := m.M.RawMatrix()
	for i := 0; i < m.nr; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			if trans {
				dst[raw.Ind[k]] += raw.Data[k] * x[i]
			} else {
				dst[i] += raw.Data[k] * x[raw.Ind[k]]
			}
		}
	}
}

func (m CSR) ToDense() (R *mat.Dense) {
	if m.nr == 0 || m.nc == 0 {
		return nil
	}
	R = mat.NewDense(m.nr, m.nc, nil)
	for i := 0; i < m.nr; i++ {
		m.DoRowNonZero(i, func(j int, v float64) {
			R.Set(i, j, R.At(i, j)+v)
		})
	}
	return
}

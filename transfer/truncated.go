package transfer

import (
	"fmt"

	"github.com/notargets/gomg/algebra"
)

// Obstacle is a lower bound on the solution as a function of position
type Obstacle func(x [3]float64) float64

/*
TruncatedMonotoneTransfer is the P1 transfer truncated on the active set of a lower obstacle: fine DoFs where the
solution touches the obstacle get no coarse correction and do not contribute to the restricted defect. The
restriction stays the transpose of the truncated prolongation.
*/
type TruncatedMonotoneTransfer struct {
	*P1Prolongation
	obstacle Obstacle
	tol      float64
	active   []bool
}

func NewTruncatedMonotoneTransfer(p *P1Prolongation, obstacle Obstacle, tol float64) *TruncatedMonotoneTransfer {
	return &TruncatedMonotoneTransfer{P1Prolongation: p, obstacle: obstacle, tol: tol}
}

func (tr *TruncatedMonotoneTransfer) Clone() Operator {
	return NewTruncatedMonotoneTransfer(tr.P1Prolongation.Clone().(*P1Prolongation), tr.obstacle, tr.tol)
}

// Init builds the interpolation, the active set is cleared until the next SetSolution
func (tr *TruncatedMonotoneTransfer) Init() (err error) {
	tr.active = nil
	return tr.P1Prolongation.Init()
}

// SetSolution determines the active set from the fine level solution
func (tr *TruncatedMonotoneTransfer) SetSolution(fine *algebra.Vector) (err error) {
	fdd := tr.space.LevelDoFDistribution(tr.fine)
	if fdd == nil {
		return fmt.Errorf("fine level %d: %w", tr.fine, ErrNotInitialized)
	}
	if err = checkLen(fine, fdd.NumDoFs(), "solution"); err != nil {
		return
	}
	mg := tr.space.Grid()
	tr.active = make([]bool, fine.Len())
	for i, v := range fdd.Vertices() {
		tr.active[i] = fine.Data[i] <= tr.obstacle(mg.Pos(v))+tr.tol
	}
	return
}

// Active reports whether fine DoF i is in the active set
func (tr *TruncatedMonotoneTransfer) Active(i int) bool { return tr.active != nil && tr.active[i] }

func (tr *TruncatedMonotoneTransfer) truncate(fine *algebra.Vector) {
	for i, a := range tr.active {
		if a {
			fine.Data[i] = 0
		}
	}
}

func (tr *TruncatedMonotoneTransfer) Apply(fine, coarse *algebra.Vector) (err error) {
	if tr.active == nil {
		return ErrMissingSolution
	}
	if err = tr.P1Prolongation.Apply(fine, coarse); err != nil {
		return
	}
	tr.truncate(fine)
	return
}

func (tr *TruncatedMonotoneTransfer) ApplyTransposed(coarse, fine *algebra.Vector) (err error) {
	if tr.active == nil {
		return ErrMissingSolution
	}
	if err = checkLen(fine, len(tr.active), "fine"); err != nil {
		return
	}
	truncated := fine.Clone()
	tr.truncate(truncated)
	return tr.P1Prolongation.ApplyTransposed(coarse, truncated)
}

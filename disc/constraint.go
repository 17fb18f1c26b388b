package disc

import (
	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
)

// DirichletConstraint keeps corrections and defects zero on boundary DoFs when they move between levels
type DirichletConstraint struct {
	space *dof.ApproximationSpace
}

func NewDirichletConstraint(space *dof.ApproximationSpace) *DirichletConstraint {
	return &DirichletConstraint{space: space}
}

func (dc *DirichletConstraint) zero(v *algebra.Vector, level int) error {
	for _, i := range dc.space.BoundaryDoFs(level) {
		v.Data[i] = 0
	}
	return nil
}

func (dc *DirichletConstraint) AdjustProlongation(fine *algebra.Vector, level int) error {
	return dc.zero(fine, level)
}

func (dc *DirichletConstraint) AdjustRestriction(coarse *algebra.Vector, level int) error {
	return dc.zero(coarse, level)
}

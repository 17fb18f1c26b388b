package transfer

import (
	"errors"
	"fmt"

	"github.com/notargets/gomg/algebra"
)

var (
	ErrLevelGap          = errors.New("transfer: fine level must be coarse level + 1")
	ErrNotInitialized    = errors.New("transfer: operator used before Init")
	ErrMissingParentDoF  = errors.New("transfer: fine DoF without a parent DoF on the coarse level")
	ErrMissingSolution   = errors.New("transfer: solution dependent operator used before SetSolution")
	ErrUnsupportedParent = errors.New("transfer: unsupported parent element")
)

// Constraint adjusts transferred vectors, e.g. to keep Dirichlet rows of a correction at zero
type Constraint interface {
	AdjustProlongation(fine *algebra.Vector, level int) error
	AdjustRestriction(coarse *algebra.Vector, level int) error
}

/*
Operator moves vectors between two adjacent levels. Apply interpolates a coarse correction, fine := P*coarse.
ApplyTransposed restricts a fine defect, coarse := damp*P^T*fine. Clones share the configuration and the constraints
but have to be given their own levels and initialized.
*/
type Operator interface {
	SetLevels(coarse, fine int) error
	Init() error
	Apply(fine, coarse *algebra.Vector) error
	ApplyTransposed(coarse, fine *algebra.Vector) error
	AddConstraint(c Constraint)
	Clone() Operator
}

// Projection moves a solution from a fine level to the next coarser one
type Projection interface {
	SetLevels(coarse, fine int) error
	Init() error
	Apply(coarse, fine *algebra.Vector) error
	Clone() Projection
}

// SolutionDependent operators are rebuilt around the current fine level solution
type SolutionDependent interface {
	SetSolution(fine *algebra.Vector) error
}

// levelPair is the level bookkeeping shared by all operators
type levelPair struct {
	coarse, fine int
	set          bool
}

func (lp *levelPair) SetLevels(coarse, fine int) error {
	if fine != coarse+1 || coarse < 0 {
		return fmt.Errorf("levels %d and %d: %w", coarse, fine, ErrLevelGap)
	}
	lp.coarse, lp.fine, lp.set = coarse, fine, true
	return nil
}

func (lp *levelPair) Levels() (coarse, fine int) { return lp.coarse, lp.fine }

func checkLen(v *algebra.Vector, n int, what string) error {
	if v.Len() != n {
		return fmt.Errorf("%s vector of length %d, expected %d: %w", what, v.Len(), n, algebra.ErrDimensionMismatch)
	}
	return nil
}

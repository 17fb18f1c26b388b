package transfer

import (
	"fmt"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
)

/*
P1Projection injects a fine level solution into the coarse level: every coarse vertex with a vertex copy on the fine
level takes the value of the copy. Coarse entries without a copy keep their value.
*/
type P1Projection struct {
	levelPair
	space *dof.ApproximationSpace
	// child[j] is the fine DoF of the copy of coarse DoF j, -1 if there is none
	child []int
	nFine int
}

func NewP1Projection(space *dof.ApproximationSpace) *P1Projection {
	return &P1Projection{space: space}
}

func (p *P1Projection) Clone() Projection { return NewP1Projection(p.space) }

func (p *P1Projection) Init() error {
	if !p.set {
		return fmt.Errorf("levels not set: %w", ErrNotInitialized)
	}
	var (
		mg  = p.space.Grid()
		cdd = p.space.LevelDoFDistribution(p.coarse)
		fdd = p.space.LevelDoFDistribution(p.fine)
	)
	if cdd == nil || fdd == nil {
		return fmt.Errorf("levels %d and %d of a %d level hierarchy: %w", p.coarse, p.fine,
			p.space.NumLevels(), ErrLevelGap)
	}
	p.child = make([]int, cdd.NumDoFs())
	p.nFine = fdd.NumDoFs()
	for j, v := range cdd.Vertices() {
		p.child[j] = -1
		if cv, ok := mg.ChildVertex(grid.VertexRef(v)); ok {
			if i, found := fdd.Index(cv); found {
				p.child[j] = i
			}
		}
	}
	return nil
}

func (p *P1Projection) Apply(coarse, fine *algebra.Vector) (err error) {
	if p.child == nil {
		return ErrNotInitialized
	}
	if err = checkLen(coarse, len(p.child), "coarse"); err != nil {
		return
	}
	if err = checkLen(fine, p.nFine, "fine"); err != nil {
		return
	}
	for j, i := range p.child {
		if i >= 0 {
			coarse.Data[j] = fine.Data[i]
		}
	}
	coarse.SetStorageType(fine.StorageType())
	return
}

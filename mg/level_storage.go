package mg

import (
	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/transfer"
)

/*
levelStorage is everything the cycle owns for one level. Vectors exist for every level up to the top, operators,
smoothers and transfers only for the levels the cycle visits. The prolongation and projection of a level map from the
next coarser level to this one.
*/
type levelStorage struct {
	dd *dof.DoFDistribution
	// u is the linearization point, c the correction, t a scratch vector, d the defect
	u, c, t, d *algebra.Vector
	// sd holds the surface defect of DoFs that are leaves on this level
	sd *algebra.Vector
	// acc sums the corrections of repeated coarse cycles
	acc          *algebra.Vector
	A            *algebra.Matrix
	smoother     algebra.LinearIterator
	prolongation transfer.Operator
	projection   transfer.Projection
}

func newLevelStorage(space *dof.ApproximationSpace, level int) (ls *levelStorage) {
	ls = &levelStorage{
		dd:  space.LevelDoFDistribution(level),
		u:   space.CreateLevelVector(level),
		c:   space.CreateLevelVector(level),
		t:   space.CreateLevelVector(level),
		d:   space.CreateLevelVector(level),
		sd:  space.CreateLevelVector(level),
		acc: space.CreateLevelVector(level),
	}
	return
}

// allocateLevels builds a fresh arena for levels 0..top, the previous arena is dropped as a whole
func allocateLevels(space *dof.ApproximationSpace, top int) (levels []*levelStorage) {
	levels = make([]*levelStorage, top+1)
	for l := range levels {
		levels[l] = newLevelStorage(space, l)
	}
	return
}

// vectors selects one vector of every level
func vectors(levels []*levelStorage, sel func(ls *levelStorage) *algebra.Vector) (vecs []*algebra.Vector) {
	vecs = make([]*algebra.Vector, len(levels))
	for l, ls := range levels {
		vecs[l] = sel(ls)
	}
	return
}

func distributions(levels []*levelStorage) (dds []*dof.DoFDistribution) {
	dds = make([]*dof.DoFDistribution, len(levels))
	for l, ls := range levels {
		dds[l] = ls.dd
	}
	return
}

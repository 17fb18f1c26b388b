package transfer

import (
	"fmt"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
)

type Option func(p *P1Prolongation)

// WithRestrictionDamping scales every restricted defect, the default is 1
func WithRestrictionDamping(damp float64) Option {
	return func(p *P1Prolongation) { p.damp = damp }
}

/*
P1Prolongation interpolates linearly between the vertices of two levels. A fine vertex that copies a coarse vertex
takes its value, an edge midpoint the mean of the edge ends and a quad center the mean of the four corners.
*/
type P1Prolongation struct {
	levelPair
	space       *dof.ApproximationSpace
	damp        float64
	constraints []Constraint
	P           *algebra.Matrix
}

func NewP1Prolongation(space *dof.ApproximationSpace, opts ...Option) (p *P1Prolongation) {
	p = &P1Prolongation{space: space, damp: 1}
	for _, opt := range opts {
		opt(p)
	}
	return
}

func (p *P1Prolongation) AddConstraint(c Constraint) { p.constraints = append(p.constraints, c) }

func (p *P1Prolongation) Damping() float64 { return p.damp }

func (p *P1Prolongation) Clone() Operator {
	return &P1Prolongation{
		space:       p.space,
		damp:        p.damp,
		constraints: append([]Constraint(nil), p.constraints...),
	}
}

// Matrix is nil before Init
func (p *P1Prolongation) Matrix() *algebra.Matrix { return p.P }

func (p *P1Prolongation) Init() (err error) {
	if !p.set {
		return fmt.Errorf("levels not set: %w", ErrNotInitialized)
	}
	p.P, err = buildInterpolation(p.space, p.coarse, p.fine)
	return
}

// buildInterpolation assembles the nFine x nCoarse matrix of linear interpolation
func buildInterpolation(space *dof.ApproximationSpace, coarse, fine int) (P *algebra.Matrix, err error) {
	var (
		mg     = space.Grid()
		cdd    = space.LevelDoFDistribution(coarse)
		fdd    = space.LevelDoFDistribution(fine)
		weight = map[grid.Dim]float64{grid.DimVertex: 1, grid.DimEdge: 0.5, grid.DimFace: 0.25}
	)
	if cdd == nil || fdd == nil {
		return nil, fmt.Errorf("levels %d and %d of a %d level hierarchy: %w", coarse, fine, space.NumLevels(),
			ErrLevelGap)
	}
	b := algebra.NewMatrixBuilder(fdd.NumDoFs(), cdd.NumDoFs())
	for i, v := range fdd.Vertices() {
		parent := mg.Vertex(v).Parent
		w, ok := weight[parent.Dim]
		if !parent.Valid() || !ok {
			return nil, fmt.Errorf("fine vertex %d with parent %v: %w", v, parent, ErrUnsupportedParent)
		}
		pel := mg.Element(parent)
		if parent.Dim == grid.DimFace && pel.Type != grid.Quad {
			return nil, fmt.Errorf("fine vertex %d inside %s %d: %w", v, pel.Type, parent.Index,
				ErrUnsupportedParent)
		}
		for _, pv := range pel.Verts {
			j, found := cdd.Index(pv)
			if !found {
				return nil, fmt.Errorf("fine vertex %d, parent vertex %d on level %d: %w", v, pv, coarse,
					ErrMissingParentDoF)
			}
			b.Add(i, j, w)
		}
	}
	return b.Build(fmt.Sprintf("P%d->%d", coarse, fine)), nil
}

func (p *P1Prolongation) Apply(fine, coarse *algebra.Vector) (err error) {
	if p.P == nil {
		return ErrNotInitialized
	}
	if err = p.P.Apply(fine, coarse); err != nil {
		return
	}
	fine.SetStorageType(coarse.StorageType())
	for _, c := range p.constraints {
		if err = c.AdjustProlongation(fine, p.fine); err != nil {
			return
		}
	}
	return
}

func (p *P1Prolongation) ApplyTransposed(coarse, fine *algebra.Vector) (err error) {
	if p.P == nil {
		return ErrNotInitialized
	}
	if err = p.P.ApplyTransposed(coarse, fine); err != nil {
		return
	}
	if p.damp != 1 {
		coarse.Scale(p.damp)
	}
	coarse.SetStorageType(fine.StorageType())
	for _, c := range p.constraints {
		if err = c.AdjustRestriction(coarse, p.coarse); err != nil {
			return
		}
	}
	return
}

package dof

import (
	"go.uber.org/zap"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/parallel"
)

type Option func(s *ApproximationSpace)

// WithDistributedGrid attaches the distributed grid manager, its vertex layouts become DoF layouts
func WithDistributedGrid(dgm *parallel.DistributedGridManager) Option {
	return func(s *ApproximationSpace) { s.dgm = dgm }
}

func WithLogger(logger *zap.Logger) Option { return func(s *ApproximationSpace) { s.logger = logger } }

/*
ApproximationSpace provides the P1 DoF distributions of every level and of the surface, along with the surface view
and vector factories. All derived data is rebuilt lazily when the grid revision changes.
*/
type ApproximationSpace struct {
	mg       *grid.MultiGrid
	dgm      *parallel.DistributedGridManager
	revision int
	levels   []*DoFDistribution
	surface  *DoFDistribution
	view     *SurfaceView
	logger   *zap.Logger
}

func NewApproximationSpace(mg *grid.MultiGrid, opts ...Option) (s *ApproximationSpace) {
	s = &ApproximationSpace{
		mg:       mg,
		revision: -1,
		logger:   zap.L().Named("dof"),
	}
	for _, opt := range opts {
		opt(s)
	}
	var isGhost func(r grid.Ref) bool
	if s.dgm != nil {
		isGhost = s.dgm.IsGhost
	}
	s.view = NewSurfaceView(mg, isGhost)
	s.Update()
	return
}

// Update rebuilds the distributions if the grid changed since the last call, it reports whether it did
func (s *ApproximationSpace) Update() bool {
	if s.revision == s.mg.Revision() {
		return false
	}
	s.view.Update()
	s.levels = make([]*DoFDistribution, s.mg.NumLevels())
	for l := range s.levels {
		dd := newDoFDistribution(l, append([]int(nil), s.mg.ElementsOnLevel(grid.DimVertex, l)...))
		if s.dgm != nil {
			for _, t := range interfaceTypes {
				dd.addLayout(t, s.dgm.Layout(t, grid.DimVertex, l))
			}
		}
		s.levels[l] = dd
	}
	s.surface = newDoFDistribution(SurfaceLevel, append([]int(nil), s.view.Elements(grid.DimVertex)...))
	if s.dgm != nil {
		for l := range s.levels {
			for _, t := range []parallel.InterfaceType{parallel.HMaster, parallel.HSlave} {
				s.surface.addLayout(t, s.dgm.Layout(t, grid.DimVertex, l))
			}
		}
	}
	s.revision = s.mg.Revision()
	s.logger.Debug("dof distributions rebuilt", zap.Int("revision", s.revision),
		zap.Int("levels", len(s.levels)), zap.Int("surfaceDoFs", s.surface.NumDoFs()))
	return true
}

// Revision is the grid revision the distributions were built for
func (s *ApproximationSpace) Revision() int {
	s.Update()
	return s.revision
}

func (s *ApproximationSpace) Grid() *grid.MultiGrid { return s.mg }

func (s *ApproximationSpace) NumLevels() int {
	s.Update()
	return len(s.levels)
}

// Communicator is nil for serial spaces
func (s *ApproximationSpace) Communicator() *parallel.Communicator {
	if s.dgm == nil {
		return nil
	}
	return s.dgm.Communicator()
}

func (s *ApproximationSpace) IsGhost(r grid.Ref) bool {
	return s.dgm != nil && s.dgm.IsGhost(r)
}

// LevelDoFDistribution returns nil for levels outside the hierarchy
func (s *ApproximationSpace) LevelDoFDistribution(l int) *DoFDistribution {
	s.Update()
	if l < 0 || l >= len(s.levels) {
		return nil
	}
	return s.levels[l]
}

func (s *ApproximationSpace) LevelDoFDistributions() []*DoFDistribution {
	s.Update()
	return s.levels
}

func (s *ApproximationSpace) SurfaceDoFDistribution() *DoFDistribution {
	s.Update()
	return s.surface
}

func (s *ApproximationSpace) SurfaceView() *SurfaceView {
	s.Update()
	return s.view
}

func newVector(dd *DoFDistribution) (v *algebra.Vector) {
	v = algebra.NewVector(dd.NumDoFs())
	v.SetLayouts(algebra.VectorLayouts{
		HMaster: dd.Layout(parallel.HMaster),
		HSlave:  dd.Layout(parallel.HSlave),
		VMaster: dd.Layout(parallel.VMaster),
		VSlave:  dd.Layout(parallel.VSlave),
	})
	return
}

// CreateLevelVector returns a zero vector with the layouts of the level, nil for levels outside the hierarchy
func (s *ApproximationSpace) CreateLevelVector(l int) *algebra.Vector {
	dd := s.LevelDoFDistribution(l)
	if dd == nil {
		return nil
	}
	return newVector(dd)
}

func (s *ApproximationSpace) CreateSurfaceVector() *algebra.Vector {
	return newVector(s.SurfaceDoFDistribution())
}

func boundaryDoFs(mg *grid.MultiGrid, dd *DoFDistribution) (bnd []int) {
	for i, v := range dd.Vertices() {
		if mg.Vertex(v).Boundary {
			bnd = append(bnd, i)
		}
	}
	return
}

// BoundaryDoFs lists the DoFs of a level that sit on the domain boundary
func (s *ApproximationSpace) BoundaryDoFs(l int) []int {
	dd := s.LevelDoFDistribution(l)
	if dd == nil {
		return nil
	}
	return boundaryDoFs(s.mg, dd)
}

func (s *ApproximationSpace) SurfaceBoundaryDoFs() []int {
	return boundaryDoFs(s.mg, s.SurfaceDoFDistribution())
}

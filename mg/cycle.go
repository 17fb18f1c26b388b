package mg

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/parallel"
	"github.com/notargets/gomg/transfer"
)

var (
	ErrMissingCollaborator        = errors.New("mg: required collaborator not set")
	ErrBaseAboveTop               = errors.New("mg: base level above top level")
	ErrInvalidBaseLevel           = errors.New("mg: base level below zero")
	ErrNotMultiLevel              = errors.New("mg: approximation space has no grid levels")
	ErrTopLevelOutOfRange         = errors.New("mg: top level does not exist")
	ErrNotInitialized             = errors.New("mg: cycle used before Init")
	ErrMissingSurfaceDistribution = errors.New("mg: surface DoF distribution missing")
	ErrMissingSurfaceView         = errors.New("mg: surface view missing")
	ErrLevelVectorMissing         = errors.New("mg: surface DoF without a level vector")
)

// Assembler creates the level operators, a linear operator or the jacobian at a level solution
type Assembler interface {
	AssembleLevelOperator(level int, dd *dof.DoFDistribution) (*algebra.Matrix, error)
	AssembleLevelJacobian(u *algebra.Vector, level int, dd *dof.DoFDistribution) (*algebra.Matrix, error)
}

type Option func(mgc *AssembledMultiGridCycle)

func WithBaseSolver(s algebra.LinearIterator) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.baseSolver = s }
}

// WithSmoother sets the prototype cloned for every smoothed level
func WithSmoother(s algebra.LinearIterator) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.smoother = s }
}

func WithProlongation(p transfer.Operator) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.prolongation = p }
}

// WithProjection is required when Init is given a solution
func WithProjection(p transfer.Projection) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.projection = p }
}

func WithBaseLevel(l int) Option { return func(mgc *AssembledMultiGridCycle) { mgc.baseLevel = l } }

// WithTopLevel fixes the top level, -1 uses the finest level of the hierarchy
func WithTopLevel(l int) Option { return func(mgc *AssembledMultiGridCycle) { mgc.topLevel = l } }

// WithCycleType sets the number of coarse cycles per level, 1 is a V-cycle and 2 a W-cycle
func WithCycleType(n int) Option { return func(mgc *AssembledMultiGridCycle) { mgc.cycleType = n } }

func WithSmoothingSteps(pre, post int) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.nuPre, mgc.nuPost = pre, post }
}

// WithCommunicator overrides the communicator of the approximation space, nil runs serially
func WithCommunicator(comm *parallel.Communicator) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.comm, mgc.commSet = comm, true }
}

// WithContext bounds the vertical communication of distributed cycles
func WithContext(ctx context.Context) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.ctx = ctx }
}

func WithLogger(logger *zap.Logger) Option {
	return func(mgc *AssembledMultiGridCycle) { mgc.logger = logger }
}

/*
AssembledMultiGridCycle is a geometric multigrid iteration over the level hierarchy of an approximation space. Every
level from the base to the top level gets an operator from the assembler. Defect and correction move between the
surface and the levels through ProjectSurfaceToLevel and ProjectLevelToSurface. The cycle is a LinearIterator, so it
serves as preconditioner of a LinearSolver or as smoother of another cycle.
*/
type AssembledMultiGridCycle struct {
	assembler            Assembler
	space                *dof.ApproximationSpace
	baseSolver, smoother algebra.LinearIterator
	prolongation         transfer.Operator
	projection           transfer.Projection
	baseLevel, topLevel  int
	cycleType            int
	nuPre, nuPost        int
	comm                 *parallel.Communicator
	commSet              bool
	ctx                  context.Context
	logger               *zap.Logger

	top, revision int
	levels        []*levelStorage
	op            algebra.LinearOperator
	// recompute is set when surface DoFs live below the top level, the surface defect is then rebuilt from op
	recompute   bool
	initialized bool
	iterations  int
}

func NewAssembledMultiGridCycle(assembler Assembler, space *dof.ApproximationSpace,
	opts ...Option) (mgc *AssembledMultiGridCycle) {
	mgc = &AssembledMultiGridCycle{
		assembler: assembler,
		space:     space,
		topLevel:  -1,
		cycleType: 1,
		nuPre:     2,
		nuPost:    2,
		ctx:       context.Background(),
		logger:    zap.L().Named("mg"),
		revision:  -1,
	}
	for _, opt := range opts {
		opt(mgc)
	}
	if !mgc.commSet && space != nil {
		mgc.comm = space.Communicator()
	}
	return
}

func (mgc *AssembledMultiGridCycle) Name() string {
	var cycle string
	switch mgc.cycleType {
	case 1:
		cycle = "V"
	case 2:
		cycle = "W"
	default:
		cycle = fmt.Sprintf("%d", mgc.cycleType)
	}
	return fmt.Sprintf("GMG(%s-cycle, %d/%d)", cycle, mgc.nuPre, mgc.nuPost)
}

// Iterations counts the completed cycles
func (mgc *AssembledMultiGridCycle) Iterations() int { return mgc.iterations }

// TopLevel is the level the cycle starts on, valid after Init
func (mgc *AssembledMultiGridCycle) TopLevel() int { return mgc.top }

func (mgc *AssembledMultiGridCycle) BaseLevel() int { return mgc.baseLevel }

// LevelOperator returns the operator assembled for a level, nil outside the visited levels
func (mgc *AssembledMultiGridCycle) LevelOperator(l int) *algebra.Matrix {
	if l < 0 || l >= len(mgc.levels) {
		return nil
	}
	return mgc.levels[l].A
}

// Clone returns an uninitialized cycle with cloned prototypes and the same configuration
func (mgc *AssembledMultiGridCycle) Clone() algebra.LinearIterator {
	cl := &AssembledMultiGridCycle{
		assembler: mgc.assembler,
		space:     mgc.space,
		baseLevel: mgc.baseLevel,
		topLevel:  mgc.topLevel,
		cycleType: mgc.cycleType,
		nuPre:     mgc.nuPre,
		nuPost:    mgc.nuPost,
		comm:      mgc.comm,
		commSet:   mgc.commSet,
		ctx:       mgc.ctx,
		logger:    mgc.logger,
		revision:  -1,
	}
	if mgc.baseSolver != nil {
		cl.baseSolver = mgc.baseSolver.Clone()
	}
	if mgc.smoother != nil {
		cl.smoother = mgc.smoother.Clone()
	}
	if mgc.prolongation != nil {
		cl.prolongation = mgc.prolongation.Clone()
	}
	if mgc.projection != nil {
		cl.projection = mgc.projection.Clone()
	}
	return cl
}

func (mgc *AssembledMultiGridCycle) checkCollaborators(nonlinear bool) error {
	var missing string
	switch {
	case mgc.assembler == nil:
		missing = "assembler"
	case mgc.space == nil:
		missing = "approximation space"
	case mgc.baseSolver == nil:
		missing = "base solver"
	case mgc.smoother == nil:
		missing = "smoother"
	case mgc.prolongation == nil:
		missing = "prolongation"
	case nonlinear && mgc.projection == nil:
		missing = "projection"
	default:
		return nil
	}
	return fmt.Errorf("%s: %w", missing, ErrMissingCollaborator)
}

// checkLevels validates the level range against the current hierarchy and returns the top level
func (mgc *AssembledMultiGridCycle) checkLevels() (top int, err error) {
	n := mgc.space.NumLevels()
	if n == 0 {
		return 0, ErrNotMultiLevel
	}
	top = mgc.topLevel
	if top < 0 {
		top = n - 1
	}
	switch {
	case top >= n:
		return 0, fmt.Errorf("top level %d of %d levels: %w", top, n, ErrTopLevelOutOfRange)
	case mgc.baseLevel < 0:
		return 0, fmt.Errorf("base level %d: %w", mgc.baseLevel, ErrInvalidBaseLevel)
	case mgc.baseLevel > top:
		return 0, fmt.Errorf("base level %d, top level %d: %w", mgc.baseLevel, top, ErrBaseAboveTop)
	}
	return
}

/*
Init prepares the cycle for the operator op. A nil u assembles the linear level operators. Otherwise u is the
current surface solution: it is projected to the top level and down the hierarchy, the level jacobians are assembled
around it and solution dependent transfers receive their level solution.
*/
func (mgc *AssembledMultiGridCycle) Init(op algebra.LinearOperator, u *algebra.Vector) (err error) {
	if err = mgc.init(op, u); err != nil {
		mgc.initialized = false
		mgc.logger.Error("multigrid init failed", zap.Error(err))
	}
	return
}

func (mgc *AssembledMultiGridCycle) init(op algebra.LinearOperator, u *algebra.Vector) (err error) {
	if err = mgc.checkCollaborators(u != nil); err != nil {
		return
	}
	top, err := mgc.checkLevels()
	if err != nil {
		return
	}
	if mgc.levels == nil || mgc.revision != mgc.space.Revision() || mgc.top != top {
		if err = mgc.allocate(top); err != nil {
			return
		}
	}
	mgc.op = op
	if u != nil {
		if err = mgc.projectSolution(u); err != nil {
			return
		}
	}
	if err = mgc.assemble(u != nil); err != nil {
		return
	}
	if err = mgc.initSmoothers(u != nil); err != nil {
		return
	}
	mgc.recompute = false
	if op != nil {
		view, dd := mgc.space.SurfaceView(), mgc.space.SurfaceDoFDistribution()
		for _, v := range dd.Vertices() {
			if view.Grid().Vertex(v).Level < mgc.top {
				mgc.recompute = true
				break
			}
		}
	}
	mgc.initialized = true
	return
}

// allocate replaces the level arena and builds the transfers between the visited levels
func (mgc *AssembledMultiGridCycle) allocate(top int) (err error) {
	mgc.levels = allocateLevels(mgc.space, top)
	mgc.top, mgc.revision = top, mgc.space.Revision()
	for lev := mgc.baseLevel + 1; lev <= top; lev++ {
		ls := mgc.levels[lev]
		ls.prolongation = mgc.prolongation.Clone()
		if err = ls.prolongation.SetLevels(lev-1, lev); err != nil {
			return fmt.Errorf("prolongation to level %d: %w", lev, err)
		}
		if err = ls.prolongation.Init(); err != nil {
			return fmt.Errorf("prolongation to level %d: %w", lev, err)
		}
		if mgc.projection == nil {
			continue
		}
		ls.projection = mgc.projection.Clone()
		if err = ls.projection.SetLevels(lev-1, lev); err != nil {
			return fmt.Errorf("projection to level %d: %w", lev, err)
		}
		if err = ls.projection.Init(); err != nil {
			return fmt.Errorf("projection to level %d: %w", lev, err)
		}
	}
	mgc.logger.Debug("level storage allocated", zap.Int("baseLevel", mgc.baseLevel), zap.Int("topLevel", top),
		zap.Int("revision", mgc.revision))
	return
}

func (mgc *AssembledMultiGridCycle) projectSolution(u *algebra.Vector) (err error) {
	uVecs := vectors(mgc.levels, func(ls *levelStorage) *algebra.Vector { return ls.u })
	if err = ProjectSurfaceToLevel(uVecs, distributions(mgc.levels), u, mgc.space.SurfaceDoFDistribution(),
		mgc.space.SurfaceView()); err != nil {
		return fmt.Errorf("projecting solution to the levels: %w", err)
	}
	for lev := mgc.top; lev > mgc.baseLevel; lev-- {
		ls := mgc.levels[lev]
		if err = ls.projection.Apply(mgc.levels[lev-1].u, ls.u); err != nil {
			return fmt.Errorf("projecting solution from level %d to %d: %w", lev, lev-1, err)
		}
	}
	for lev := mgc.baseLevel + 1; lev <= mgc.top; lev++ {
		ls := mgc.levels[lev]
		if sd, ok := ls.prolongation.(transfer.SolutionDependent); ok {
			if err = sd.SetSolution(ls.u); err != nil {
				return fmt.Errorf("transfer to level %d: %w", lev, err)
			}
		}
	}
	return
}

func (mgc *AssembledMultiGridCycle) assemble(nonlinear bool) (err error) {
	for lev := mgc.baseLevel; lev <= mgc.top; lev++ {
		ls := mgc.levels[lev]
		if nonlinear {
			ls.A, err = mgc.assembler.AssembleLevelJacobian(ls.u, lev, ls.dd)
		} else {
			ls.A, err = mgc.assembler.AssembleLevelOperator(lev, ls.dd)
		}
		if err != nil {
			return fmt.Errorf("assembling level %d: %w", lev, err)
		}
	}
	return
}

func (mgc *AssembledMultiGridCycle) initSmoothers(nonlinear bool) (err error) {
	levelSolution := func(ls *levelStorage) *algebra.Vector {
		if nonlinear {
			return ls.u
		}
		return nil
	}
	for lev := mgc.baseLevel + 1; lev <= mgc.top; lev++ {
		ls := mgc.levels[lev]
		ls.smoother = mgc.smoother.Clone()
		if err = ls.smoother.Init(ls.A, levelSolution(ls)); err != nil {
			return fmt.Errorf("smoother %s on level %d: %w", ls.smoother.Name(), lev, err)
		}
	}
	base := mgc.levels[mgc.baseLevel]
	if err = mgc.baseSolver.Init(base.A, levelSolution(base)); err != nil {
		return fmt.Errorf("base solver %s on level %d: %w", mgc.baseSolver.Name(), mgc.baseLevel, err)
	}
	return
}

/*
ApplyUpdateDefect performs one cycle: c receives the correction and d is updated to d - A*c. Errors of any level
abort the whole cycle.
*/
func (mgc *AssembledMultiGridCycle) ApplyUpdateDefect(c, d *algebra.Vector) (err error) {
	if err = mgc.applyUpdateDefect(c, d); err != nil {
		mgc.logger.Error("multigrid cycle failed", zap.Int("iteration", mgc.iterations+1), zap.Error(err))
		return
	}
	if ce := mgc.logger.Check(zap.DebugLevel, "multigrid cycle"); ce != nil {
		ce.Write(zap.Int("iteration", mgc.iterations), zap.Float64("defect", d.Norm()))
	}
	return
}

// Apply computes the correction of one cycle and leaves d unchanged
func (mgc *AssembledMultiGridCycle) Apply(c, d *algebra.Vector) error {
	return mgc.ApplyUpdateDefect(c, d.Clone())
}

func (mgc *AssembledMultiGridCycle) applyUpdateDefect(c, d *algebra.Vector) (err error) {
	if !mgc.initialized {
		return ErrNotInitialized
	}
	top, err := mgc.checkLevels()
	if err != nil {
		return
	}
	if top != mgc.top || mgc.revision != mgc.space.Revision() {
		return fmt.Errorf("grid revision %d, initialized for revision %d: %w", mgc.space.Revision(), mgc.revision,
			ErrNotInitialized)
	}
	var (
		surfDD = mgc.space.SurfaceDoFDistribution()
		view   = mgc.space.SurfaceView()
		dds    = distributions(mgc.levels)
		dVecs  = vectors(mgc.levels, func(ls *levelStorage) *algebra.Vector { return ls.d })
		cVecs  = vectors(mgc.levels, func(ls *levelStorage) *algebra.Vector { return ls.c })
		d0     *algebra.Vector
	)
	if err = ProjectSurfaceToLevel(dVecs, dds, d, surfDD, view); err != nil {
		return fmt.Errorf("projecting defect to the levels: %w", err)
	}
	if err = ProjectSurfaceToLevel(cVecs, dds, c, surfDD, view); err != nil {
		return fmt.Errorf("projecting correction to the levels: %w", err)
	}
	for lev := 0; lev < mgc.top; lev++ {
		ls := mgc.levels[lev]
		ls.sd.CopyFrom(ls.d)
		if lev < mgc.baseLevel {
			ls.c.Set(0)
		}
	}
	if mgc.recompute {
		d0 = d.Clone()
	}
	if err = mgc.lmgc(mgc.top); err != nil {
		return
	}
	if err = ProjectLevelToSurface(c, surfDD, view, cVecs, dds); err != nil {
		return fmt.Errorf("projecting correction to the surface: %w", err)
	}
	if mgc.recompute {
		d.CopyFrom(d0)
		if err = mgc.op.ApplySub(d, c); err != nil {
			return fmt.Errorf("updating surface defect: %w", err)
		}
	} else if err = ProjectLevelToSurface(d, surfDD, view, dVecs, dds); err != nil {
		return fmt.Errorf("projecting defect to the surface: %w", err)
	}
	mgc.iterations++
	return
}

func (mgc *AssembledMultiGridCycle) smooth(ls *levelStorage, nu int) (err error) {
	for i := 0; i < nu; i++ {
		if err = ls.smoother.ApplyUpdateDefect(ls.t, ls.d); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		ls.c.Add(ls.t)
	}
	return
}

// lmgc performs the cycle on level lev, c[lev] gets the correction and d[lev] the updated defect
func (mgc *AssembledMultiGridCycle) lmgc(lev int) (err error) {
	ls := mgc.levels[lev]
	ls.c.Set(0)
	if lev == mgc.baseLevel {
		if mgc.comm != nil {
			ls.d.SetStorageType(algebra.Additive)
		}
		if err = mgc.baseSolver.Apply(ls.c, ls.d); err != nil {
			return fmt.Errorf("base solver on level %d: %w", lev, err)
		}
		if err = ls.A.ApplySub(ls.d, ls.c); err != nil {
			return fmt.Errorf("updating defect on level %d: %w", lev, err)
		}
		return
	}
	coarse := mgc.levels[lev-1]
	if err = mgc.smooth(ls, mgc.nuPre); err != nil {
		return fmt.Errorf("presmoothing on level %d: %w", lev, err)
	}
	if l := coarse.d.Layouts().VMaster; mgc.comm != nil && !l.Empty() {
		// vertical slaves add their part after the restriction
		coarse.d.ZeroLayout(l)
	}
	if err = ls.prolongation.ApplyTransposed(coarse.d, ls.d); err != nil {
		return fmt.Errorf("restricting from level %d to %d: %w", lev, lev-1, err)
	}
	coarse.d.Add(coarse.sd)
	resume := true
	if mgc.comm != nil {
		if resume, err = mgc.sendDefectUp(coarse.d); err != nil {
			return fmt.Errorf("sending defect of level %d: %w", lev-1, err)
		}
	}
	if resume {
		for i := 0; i < mgc.cycleType; i++ {
			if err = mgc.lmgc(lev - 1); err != nil {
				return
			}
			if mgc.cycleType > 1 {
				if i == 0 {
					coarse.acc.CopyFrom(coarse.c)
				} else {
					coarse.acc.Add(coarse.c)
				}
			}
		}
		if mgc.cycleType > 1 {
			coarse.c.CopyFrom(coarse.acc)
		}
	} else {
		coarse.c.Set(0)
	}
	if mgc.comm != nil {
		if err = mgc.copyCorrectionDown(coarse.c); err != nil {
			return fmt.Errorf("receiving correction of level %d: %w", lev-1, err)
		}
	}
	if err = ls.prolongation.Apply(ls.t, coarse.c); err != nil {
		return fmt.Errorf("prolongating from level %d to %d: %w", lev-1, lev, err)
	}
	ls.c.Add(ls.t)
	if err = ls.A.ApplySub(ls.d, ls.t); err != nil {
		return fmt.Errorf("updating defect on level %d: %w", lev, err)
	}
	if err = mgc.smooth(ls, mgc.nuPost); err != nil {
		return fmt.Errorf("postsmoothing on level %d: %w", lev, err)
	}
	return
}

/*
sendDefectUp moves the restricted defect of vertical slaves to their masters. A process with vertical slaves does
not own the coarse level and must not continue the cycle there, it reports resume = false.
*/
func (mgc *AssembledMultiGridCycle) sendDefectUp(d *algebra.Vector) (resume bool, err error) {
	resume = true
	l := d.Layouts()
	if !l.VSlave.Empty() {
		resume = false
		mgc.comm.SendData(l.VSlave, algebra.NewVecAddPolicy(d))
	} else if !l.VMaster.Empty() {
		mgc.comm.ReceiveData(l.VMaster, algebra.NewVecAddPolicy(d))
	}
	err = mgc.comm.Communicate(mgc.ctx)
	return
}

// copyCorrectionDown sends the coarse correction of vertical masters to their slaves
func (mgc *AssembledMultiGridCycle) copyCorrectionDown(c *algebra.Vector) error {
	l := c.Layouts()
	if !l.VSlave.Empty() {
		mgc.comm.ReceiveData(l.VSlave, algebra.NewVecCopyPolicy(c))
		c.SetStorageType(algebra.Consistent)
	} else if !l.VMaster.Empty() {
		mgc.comm.SendData(l.VMaster, algebra.NewVecCopyPolicy(c))
		c.SetStorageType(algebra.Consistent)
	}
	return mgc.comm.Communicate(mgc.ctx)
}

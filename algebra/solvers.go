package algebra

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gomg/utils"
)

// LU is a dense direct solver for small base level operators
type LU struct {
	A  *Matrix
	lu *mat.LU
	n  int
}

func NewLU() *LU { return &LU{} }

func (s *LU) Name() string { return "LU" }

func (s *LU) Clone() LinearIterator { return NewLU() }

func (s *LU) Init(op LinearOperator, u *Vector) (err error) {
	if s.A, err = asMatrix(op); err != nil {
		return
	}
	nr, nc := s.A.Dims()
	if nr != nc {
		return fmt.Errorf("LU of a %dx%d matrix: %w", nr, nc, ErrDimensionMismatch)
	}
	s.n, s.lu = nr, nil
	if s.n == 0 {
		return
	}
	s.lu = &mat.LU{}
	s.lu.Factorize(s.A.Dense())
	if cond := s.lu.Cond(); math.IsInf(cond, 1) || cond > 1.e16 {
		return fmt.Errorf("LU of order %d with condition number %g: %w", s.n, cond, ErrSingular)
	}
	return
}

func (s *LU) Apply(c, d *Vector) (err error) {
	if s.A == nil {
		return ErrNotInitialized
	}
	if c.Len() != s.n || d.Len() != s.n {
		return fmt.Errorf("LU of order %d with vectors of length %d and %d: %w", s.n, c.Len(), d.Len(),
			ErrDimensionMismatch)
	}
	if s.n == 0 {
		return
	}
	x := mat.NewVecDense(s.n, c.Data)
	if err = s.lu.SolveVecTo(x, false, mat.NewVecDense(s.n, d.Data)); err != nil {
		return fmt.Errorf("LU solve: %w: %w", ErrSingular, err)
	}
	return
}

func (s *LU) ApplyUpdateDefect(c, d *Vector) (err error) {
	if err = s.Apply(c, d); err != nil {
		return
	}
	return s.A.ApplySub(d, c)
}

type CGOption func(cg *CG)

func WithCGMaxIterations(n int) CGOption { return func(cg *CG) { cg.maxIter = n } }

// WithCGTolerance stops once the defect is below abs or reduced by the factor red
func WithCGTolerance(abs, red float64) CGOption {
	return func(cg *CG) { cg.absTol, cg.reduction = abs, red }
}

// CG is the conjugate gradient method with a Jacobi preconditioner, usable as a base solver
type CG struct {
	A                 *Matrix
	maxIter           int
	absTol, reduction float64
	invDiag           []float64
	lastIterations    int
}

func NewCG(opts ...CGOption) (cg *CG) {
	cg = &CG{maxIter: 1000, absTol: 1.e-14, reduction: 1.e-12}
	for _, opt := range opts {
		opt(cg)
	}
	return
}

func (cg *CG) Name() string { return "CG" }

func (cg *CG) Clone() LinearIterator {
	return &CG{maxIter: cg.maxIter, absTol: cg.absTol, reduction: cg.reduction}
}

func (cg *CG) Init(op LinearOperator, u *Vector) (err error) {
	if cg.A, err = asMatrix(op); err != nil {
		return
	}
	diag := cg.A.Diagonal()
	cg.invDiag = make([]float64, len(diag))
	for i, a := range diag {
		if a == 0 {
			return fmt.Errorf("zero diagonal in row %d: %w", i, ErrSingular)
		}
		cg.invDiag[i] = 1. / a
	}
	return
}

func (cg *CG) Iterations() int { return cg.lastIterations }

// ApplyUpdateDefect solves A c = d starting from zero, d holds the final defect afterwards
func (cg *CG) ApplyUpdateDefect(c, d *Vector) (err error) {
	if cg.A == nil {
		return ErrNotInitialized
	}
	n := len(cg.invDiag)
	if c.Len() != n || d.Len() != n {
		return fmt.Errorf("CG of order %d with vectors of length %d and %d: %w", n, c.Len(), d.Len(),
			ErrDimensionMismatch)
	}
	c.Set(0)
	var (
		r  = d.Data
		z  = make([]float64, n)
		p  = make([]float64, n)
		q  = NewVector(n)
		r0 = d.Norm()
	)
	cg.lastIterations = 0
	if r0 <= cg.absTol {
		return
	}
	precond := func() {
		for i := range z {
			z[i] = cg.invDiag[i] * r[i]
		}
	}
	precond()
	copy(p, z)
	rz := floats.Dot(r, z)
	for it := 1; it <= cg.maxIter; it++ {
		if err = cg.A.Apply(q, NewVectorFrom(p)); err != nil {
			return
		}
		pq := floats.Dot(p, q.Data)
		if pq == 0 {
			return fmt.Errorf("CG breakdown in iteration %d: %w", it, ErrSingular)
		}
		alpha := rz / pq
		floats.AddScaled(c.Data, alpha, p)
		floats.AddScaled(r, -alpha, q.Data)
		cg.lastIterations = it
		if rn := d.Norm(); rn <= cg.absTol || rn <= cg.reduction*r0 {
			return
		}
		precond()
		rzNew := floats.Dot(r, z)
		floats.AddScaledTo(p, z, rzNew/rz, p)
		rz = rzNew
	}
	return fmt.Errorf("CG after %d iterations, defect %g of %g: %w", cg.maxIter, d.Norm(), r0, ErrNotConverged)
}

func (cg *CG) Apply(c, d *Vector) error { return applyOnCopy(cg, c, d) }

// Result is the convergence history of one linear solve
type Result struct {
	Iterations    int
	InitialDefect float64
	FinalDefect   float64
	Defects       []float64
	Converged     bool
}

// Rate is the average defect reduction per iteration
func (r Result) Rate() float64 {
	if r.Iterations == 0 || r.InitialDefect == 0 {
		return 0
	}
	return math.Pow(r.FinalDefect/r.InitialDefect, 1./float64(r.Iterations))
}

type SolverOption func(s *LinearSolver)

func WithMaxIterations(n int) SolverOption { return func(s *LinearSolver) { s.maxIter = n } }

// WithTolerance stops once the defect is below abs or reduced by the factor red
func WithTolerance(abs, red float64) SolverOption {
	return func(s *LinearSolver) { s.absTol, s.reduction = abs, red }
}

func WithSolverLogger(logger *zap.Logger) SolverOption {
	return func(s *LinearSolver) { s.logger = logger }
}

// LinearSolver is a defect correction loop x += B d with a preconditioning iterator B
type LinearSolver struct {
	precond           LinearIterator
	op                LinearOperator
	maxIter           int
	absTol, reduction float64
	logger            *zap.Logger
}

func NewLinearSolver(precond LinearIterator, opts ...SolverOption) (s *LinearSolver) {
	s = &LinearSolver{
		precond:   precond,
		maxIter:   100,
		absTol:    1.e-12,
		reduction: 1.e-8,
		logger:    zap.L().Named("algebra"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return
}

func (s *LinearSolver) Init(op LinearOperator, u *Vector) (err error) {
	s.op = op
	if err = s.precond.Init(op, u); err != nil {
		return fmt.Errorf("initializing %s: %w", s.precond.Name(), err)
	}
	return
}

// Solve improves the initial guess x of A x = b
func (s *LinearSolver) Solve(x, b *Vector) (res Result, err error) {
	if s.op == nil {
		return res, ErrNotInitialized
	}
	var (
		d = b.Clone()
		c = NewVector(x.Len())
	)
	c.SetLayouts(x.Layouts())
	if err = s.op.ApplySub(d, x); err != nil {
		return
	}
	res.InitialDefect = d.Norm()
	res.Defects = append(res.Defects, res.InitialDefect)
	res.FinalDefect = res.InitialDefect
	for res.Iterations < s.maxIter {
		if res.FinalDefect <= s.absTol || res.FinalDefect <= s.reduction*res.InitialDefect {
			res.Converged = true
			break
		}
		if err = s.precond.ApplyUpdateDefect(c, d); err != nil {
			return res, fmt.Errorf("iteration %d: %w", res.Iterations+1, err)
		}
		x.Add(c)
		res.Iterations++
		res.FinalDefect = d.Norm()
		res.Defects = append(res.Defects, res.FinalDefect)
		if !utils.IsFinite(res.FinalDefect) {
			return res, fmt.Errorf("iteration %d: %w", res.Iterations, ErrDiverged)
		}
		s.logger.Debug("linear iteration", zap.String("iterator", s.precond.Name()),
			zap.Int("iteration", res.Iterations), zap.Float64("defect", res.FinalDefect))
	}
	if !res.Converged && (res.FinalDefect <= s.absTol || res.FinalDefect <= s.reduction*res.InitialDefect) {
		res.Converged = true
	}
	if !res.Converged {
		err = fmt.Errorf("defect %g after %d iterations, initial %g: %w", res.FinalDefect, res.Iterations,
			res.InitialDefect, ErrNotConverged)
	}
	return
}

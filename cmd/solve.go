/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/gomg/InputParameters"
	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/disc"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/mg"
	"github.com/notargets/gomg/transfer"
	"github.com/notargets/gomg/utils"
)

func newSolveCmd(v *viper.Viper) *cobra.Command {
	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a reaction diffusion problem with the multigrid preconditioner",
		Long: `
Solves -div(k grad u) + r u + c u^3 = 1 with u = 0 on the boundary. The linear problem is solved by defect correction
preconditioned with one multigrid cycle per step, a nonzero cubic coefficient adds an outer Newton iteration,

gomg solve -r 3 --cycle W --smoother Jacobi`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ip, err := loadParameters(v)
			if err != nil {
				return
			}
			if v.GetBool("profile") {
				defer profile.Start(profile.CPUProfile, profile.ProfilePath(v.GetString("profilePath")),
					profile.NoShutdownHook).Stop()
			}
			if v.GetBool("printParameters") {
				ip.Fprint(cmd.OutOrStdout())
			}
			return runSolve(cmd.OutOrStdout(), ip)
		},
	}
	solveCmd.Flags().String("cycle", "", "V, W or the number of coarse grid visits per level")
	solveCmd.Flags().String("smoother", "", "Jacobi, GS, BGS or SGS")
	solveCmd.Flags().Int("maxIterations", 0, "maximum number of cycles per linear solve")
	solveCmd.Flags().Bool("printParameters", false, "print the input parameters before solving")
	solveCmd.Flags().Bool("profile", false, "write a CPU profile")
	solveCmd.Flags().String("profilePath", ".", "directory of the CPU profile")
	return solveCmd
}

func newSmoother(ip *InputParameters.InputParametersMG) (algebra.LinearIterator, error) {
	switch strings.ToUpper(ip.Smoother) {
	case "JACOBI":
		return algebra.NewJacobi(ip.Damping), nil
	case "GS", "GAUSSSEIDEL":
		return algebra.NewGaussSeidel(algebra.Forward), nil
	case "BGS":
		return algebra.NewGaussSeidel(algebra.Backward), nil
	case "SGS":
		return algebra.NewGaussSeidel(algebra.Symmetric), nil
	}
	return nil, fmt.Errorf("unknown smoother %q, use one of Jacobi, GS, BGS, SGS", ip.Smoother)
}

func newBaseSolver(ip *InputParameters.InputParametersMG) (algebra.LinearIterator, error) {
	switch strings.ToUpper(ip.BaseSolver) {
	case "LU":
		return algebra.NewLU(), nil
	case "CG":
		return algebra.NewCG(algebra.WithCGTolerance(1.e-14, 1.e-12)), nil
	}
	return nil, fmt.Errorf("unknown base solver %q, use LU or CG", ip.BaseSolver)
}

// newPreconditioner configures the multigrid cycle of the parameters
func newPreconditioner(ip *InputParameters.InputParametersMG, rd *disc.ReactionDiffusion,
	space *dof.ApproximationSpace, logger *zap.Logger) (cycle *mg.AssembledMultiGridCycle, err error) {
	cycleType, err := ip.CycleType()
	if err != nil {
		return
	}
	smoother, err := newSmoother(ip)
	if err != nil {
		return
	}
	base, err := newBaseSolver(ip)
	if err != nil {
		return
	}
	prolongation := transfer.NewP1Prolongation(space)
	prolongation.AddConstraint(disc.NewDirichletConstraint(space))
	cycle = mg.NewAssembledMultiGridCycle(rd, space,
		mg.WithSmoother(smoother),
		mg.WithBaseSolver(base),
		mg.WithProlongation(prolongation),
		mg.WithProjection(transfer.NewP1Projection(space)),
		mg.WithBaseLevel(ip.BaseLevel),
		mg.WithCycleType(cycleType),
		mg.WithSmoothingSteps(ip.PreSmooth, ip.PostSmooth),
		mg.WithLogger(logger.Named("mg")),
	)
	return
}

func runSolve(w io.Writer, ip *InputParameters.InputParametersMG) (err error) {
	runID := uuid.New()
	logger := zap.L().With(zap.String("run", runID.String()))
	defer func() { logger.Debug("solve finished", zap.String("memory", utils.GetMemUsage())) }()
	space, err := buildHierarchy(ip, logger)
	if err != nil {
		return
	}
	rd := disc.NewReactionDiffusion(space,
		disc.WithDiffusion(ip.Coefficient("Diffusion", 1)),
		disc.WithReaction(ip.Coefficient("Reaction", 0)),
		disc.WithCubic(ip.Coefficient("Cubic", 0)),
		disc.WithSource(func([3]float64) float64 { return 1 }),
		disc.WithLogger(logger.Named("disc")),
	)
	cycle, err := newPreconditioner(ip, rd, space, logger)
	if err != nil {
		return
	}
	solver := algebra.NewLinearSolver(cycle,
		algebra.WithMaxIterations(ip.MaxIterations),
		algebra.WithTolerance(ip.Tolerance, ip.Reduction),
		algebra.WithSolverLogger(logger.Named("algebra")),
	)
	fmt.Fprintf(w, "run %s: %s, %s smoother, %d levels, %d surface DoFs\n", runID, cycle.Name(), ip.Smoother,
		space.NumLevels(), space.SurfaceDoFDistribution().NumDoFs())
	if rd.Nonlinear() {
		return solveNonlinear(w, ip, rd, solver)
	}
	A, err := rd.AssembleSurfaceOperator()
	if err != nil {
		return
	}
	b, err := rd.AssembleSurfaceRHS()
	if err != nil {
		return
	}
	if err = solver.Init(A, nil); err != nil {
		return
	}
	x := space.CreateSurfaceVector()
	res, err := solver.Solve(x, b)
	printHistory(w, res)
	return
}

// solveNonlinear runs Newton's method, each step solves the jacobian system to the linear tolerance
func solveNonlinear(w io.Writer, ip *InputParameters.InputParametersMG, rd *disc.ReactionDiffusion,
	solver *algebra.LinearSolver) (err error) {
	var (
		space = rd.Space()
		u     = rd.DirichletValues(space.SurfaceDoFDistribution())
		d0    float64
	)
	for step := 0; step <= ip.NewtonSteps; step++ {
		var d *algebra.Vector
		if d, err = rd.SurfaceDefect(u); err != nil {
			return
		}
		norm := d.Norm()
		if step == 0 {
			d0 = norm
		}
		fmt.Fprintf(w, "newton %3d %12.5e\n", step, norm)
		if norm <= ip.Tolerance || norm <= ip.Reduction*d0 {
			return
		}
		if step == ip.NewtonSteps {
			break
		}
		var J *algebra.Matrix
		if J, err = rd.AssembleSurfaceJacobian(u); err != nil {
			return
		}
		if err = solver.Init(J, u); err != nil {
			return
		}
		c := space.CreateSurfaceVector()
		var res algebra.Result
		if res, err = solver.Solve(c, d); err != nil {
			return fmt.Errorf("newton step %d: %w", step+1, err)
		}
		fmt.Fprintf(w, "\t%d linear iterations, rate %.4f\n", res.Iterations, res.Rate())
		u.Add(c)
	}
	return fmt.Errorf("newton did not converge in %d steps: %w", ip.NewtonSteps, algebra.ErrNotConverged)
}

func printHistory(w io.Writer, res algebra.Result) {
	for i, d := range res.Defects {
		if i == 0 {
			fmt.Fprintf(w, "%4d %12.5e\n", i, d)
			continue
		}
		fmt.Fprintf(w, "%4d %12.5e %8.4f\n", i, d, d/res.Defects[i-1])
	}
	fmt.Fprintf(w, "converged: %v after %d iterations, average rate %.4f\n", res.Converged, res.Iterations, res.Rate())
}

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
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/gomg/InputParameters"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/parallel"
	"github.com/notargets/gomg/refine"
)

// buildHierarchy refines the coarse mesh uniformly, then adaptively around the refinement center
func buildHierarchy(ip *InputParameters.InputParametersMG, logger *zap.Logger) (space *dof.ApproximationSpace,
	err error) {
	m, err := mesh.ByName(ip.Mesh, ip.MeshDivisions)
	if err != nil {
		return
	}
	mg, err := grid.FromMesh(m)
	if err != nil {
		return
	}
	r := refine.NewRefiner(mg, refine.WithCopyRange(ip.CopyRange), refine.WithLogger(logger.Named("refine")))
	for i := 0; i < ip.Refinements; i++ {
		r.MarkAll()
		if err = r.Refine(); err != nil {
			return
		}
	}
	var center [3]float64
	copy(center[:], ip.RefineCenter)
	for i := 0; i < ip.AdaptiveRefinements; i++ {
		marked := markNear(mg, center, ip.RefineRadius)
		if len(marked) == 0 {
			logger.Warn("no element near the refinement center", zap.Int("step", i))
			break
		}
		r.MarkForRefinement(marked...)
		if err = r.Refine(); err != nil {
			return
		}
	}
	space = dof.NewApproximationSpace(mg, dof.WithLogger(logger.Named("dof")))
	return
}

/*
buildDistributedHierarchy refines the part of the coarse mesh owned by one process. It is collective, every process
of the world calls it with the same parameters and partitions.
*/
func buildDistributedHierarchy(ctx context.Context, ip *InputParameters.InputParametersMG, comm *parallel.Communicator,
	parts []*parallel.LocalMesh, logger *zap.Logger) (space *dof.ApproximationSpace, err error) {
	mg, err := grid.FromMesh(parts[comm.Rank()].Mesh)
	if err != nil {
		return
	}
	dgm := parallel.NewDistributedGridManager(mg, comm, logger.Named("distgrid"))
	dgm.AddHorizontalInterfaces(parts)
	pr := refine.NewParallelRefiner(dgm, refine.WithCopyRange(ip.CopyRange), refine.WithLogger(logger.Named("refine")))
	for i := 0; i < ip.Refinements; i++ {
		pr.MarkAll()
		if err = pr.Refine(ctx); err != nil {
			return
		}
	}
	var center [3]float64
	copy(center[:], ip.RefineCenter)
	for i := 0; i < ip.AdaptiveRefinements; i++ {
		var (
			marked = markNear(mg, center, ip.RefineRadius)
			found  bool
		)
		if found, err = comm.AllReduceOr(ctx, len(marked) > 0); err != nil {
			return
		}
		if !found {
			logger.Warn("no element near the refinement center", zap.Int("step", i))
			break
		}
		pr.MarkForRefinement(marked...)
		if err = pr.Refine(ctx); err != nil {
			return
		}
	}
	space = dof.NewApproximationSpace(mg, dof.WithDistributedGrid(dgm), dof.WithLogger(logger.Named("dof")))
	return
}

// uniqueSurfaceDoFs counts the surface DoFs of all processes, DoFs in horizontal slave interfaces belong to the master
func uniqueSurfaceDoFs(ctx context.Context, space *dof.ApproximationSpace) (n int, err error) {
	var (
		surf   = space.SurfaceDoFDistribution()
		slaves = surf.Layout(parallel.HSlave)
		owned  = make(map[int]bool)
	)
	for _, p := range slaves.Procs() {
		for _, i := range slaves.Interface(p) {
			owned[i] = true
		}
	}
	return space.Communicator().AllReduceSum(ctx, surf.NumDoFs()-len(owned))
}

// markNear selects the refinable leaves of the top dimension whose centroid is within radius of center
func markNear(mg *grid.MultiGrid, center [3]float64, radius float64) (marked []grid.Ref) {
	top := mg.TopDim()
	for i := 0; i < mg.Num(top); i++ {
		ref := grid.Ref{Dim: top, Index: i}
		if mg.HasChildren(ref) {
			continue
		}
		switch mg.Element(ref).Status {
		case grid.StatusCopy, grid.StatusIrregular:
			continue
		}
		var (
			c    = mg.Centroid(ref)
			dist float64
		)
		for k := range c {
			dist += (c[k] - center[k]) * (c[k] - center[k])
		}
		if math.Sqrt(dist) <= radius {
			marked = append(marked, ref)
		}
	}
	return
}

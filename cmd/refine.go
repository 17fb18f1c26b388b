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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/gomg/InputParameters"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/parallel"
)

func newRefineCmd(v *viper.Viper) *cobra.Command {
	refineCmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine a coarse mesh and print the level hierarchy",
		Long: `
Refines one of the built-in coarse meshes and prints element, constraint and DoF counts for every level.
With more than one process the coarse mesh is partitioned and every process refines its own part,

gomg refine -m cube -r 2 -a 1
gomg refine -m square -n 4 -r 2 --np 2`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ip, err := loadParameters(v)
			if err != nil {
				return
			}
			if np := v.GetInt("np"); np > 1 {
				return refineDistributed(cmd.OutOrStdout(), ip, np)
			}
			space, err := buildHierarchy(ip, zap.L())
			if err != nil {
				return
			}
			printHierarchy(cmd.OutOrStdout(), space)
			return
		},
	}
	refineCmd.Flags().Int("np", 1, "number of processes the coarse mesh is partitioned onto")
	return refineCmd
}

// refineDistributed prints the hierarchy of every process in rank order, followed by the global surface DoF count
func refineDistributed(w io.Writer, ip *InputParameters.InputParametersMG, np int) (err error) {
	m, err := mesh.ByName(ip.Mesh, ip.MeshDivisions)
	if err != nil {
		return
	}
	if np > m.NumElements {
		return fmt.Errorf("%d processes for %d coarse elements", np, m.NumElements)
	}
	var (
		parts   = parallel.PartitionMesh(m, np)
		world   = parallel.NewWorld(np, zap.L().Named("parallel"))
		outputs = make([]bytes.Buffer, np)
		total   int
	)
	err = world.Run(context.Background(), func(ctx context.Context, comm *parallel.Communicator) (err error) {
		logger := zap.L().With(zap.Int("rank", comm.Rank()))
		space, err := buildDistributedHierarchy(ctx, ip, comm, parts, logger)
		if err != nil {
			return
		}
		n, err := uniqueSurfaceDoFs(ctx, space)
		if err != nil {
			return
		}
		if comm.Rank() == 0 {
			total = n
		}
		printHierarchy(&outputs[comm.Rank()], space)
		return
	})
	if err != nil {
		return
	}
	for rank := range outputs {
		fmt.Fprintf(w, "rank %d\n", rank)
		if _, err = outputs[rank].WriteTo(w); err != nil {
			return
		}
	}
	fmt.Fprintf(w, "unique surface DoFs: %d\n", total)
	return
}

type levelSummary struct {
	grid.LevelStats
	Copies, Constrained, Constraining, DoFs int
}

func summarize(space *dof.ApproximationSpace) (sums []levelSummary) {
	mg := space.Grid()
	for l, st := range mg.Stats() {
		sums = append(sums, levelSummary{
			LevelStats: st,
			DoFs:       space.LevelDoFDistribution(l).NumDoFs(),
		})
	}
	for d := grid.DimVertex; d < grid.NumDims; d++ {
		for i := 0; i < mg.Num(d); i++ {
			el := mg.Element(grid.Ref{Dim: d, Index: i})
			sum := &sums[el.Level]
			if el.Status == grid.StatusCopy && d == mg.TopDim() {
				sum.Copies++
			}
			switch el.Constraint {
			case grid.Constrained:
				sum.Constrained++
			case grid.Constraining:
				sum.Constraining++
			}
		}
	}
	return
}

func printHierarchy(w io.Writer, space *dof.ApproximationSpace) {
	top := space.Grid().TopDim()
	fmt.Fprintf(w, "%5s %9s %9s %9s %9s %9s %7s %11s %12s %9s\n", "level", "vertices", "edges", "faces", "volumes",
		"leaves", "copies", "constrained", "constraining", "dofs")
	for _, s := range summarize(space) {
		fmt.Fprintf(w, "%5d %9d %9d %9d %9d %9d %7d %11d %12d %9d\n", s.Level, s.Counts[grid.DimVertex],
			s.Counts[grid.DimEdge], s.Counts[grid.DimFace], s.Counts[grid.DimVolume], s.Leaves[top], s.Copies,
			s.Constrained, s.Constraining, s.DoFs)
	}
	fmt.Fprintf(w, "surface DoFs: %d\n", space.SurfaceDoFDistribution().NumDoFs())
}

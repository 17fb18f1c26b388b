package refine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/parallel"
)

func localVertex(lm *parallel.LocalMesh, global int) int {
	for l, g := range lm.GlobalVertex {
		if g == global {
			return l
		}
	}
	return -1
}

func TestParallelInterfaceSplit(t *testing.T) {
	var (
		parts      = parallel.PartitionMesh(mesh.UnitSquareTris(2), 2)
		w          = parallel.NewWorld(2, zap.NewNop())
		ifacePos   [2][][3]float64
		ifaceEdges [2]int
	)
	err := w.Run(context.Background(), func(ctx context.Context, comm *parallel.Communicator) error {
		rank := comm.Rank()
		mg, err := grid.FromMesh(parts[rank].Mesh)
		if err != nil {
			return err
		}
		dgm := parallel.NewDistributedGridManager(mg, comm, zap.NewNop())
		dgm.AddHorizontalInterfaces(parts)
		pr := NewParallelRefiner(dgm, WithCopyRange(0), WithLogger(zap.NewNop()))
		if rank == 0 {
			// The triangle 0-4-3 touches the interface with its edge 3-4
			pr.MarkForRefinement(grid.FaceRef(1))
		}
		if err = pr.Refine(ctx); err != nil {
			return err
		}
		e, ok := mg.FindEdge(localVertex(parts[rank], 3), localVertex(parts[rank], 4))
		if !ok {
			return fmt.Errorf("rank %d has no interface edge 3-4", rank)
		}
		if _, split := mg.ChildVertex(grid.EdgeRef(e)); !split {
			return fmt.Errorf("interface edge was not split on rank %d", rank)
		}
		it := parallel.HSlave
		if rank == 0 {
			it = parallel.HMaster
		}
		for _, v := range dgm.Layout(it, grid.DimVertex, 1).Interface(1 - rank) {
			ifacePos[rank] = append(ifacePos[rank], mg.Pos(v))
		}
		ifaceEdges[rank] = dgm.Layout(it, grid.DimEdge, 1).NumEntries()
		return nil
	})
	require.NoError(t, err)
	// Copies of vertices 3 and 4 plus the midpoint of the edge between them
	assert.Len(t, ifacePos[0], 3)
	assert.Equal(t, ifacePos[0], ifacePos[1])
	assert.Equal(t, 2, ifaceEdges[0])
	assert.Equal(t, ifaceEdges[0], ifaceEdges[1])
}

func TestParallelGhostTypes(t *testing.T) {
	var (
		w            = parallel.NewWorld(2, zap.NewNop())
		constraints  [2][]grid.ConstraintType
		levels       [2]int
		level1Faces  [2]int
		refineErrors [2]error
	)
	err := w.Run(context.Background(), func(ctx context.Context, comm *parallel.Communicator) error {
		rank := comm.Rank()
		mg, err := grid.FromMesh(mesh.UnitSquareQuads(2))
		if err != nil {
			return err
		}
		dgm := parallel.NewDistributedGridManager(mg, comm, zap.NewNop())
		// Rank 0 only holds ghosts, their children live on rank 1
		dgm.AddVerticalCopy(0, 1-rank, rank == 0)
		pr := NewParallelRefiner(dgm, WithCopyRange(0), WithLogger(zap.NewNop()))
		if rank == 0 {
			pr.MarkAll()
		} else {
			pr.MarkForRefinement(grid.FaceRef(0))
		}
		refineErrors[rank] = pr.Refine(ctx)
		if refineErrors[rank] != nil && !errors.Is(refineErrors[rank], ErrUnsupportedConfiguration) {
			return refineErrors[rank]
		}
		for _, e := range mg.ElementsOnLevel(grid.DimEdge, 0) {
			constraints[rank] = append(constraints[rank], mg.Edge(e).Constraint)
		}
		levels[rank] = mg.NumLevels()
		level1Faces[rank] = len(mg.ElementsOnLevel(grid.DimFace, 1))
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, refineErrors[0])
	assert.ErrorIs(t, refineErrors[1], ErrUnsupportedConfiguration)
	assert.Equal(t, constraints[1], constraints[0])
	assert.Contains(t, constraints[0], grid.Constraining)
	assert.Equal(t, [2]int{2, 2}, levels)
	assert.Equal(t, [2]int{0, 4}, level1Faces)
}

package parallel

import (
	"sort"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/types"
	"github.com/notargets/gomg/utils"
)

// LocalMesh is the part of a coarse mesh owned by one process
type LocalMesh struct {
	Mesh         *mesh.Mesh
	GlobalVertex []int // Local vertex index to vertex index of the undistributed mesh
}

// PartitionMesh splits the elements of a coarse mesh into np contiguous chunks
func PartitionMesh(m *mesh.Mesh, np int) (parts []*LocalMesh) {
	pm := utils.NewPartitionMap(np, m.NumElements)
	parts = make([]*LocalMesh, np)
	for rank := 0; rank < np; rank++ {
		kMin, kMax := pm.GetBucketRange(rank)
		var (
			local = mesh.NewMesh()
			l2g   []int
			g2l   = make(map[int]int)
		)
		for k := kMin; k < kMax; k++ {
			verts := make([]int, len(m.EtoV[k]))
			for i, gv := range m.EtoV[k] {
				lv, ok := g2l[gv]
				if !ok {
					x := m.Vertices[gv]
					lv = local.AddNode(x[0], x[1], x[2])
					g2l[gv] = lv
					l2g = append(l2g, gv)
				}
				verts[i] = lv
			}
			if _, err := local.AddElement(m.ElementTypes[k], verts...); err != nil {
				panic(err)
			}
		}
		parts[rank] = &LocalMesh{Mesh: local, GlobalVertex: l2g}
	}
	return
}

/*
AddHorizontalInterfaces links the level 0 elements a process shares with every other partition. The lower rank is
the master. Entries are ordered by their global vertex key so both processes agree on the interface order.
*/
func (dgm *DistributedGridManager) AddHorizontalInterfaces(parts []*LocalMesh) {
	var (
		rank = dgm.comm.Rank()
		mine = parts[rank]
	)
	globalKeys := func(lm *LocalMesh, mg *grid.MultiGrid, r grid.Ref) types.ElementKey {
		var gv []int
		for _, v := range mg.Element(r).Verts {
			gv = append(gv, lm.GlobalVertex[v])
		}
		if len(gv) == 1 {
			gv = append(gv, -1)
		}
		return types.NewElementKey(gv)
	}
	// Keys of elements held by the other partitions, built from their meshes alone
	for other, part := range parts {
		if other == rank {
			continue
		}
		otherMG, err := grid.FromMesh(part.Mesh)
		if err != nil {
			panic(err)
		}
		theirs := make(map[types.ElementKey]bool)
		for d := grid.DimVertex; d < grid.NumDims; d++ {
			for i := 0; i < otherMG.Num(d); i++ {
				theirs[globalKeys(part, otherMG, grid.Ref{Dim: d, Index: i})] = true
			}
		}
		t := HSlave
		if rank < other {
			t = HMaster
		}
		for d := grid.DimVertex; d < grid.NumDims; d++ {
			type shared struct {
				key types.ElementKey
				r   grid.Ref
			}
			var list []shared
			for _, i := range dgm.mg.ElementsOnLevel(d, 0) {
				r := grid.Ref{Dim: d, Index: i}
				if key := globalKeys(mine, dgm.mg, r); theirs[key] {
					list = append(list, shared{key, r})
				}
			}
			sort.Slice(list, func(i, j int) bool {
				for k := 0; k < 4; k++ {
					if list[i].key[k] != list[j].key[k] {
						return list[i].key[k] < list[j].key[k]
					}
				}
				return false
			})
			for _, s := range list {
				dgm.AddInterfaceEntry(t, s.r, other)
			}
		}
	}
}

package parallel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/gomg/grid"
)

/*
DistributedGridManager tracks which elements of the local multigrid are copies of elements on other processes. It
observes hierarchical insertion so that children of horizontal interface elements get interfaces of their own.
*/
type DistributedGridManager struct {
	mg       *grid.MultiGrid
	comm     *Communicator
	layouts  *GridLayoutMap
	status   map[grid.Ref]InterfaceType
	peers    map[grid.Ref]map[InterfaceType][]int
	ordered  bool
	newElems []grid.Ref
	logger   *zap.Logger
}

func NewDistributedGridManager(mg *grid.MultiGrid, comm *Communicator, logger *zap.Logger) (dgm *DistributedGridManager) {
	if logger == nil {
		logger = zap.L().Named("distgrid")
	}
	dgm = &DistributedGridManager{
		mg:      mg,
		comm:    comm,
		layouts: NewGridLayoutMap(),
		status:  make(map[grid.Ref]InterfaceType),
		peers:   make(map[grid.Ref]map[InterfaceType][]int),
		logger:  logger.With(zap.Int("rank", comm.Rank())),
	}
	mg.AddObserver(dgm)
	return
}

func (dgm *DistributedGridManager) Grid() *grid.MultiGrid       { return dgm.mg }
func (dgm *DistributedGridManager) Communicator() *Communicator { return dgm.comm }
func (dgm *DistributedGridManager) Layouts() *GridLayoutMap     { return dgm.layouts }

func (dgm *DistributedGridManager) Layout(t InterfaceType, d grid.Dim, level int) *Layout {
	return dgm.layouts.Layout(t, d, level)
}

/*
AddInterfaceEntry appends an element to the interface with proc, both processes have to add in matching order. The
grid revision changes, so DoF distributions built on the layouts are rebuilt.
*/
func (dgm *DistributedGridManager) AddInterfaceEntry(t InterfaceType, r grid.Ref, proc int) {
	dgm.mg.Touch()
	el := dgm.mg.Element(r)
	dgm.layouts.Layout(t, r.Dim, el.Level).Add(proc, r.Index)
	dgm.status[r] |= t
	if dgm.peers[r] == nil {
		dgm.peers[r] = make(map[InterfaceType][]int)
	}
	dgm.peers[r][t] = append(dgm.peers[r][t], proc)
}

func (dgm *DistributedGridManager) Contains(r grid.Ref, t InterfaceType) bool {
	return dgm.status[r]&t != 0
}

func (dgm *DistributedGridManager) IsInHorizontalInterface(r grid.Ref) bool {
	return dgm.status[r]&(HMaster|HSlave) != 0
}

// IsGhost is true for vertical masters outside every horizontal interface, their children live on other processes
func (dgm *DistributedGridManager) IsGhost(r grid.Ref) bool {
	s := dgm.status[r]
	return s&VMaster != 0 && s&(HMaster|HSlave) == 0
}

// AddVerticalCopy links every element of a level to its copy on proc, the copy must have identical numbering
func (dgm *DistributedGridManager) AddVerticalCopy(level, proc int, asMaster bool) {
	t := VSlave
	if asMaster {
		t = VMaster
	}
	for d := grid.DimVertex; d < grid.NumDims; d++ {
		for _, i := range dgm.mg.ElementsOnLevel(d, level) {
			dgm.AddInterfaceEntry(t, grid.Ref{Dim: d, Index: i}, proc)
		}
	}
}

// BeginOrderedInsertion starts recording the elements created by a refinement
func (dgm *DistributedGridManager) BeginOrderedInsertion() {
	if dgm.ordered {
		panic("ordered insertion already started")
	}
	dgm.ordered = true
	dgm.newElems = dgm.newElems[:0]
}

func (dgm *DistributedGridManager) ElementCreated(mg *grid.MultiGrid, r grid.Ref) {
	if dgm.ordered {
		dgm.newElems = append(dgm.newElems, r)
	}
}

func (dgm *DistributedGridManager) HierarchicalInsertionEnded(mg *grid.MultiGrid) {}

/*
EndOrderedInsertion creates the horizontal interfaces of the new children. For every parent interface, in interface
order, the new children of each entry are appended sorted by centroid, so both processes build matching interfaces
without exchanging indices. The global level count is synchronized afterwards.
*/
func (dgm *DistributedGridManager) EndOrderedInsertion(ctx context.Context) (err error) {
	if !dgm.ordered {
		panic("ordered insertion was not started")
	}
	dgm.ordered = false
	var (
		isNew = make(map[grid.Ref]bool, len(dgm.newElems))
	)
	for _, r := range dgm.newElems {
		isNew[r] = true
	}
	dgm.newElems = dgm.newElems[:0]
	type pending struct {
		t    InterfaceType
		proc int
		r    grid.Ref
	}
	var (
		adds     []pending
		maxLevel = dgm.mg.NumLevels()
	)
	for _, t := range []InterfaceType{HMaster, HSlave} {
		for level := 0; level < maxLevel; level++ {
			for d := grid.DimVertex; d < grid.NumDims; d++ {
				layout := dgm.layouts.Layout(t, d, level)
				for _, p := range layout.Procs() {
					for _, idx := range layout.Interface(p) {
						var children []grid.Ref
						for _, c := range dgm.mg.Element(grid.Ref{Dim: d, Index: idx}).Children {
							if isNew[c] {
								children = append(children, c)
							}
						}
						for _, c := range dgm.mg.SortedByCentroid(children) {
							adds = append(adds, pending{t, p, c})
						}
					}
				}
			}
		}
	}
	for _, a := range adds {
		dgm.AddInterfaceEntry(a.t, a.r, a.proc)
	}
	var numLevels int
	if numLevels, err = dgm.comm.AllReduceMax(ctx, dgm.mg.NumLevels()); err != nil {
		return fmt.Errorf("synchronizing level count: %w", err)
	}
	dgm.mg.EnsureLevels(numLevels)
	dgm.logger.Debug("ordered insertion done",
		zap.Int("newInterfaceEntries", len(adds)), zap.Int("levels", numLevels))
	return
}

// Peers lists the processes holding a copy of r in interfaces of type t
func (dgm *DistributedGridManager) Peers(r grid.Ref, t InterfaceType) []int {
	return dgm.peers[r][t]
}

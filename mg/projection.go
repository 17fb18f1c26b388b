package mg

import (
	"fmt"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
)

func checkProjection(levelVecs []*algebra.Vector, levelDDs []*dof.DoFDistribution, surf *algebra.Vector,
	surfDD *dof.DoFDistribution, view *dof.SurfaceView) error {
	switch {
	case surfDD == nil:
		return ErrMissingSurfaceDistribution
	case view == nil:
		return ErrMissingSurfaceView
	case len(levelVecs) != len(levelDDs):
		return fmt.Errorf("%d level vectors for %d level distributions: %w", len(levelVecs), len(levelDDs),
			algebra.ErrDimensionMismatch)
	case surf.Len() != surfDD.NumDoFs():
		return fmt.Errorf("surface vector of length %d for %d DoFs: %w", surf.Len(), surfDD.NumDoFs(),
			algebra.ErrDimensionMismatch)
	}
	return nil
}

// levelIndex finds the level and level DoF of surface DoF i
func levelIndex(i int, levelVecs []*algebra.Vector, levelDDs []*dof.DoFDistribution,
	surfDD *dof.DoFDistribution, view *dof.SurfaceView) (l, j int, err error) {
	v := surfDD.Vertex(i)
	l = view.Level(grid.VertexRef(v))
	if l >= len(levelVecs) || levelVecs[l] == nil || levelDDs[l] == nil {
		return 0, 0, fmt.Errorf("surface DoF %d on level %d: %w", i, l, ErrLevelVectorMissing)
	}
	var ok bool
	if j, ok = levelDDs[l].Index(v); !ok {
		return 0, 0, fmt.Errorf("vertex %d not numbered on level %d: %w", v, l, ErrLevelVectorMissing)
	}
	return
}

/*
ProjectSurfaceToLevel copies every surface DoF into the vector of the level its vertex lives on. All other level
entries are set to zero and the level vectors take the storage type of the surface vector.
*/
func ProjectSurfaceToLevel(levelVecs []*algebra.Vector, levelDDs []*dof.DoFDistribution, surf *algebra.Vector,
	surfDD *dof.DoFDistribution, view *dof.SurfaceView) (err error) {
	if err = checkProjection(levelVecs, levelDDs, surf, surfDD, view); err != nil {
		return
	}
	for _, lv := range levelVecs {
		if lv != nil {
			lv.Set(0)
			lv.SetStorageType(surf.StorageType())
		}
	}
	for i := 0; i < surfDD.NumDoFs(); i++ {
		var l, j int
		if l, j, err = levelIndex(i, levelVecs, levelDDs, surfDD, view); err != nil {
			return
		}
		levelVecs[l].Data[j] = surf.Data[i]
	}
	return
}

// ProjectLevelToSurface gathers the surface DoFs from the level vectors
func ProjectLevelToSurface(surf *algebra.Vector, surfDD *dof.DoFDistribution, view *dof.SurfaceView,
	levelVecs []*algebra.Vector, levelDDs []*dof.DoFDistribution) (err error) {
	if err = checkProjection(levelVecs, levelDDs, surf, surfDD, view); err != nil {
		return
	}
	for i := 0; i < surfDD.NumDoFs(); i++ {
		var l, j int
		if l, j, err = levelIndex(i, levelVecs, levelDDs, surfDD, view); err != nil {
			return
		}
		surf.Data[i] = levelVecs[l].Data[j]
	}
	return
}

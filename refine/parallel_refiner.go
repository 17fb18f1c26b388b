package refine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/parallel"
	"github.com/notargets/gomg/utils"
)

/*
ParallelRefiner refines the local part of a distributed multigrid. Marks are merged over horizontal interfaces until
every process agrees on the closure, ghosts are never refined but receive the constraint types of their vertical
slaves.
*/
type ParallelRefiner struct {
	*Refiner
	dgm *parallel.DistributedGridManager
}

func NewParallelRefiner(dgm *parallel.DistributedGridManager, opts ...Option) (pr *ParallelRefiner) {
	pr = &ParallelRefiner{
		Refiner: NewRefiner(dgm.Grid(), opts...),
		dgm:     dgm,
	}
	pr.allowed = func(r grid.Ref) bool { return !dgm.IsGhost(r) }
	pr.logger = pr.logger.With(zap.Int("rank", dgm.Communicator().Rank()))
	return
}

// Refine is collective, every process has to call it even without marks
func (pr *ParallelRefiner) Refine(ctx context.Context) (err error) {
	defer pr.ClearMarks()
	var (
		comm    = pr.dgm.Communicator()
		changed bool
		more    = true
		rounds  int
	)
	pr.prepare()
	pr.initialSelection()
	for more {
		for pr.closure() {
		}
		if changed, err = pr.exchangeMarks(ctx, markRule); err != nil {
			return fmt.Errorf("exchanging refinement marks: %w", err)
		}
		if more, err = comm.OneProcTrue(ctx, changed); err != nil {
			return
		}
		rounds++
	}
	pr.selectCopyElements()
	if _, err = pr.exchangeMarks(ctx, MarkSelected|MarkCopy); err != nil {
		return fmt.Errorf("exchanging copy marks: %w", err)
	}
	planErr := pr.plan()
	pr.assignConstraintMarks()
	if _, err = pr.exchangeMarks(ctx, markHNodes); err != nil {
		return fmt.Errorf("exchanging hanging node marks: %w", err)
	}
	if err = pr.adjustGhostTypes(ctx); err != nil {
		return fmt.Errorf("adjusting ghost types: %w", err)
	}
	pr.dgm.BeginOrderedInsertion()
	if !pr.sel.empty() {
		pr.create()
	}
	if err = pr.dgm.EndOrderedInsertion(ctx); err != nil {
		return
	}
	pr.logger.Debug("parallel refinement done", zap.Int("closureRounds", rounds),
		zap.Int("levels", pr.mg.NumLevels()))
	return multierr.Append(err, planErr)
}

// markPolicy ors the masked marks of interface entries into the local selection
type markPolicy struct {
	r       *Refiner
	dim     grid.Dim
	mask    Mark
	changed bool
}

func (p *markPolicy) Collect(buf *bytes.Buffer, iface utils.Index) error {
	for _, i := range iface {
		buf.WriteByte(byte(p.r.sel.get(grid.Ref{Dim: p.dim, Index: i}) & p.mask))
	}
	return nil
}

func (p *markPolicy) Extract(buf *bytes.Reader, iface utils.Index) error {
	for _, i := range iface {
		b, err := buf.ReadByte()
		if err != nil {
			return fmt.Errorf("reading mark of %s %d: %w", p.dim, i, err)
		}
		ref := grid.Ref{Dim: p.dim, Index: i}
		if m := Mark(b) & p.mask; m != 0 && !p.r.mg.HasChildren(ref) && p.r.sel.mark(ref, m) {
			p.changed = true
		}
	}
	return nil
}

// exchangeMarks merges marks from horizontal slaves into masters, then copies them back to the slaves
func (pr *ParallelRefiner) exchangeMarks(ctx context.Context, mask Mark) (changed bool, err error) {
	var (
		comm = pr.dgm.Communicator()
		pols [grid.NumDims]*markPolicy
	)
	for d := range pols {
		pols[d] = &markPolicy{r: pr.Refiner, dim: grid.Dim(d), mask: mask}
	}
	for _, dir := range [][2]parallel.InterfaceType{
		{parallel.HSlave, parallel.HMaster},
		{parallel.HMaster, parallel.HSlave},
	} {
		for level := 0; level < pr.mg.NumLevels(); level++ {
			for d := grid.DimVertex; d < grid.NumDims; d++ {
				comm.SendData(pr.dgm.Layout(dir[0], d, level), pols[d])
				comm.ReceiveData(pr.dgm.Layout(dir[1], d, level), pols[d])
			}
		}
		if err = comm.Communicate(ctx); err != nil {
			return
		}
	}
	for _, p := range pols {
		changed = changed || p.changed
	}
	return
}

const (
	tagIgnore byte = iota
	tagToNormal
	tagToConstrained
	tagToConstraining
)

/*
adjustTypePolicy sends the constraint type marks of vertical slaves as (interface index, tag) pairs terminated by -1.
The master side applies them to ghosts only, elements in horizontal interfaces take their type from their own
refinement.
*/
type adjustTypePolicy struct {
	r        *Refiner
	dgm      *parallel.DistributedGridManager
	dim      grid.Dim
	adjusted int
}

func (p *adjustTypePolicy) Collect(buf *bytes.Buffer, iface utils.Index) (err error) {
	for k, i := range iface {
		var (
			m   = p.r.sel.get(grid.Ref{Dim: p.dim, Index: i})
			tag = tagIgnore
		)
		if m&MarkSelected != 0 {
			switch ct, ok := m.ConstraintType(); {
			case !ok:
			case ct == grid.Constraining:
				tag = tagToConstraining
			case ct == grid.Constrained:
				tag = tagToConstrained
			default:
				tag = tagToNormal
			}
		}
		if tag == tagIgnore {
			continue
		}
		if err = binary.Write(buf, binary.LittleEndian, int32(k)); err != nil {
			return
		}
		buf.WriteByte(tag)
	}
	return binary.Write(buf, binary.LittleEndian, int32(-1))
}

func (p *adjustTypePolicy) Extract(buf *bytes.Reader, iface utils.Index) (err error) {
	for {
		var k int32
		if err = binary.Read(buf, binary.LittleEndian, &k); err != nil {
			return
		}
		if k == -1 {
			return
		}
		var tag byte
		if tag, err = buf.ReadByte(); err != nil {
			return
		}
		if int(k) < 0 || int(k) >= len(iface) {
			return fmt.Errorf("interface index %d outside of %d entries: %w", k, len(iface), parallel.ErrProtocol)
		}
		ref := grid.Ref{Dim: p.dim, Index: iface[k]}
		if p.dgm.IsInHorizontalInterface(ref) {
			continue
		}
		var ct grid.ConstraintType
		switch tag {
		case tagToNormal:
			ct = grid.Normal
		case tagToConstrained:
			ct = grid.Constrained
		case tagToConstraining:
			ct = grid.Constraining
		default:
			return fmt.Errorf("unknown constraint tag %d: %w", tag, parallel.ErrProtocol)
		}
		if p.r.mg.Element(ref).Constraint != ct {
			p.r.mg.SetConstraintType(ref, ct)
			p.adjusted++
		}
	}
}

// adjustGhostTypes runs before creation so ghosts match their vertical slaves for the whole pass
func (pr *ParallelRefiner) adjustGhostTypes(ctx context.Context) (err error) {
	var (
		comm = pr.dgm.Communicator()
		pols [grid.NumDims]*adjustTypePolicy
	)
	for d := range pols {
		pols[d] = &adjustTypePolicy{r: pr.Refiner, dgm: pr.dgm, dim: grid.Dim(d)}
	}
	for level := 0; level < pr.mg.NumLevels(); level++ {
		for d := grid.DimVertex; d < grid.NumDims; d++ {
			comm.SendData(pr.dgm.Layout(parallel.VSlave, d, level), pols[d])
			comm.ReceiveData(pr.dgm.Layout(parallel.VMaster, d, level), pols[d])
		}
	}
	if err = comm.Communicate(ctx); err != nil {
		return
	}
	var adjusted int
	for _, p := range pols {
		adjusted += p.adjusted
	}
	if adjusted > 0 {
		pr.logger.Debug("adjusted ghost constraint types", zap.Int("count", adjusted))
	}
	return
}

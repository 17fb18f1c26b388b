package parallel

import (
	"fmt"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/utils"
)

type InterfaceType uint8

const (
	HMaster InterfaceType = 1 << iota
	HSlave
	VMaster
	VSlave
)

func (t InterfaceType) String() string {
	switch t {
	case HMaster:
		return "HMaster"
	case HSlave:
		return "HSlave"
	case VMaster:
		return "VMaster"
	case VSlave:
		return "VSlave"
	}
	return fmt.Sprintf("InterfaceType(%d)", uint8(t))
}

/*
Layout maps a neighbor process to an ordered interface: entry i of the interface on this process and entry i of the
matching interface on the neighbor refer to the same object. Entries are element indices for grid layouts and DoF
indices for algebra layouts.
*/
type Layout struct {
	ifaces map[int]utils.Index
}

func NewLayout() *Layout {
	return &Layout{ifaces: make(map[int]utils.Index)}
}

func (l *Layout) Add(proc int, entry int) {
	l.ifaces[proc] = append(l.ifaces[proc], entry)
}

func (l *Layout) Interface(proc int) utils.Index { return l.ifaces[proc] }

// Procs returns the neighbor processes in ascending order
func (l *Layout) Procs() (procs []int) {
	if l == nil {
		return nil
	}
	var all utils.Index
	for p, iface := range l.ifaces {
		if len(iface) != 0 {
			all = append(all, p)
		}
	}
	return all.Sorted()
}

func (l *Layout) Empty() bool { return len(l.Procs()) == 0 }

func (l *Layout) NumEntries() (n int) {
	if l == nil {
		return
	}
	for _, iface := range l.ifaces {
		n += len(iface)
	}
	return
}

// Map translates every entry, entries mapped to a negative value are dropped
func (l *Layout) Map(f func(entry int) int) (R *Layout) {
	R = NewLayout()
	if l == nil {
		return
	}
	for _, p := range l.Procs() {
		for _, m := range l.ifaces[p].Apply(f).Filter(func(m int) bool { return m >= 0 }) {
			R.Add(p, m)
		}
	}
	return
}

type layoutKey struct {
	Type  InterfaceType
	Dim   grid.Dim
	Level int
}

// GridLayoutMap holds the element layouts of one process, per interface type, dimension and level
type GridLayoutMap struct {
	layouts map[layoutKey]*Layout
}

func NewGridLayoutMap() *GridLayoutMap {
	return &GridLayoutMap{layouts: make(map[layoutKey]*Layout)}
}

// Layout never returns nil, a missing layout is created empty
func (glm *GridLayoutMap) Layout(t InterfaceType, d grid.Dim, level int) *Layout {
	key := layoutKey{t, d, level}
	l, ok := glm.layouts[key]
	if !ok {
		l = NewLayout()
		glm.layouts[key] = l
	}
	return l
}

func (glm *GridLayoutMap) Has(t InterfaceType, d grid.Dim, level int) bool {
	l, ok := glm.layouts[layoutKey{t, d, level}]
	return ok && !l.Empty()
}

package algebra

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gomg/parallel"
)

// StorageType describes how the values of interface DoFs relate to the values on other processes
type StorageType uint8

const (
	// Additive values sum up to the global value over all copies
	Additive StorageType = 1 << iota
	// Consistent values are equal to the global value on every copy
	Consistent
	// Unique values are stored on exactly one copy, all other copies hold zero
	Unique
)

func (st StorageType) String() string {
	if st == 0 {
		return "Undefined"
	}
	var names []string
	for _, n := range []struct {
		t    StorageType
		name string
	}{{Additive, "Additive"}, {Consistent, "Consistent"}, {Unique, "Unique"}} {
		if st&n.t != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// VectorLayouts are the DoF interfaces a vector shares with other processes, nil layouts are empty
type VectorLayouts struct {
	VMaster, VSlave *parallel.Layout
	HMaster, HSlave *parallel.Layout
}

/*
Vector is a dense vector of DoF values. Serial vectors are consistent, distributed vectors carry the layouts of their
DoF distribution and track their storage type.
*/
type Vector struct {
	Data    []float64
	storage StorageType
	layouts VectorLayouts
}

func NewVector(n int) *Vector {
	return &Vector{Data: make([]float64, n), storage: Consistent}
}

func NewVectorFrom(data []float64) *Vector {
	return &Vector{Data: data, storage: Consistent}
}

func (v *Vector) Len() int { return len(v.Data) }

func (v *Vector) Set(val float64) {
	for i := range v.Data {
		v.Data[i] = val
	}
}

// Clone copies values, storage type and layouts
func (v *Vector) Clone() (R *Vector) {
	R = &Vector{
		Data:    make([]float64, len(v.Data)),
		storage: v.storage,
		layouts: v.layouts,
	}
	copy(R.Data, v.Data)
	return
}

func (v *Vector) checkLen(x *Vector, op string) {
	if len(v.Data) != len(x.Data) {
		panic(fmt.Errorf("vector length mismatch in %s: %d and %d", op, len(v.Data), len(x.Data)))
	}
}

// CopyFrom copies the values and the storage type of x
func (v *Vector) CopyFrom(x *Vector) {
	v.checkLen(x, "CopyFrom")
	copy(v.Data, x.Data)
	v.storage = x.storage
}

// Add computes v += x
func (v *Vector) Add(x *Vector) {
	v.checkLen(x, "Add")
	floats.Add(v.Data, x.Data)
}

// Sub computes v -= x
func (v *Vector) Sub(x *Vector) {
	v.checkLen(x, "Sub")
	floats.Sub(v.Data, x.Data)
}

// AddScaled computes v += alpha*x
func (v *Vector) AddScaled(alpha float64, x *Vector) {
	v.checkLen(x, "AddScaled")
	floats.AddScaled(v.Data, alpha, x.Data)
}

func (v *Vector) Scale(alpha float64) { floats.Scale(alpha, v.Data) }

func (v *Vector) Dot(x *Vector) float64 {
	v.checkLen(x, "Dot")
	return floats.Dot(v.Data, x.Data)
}

// Norm is the Euclidean norm of the local values
func (v *Vector) Norm() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	return floats.Norm(v.Data, 2)
}

func (v *Vector) StorageType() StorageType           { return v.storage }
func (v *Vector) SetStorageType(st StorageType)      { v.storage = st }
func (v *Vector) AddStorageType(st StorageType)      { v.storage |= st }
func (v *Vector) RemoveStorageType(st StorageType)   { v.storage &^= st }
func (v *Vector) HasStorageType(st StorageType) bool { return v.storage&st == st }

func (v *Vector) Layouts() VectorLayouts     { return v.layouts }
func (v *Vector) SetLayouts(l VectorLayouts) { v.layouts = l }

// ZeroLayout sets every entry of the layout to zero, a consistent vector becomes unique on these entries
func (v *Vector) ZeroLayout(l *parallel.Layout) {
	for _, p := range l.Procs() {
		for _, i := range l.Interface(p) {
			v.Data[i] = 0
		}
	}
}

package algebra

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/notargets/gomg/parallel"
	"github.com/notargets/gomg/utils"
)

type vecPolicy struct {
	v   *Vector
	add bool
}

// NewVecAddPolicy sends the interface values of v, the receiver adds them to its own entries
func NewVecAddPolicy(v *Vector) parallel.Policy { return &vecPolicy{v: v, add: true} }

// NewVecCopyPolicy sends the interface values of v, the receiver overwrites its own entries
func NewVecCopyPolicy(v *Vector) parallel.Policy { return &vecPolicy{v: v} }

func (p *vecPolicy) Collect(buf *bytes.Buffer, iface utils.Index) error {
	vals := make([]float64, len(iface))
	for k, i := range iface {
		vals[k] = p.v.Data[i]
	}
	return binary.Write(buf, binary.LittleEndian, vals)
}

func (p *vecPolicy) Extract(buf *bytes.Reader, iface utils.Index) (err error) {
	vals := make([]float64, len(iface))
	if err = binary.Read(buf, binary.LittleEndian, vals); err != nil {
		return fmt.Errorf("reading %d interface values: %w", len(iface), err)
	}
	for k, i := range iface {
		if p.add {
			p.v.Data[i] += vals[k]
		} else {
			p.v.Data[i] = vals[k]
		}
	}
	return
}

/*
AdditiveToConsistent sums the horizontal copies of every interface DoF on the master, then copies the sum back to
the slaves.
*/
func AdditiveToConsistent(ctx context.Context, comm *parallel.Communicator, v *Vector) (err error) {
	if !v.HasStorageType(Additive) {
		return fmt.Errorf("vector has storage type %s: %w", v.StorageType(), ErrStorageType)
	}
	l := v.Layouts()
	comm.SendData(l.HSlave, NewVecAddPolicy(v))
	comm.ReceiveData(l.HMaster, NewVecAddPolicy(v))
	if err = comm.Communicate(ctx); err != nil {
		return
	}
	comm.SendData(l.HMaster, NewVecCopyPolicy(v))
	comm.ReceiveData(l.HSlave, NewVecCopyPolicy(v))
	if err = comm.Communicate(ctx); err != nil {
		return
	}
	v.SetStorageType(Consistent)
	return
}

// ConsistentToUnique keeps interface values on horizontal masters only
func ConsistentToUnique(v *Vector) (err error) {
	if !v.HasStorageType(Consistent) {
		return fmt.Errorf("vector has storage type %s: %w", v.StorageType(), ErrStorageType)
	}
	v.ZeroLayout(v.Layouts().HSlave)
	v.SetStorageType(Unique | Additive)
	return
}

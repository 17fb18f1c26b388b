package utils

import (
	"context"
	"fmt"
)

type DynBuffer[T any] struct {
	cells []T
}

func NewDynBuffer[T any](capacity int) *DynBuffer[T] {
	return &DynBuffer[T]{cells: make([]T, 0, capacity)}
}

func (db *DynBuffer[T]) Cells() []T    { return db.cells }
func (db *DynBuffer[T]) Len() int      { return len(db.cells) }
func (db *DynBuffer[T]) Append(v ...T) { db.cells = append(db.cells, v...) }

// Envelope is one delivery from one thread to another, messages keep their posting order
type Envelope[T any] struct {
	From int
	Msgs []T
}

type MailBox[T any] struct {
	NP           int
	MessageChans []chan Envelope[T]      // One for each thread
	PostMsgQs    []map[int]*DynBuffer[T] // One for each thread, key is target thread
	Pending      []map[int][]Envelope[T] // One for each thread, key is sending thread
	MailFlag     []bool                  // MyThread has messages in outbox
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		MessageChans: make([]chan Envelope[T], NP),
		PostMsgQs:    make([]map[int]*DynBuffer[T], NP),
		Pending:      make([]map[int][]Envelope[T], NP),
		MailFlag:     make([]bool, NP),
	}
	for n := 0; n < NP; n++ {
		// Several rounds may be in flight before a receiver drains its channel
		mb.MessageChans[n] = make(chan Envelope[T], 64*NP)
		mb.PostMsgQs[n] = make(map[int]*DynBuffer[T])
		mb.Pending[n] = make(map[int][]Envelope[T])
	}
	return mb
}

func (mb *MailBox[T]) checkThread(thread int) {
	if thread < 0 || thread > mb.NP-1 {
		panic(fmt.Sprintf("Target thread %d out of bounds", thread))
	}
}

func (mb *MailBox[T]) PostMessage(myThread, targetThread int, msg ...T) {
	var (
		exists bool
		tgt    *DynBuffer[T]
	)
	mb.checkThread(targetThread)
	if tgt, exists = mb.PostMsgQs[myThread][targetThread]; !exists {
		tgt = NewDynBuffer[T](len(msg))
		mb.PostMsgQs[myThread][targetThread] = tgt
	}
	tgt.Append(msg...)
	mb.MailFlag[myThread] = true
}

func (mb *MailBox[T]) PostMessageToAll(myThread int, msg T) {
	for k := 0; k < mb.NP; k++ {
		if k != myThread {
			mb.PostMessage(myThread, k, msg)
		}
	}
}

// DeliverMyMessages sends one envelope per target that had messages posted, an envelope is sent even when the
// posted buffer is empty so that the receiver's expected message count is always met
func (mb *MailBox[T]) DeliverMyMessages(myThread int) {
	if !mb.MailFlag[myThread] {
		return
	}
	for targetThread, msgBuffer := range mb.PostMsgQs[myThread] {
		msgs := make([]T, msgBuffer.Len())
		copy(msgs, msgBuffer.Cells())
		mb.MessageChans[targetThread] <- Envelope[T]{From: myThread, Msgs: msgs}
	}
	mb.PostMsgQs[myThread] = make(map[int]*DynBuffer[T])
	mb.MailFlag[myThread] = false
}

// AwaitMessages blocks until an envelope from the sending thread arrives, envelopes from other senders that arrive
// in the meantime are kept in arrival order for later calls
func (mb *MailBox[T]) AwaitMessages(ctx context.Context, myThread, fromThread int) (msgs []T, err error) {
	mb.checkThread(fromThread)
	pending := mb.Pending[myThread]
	for {
		if q := pending[fromThread]; len(q) > 0 {
			msgs = q[0].Msgs
			pending[fromThread] = q[1:]
			return
		}
		select {
		case env := <-mb.MessageChans[myThread]:
			pending[env.From] = append(pending[env.From], env)
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into c.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

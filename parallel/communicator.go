package parallel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gomg/utils"
)

var (
	ErrAborted  = errors.New("parallel: communication aborted")
	ErrProtocol = errors.New("parallel: message count mismatch")
)

/*
Policy fills and reads the buffer exchanged over one interface. Collect runs on the sending process, Extract runs
on the receiving process with the bytes produced by the matching Collect.
*/
type Policy interface {
	Collect(buf *bytes.Buffer, iface utils.Index) error
	Extract(buf *bytes.Reader, iface utils.Index) error
}

type scheduled struct {
	proc  int
	iface utils.Index
	pol   Policy
}

/*
Communicator follows a schedule-then-flush contract: SendData and ReceiveData only record what has to be exchanged,
Communicate collects all send buffers, delivers them, then blocks until every scheduled receive is satisfied.
*/
type Communicator struct {
	rank, np int
	mb       *utils.MailBox[[]byte]
	sends    []scheduled
	recvs    []scheduled
	logger   *zap.Logger
}

func (c *Communicator) Rank() int     { return c.rank }
func (c *Communicator) NumProcs() int { return c.np }

// SendData schedules one message per neighbor process of the layout
func (c *Communicator) SendData(layout *Layout, pol Policy) {
	for _, p := range layout.Procs() {
		c.sends = append(c.sends, scheduled{proc: p, iface: layout.Interface(p), pol: pol})
	}
}

// ReceiveData schedules one receive per neighbor process of the layout
func (c *Communicator) ReceiveData(layout *Layout, pol Policy) {
	for _, p := range layout.Procs() {
		c.recvs = append(c.recvs, scheduled{proc: p, iface: layout.Interface(p), pol: pol})
	}
}

func (c *Communicator) Communicate(ctx context.Context) (err error) {
	var (
		sends, recvs = c.sends, c.recvs
	)
	c.sends, c.recvs = nil, nil
	for _, s := range sends {
		var buf bytes.Buffer
		if err = s.pol.Collect(&buf, s.iface); err != nil {
			return fmt.Errorf("rank %d collecting for rank %d: %w", c.rank, s.proc, err)
		}
		c.mb.PostMessage(c.rank, s.proc, buf.Bytes())
	}
	c.mb.DeliverMyMessages(c.rank)
	// One envelope arrives per sending process, its messages match the receives in scheduling order
	var (
		inbox = make(map[int][][]byte)
	)
	for _, r := range recvs {
		if _, ok := inbox[r.proc]; !ok {
			var msgs [][]byte
			if msgs, err = c.mb.AwaitMessages(ctx, c.rank, r.proc); err != nil {
				return fmt.Errorf("rank %d waiting for rank %d: %w: %w", c.rank, r.proc, ErrAborted, err)
			}
			inbox[r.proc] = msgs
		}
		if len(inbox[r.proc]) == 0 {
			return fmt.Errorf("rank %d expected more messages from rank %d: %w", c.rank, r.proc, ErrProtocol)
		}
		msg := inbox[r.proc][0]
		inbox[r.proc] = inbox[r.proc][1:]
		if err = r.pol.Extract(bytes.NewReader(msg), r.iface); err != nil {
			return fmt.Errorf("rank %d extracting from rank %d: %w", c.rank, r.proc, err)
		}
	}
	for p, rest := range inbox {
		if len(rest) != 0 {
			return fmt.Errorf("rank %d received %d unexpected messages from rank %d: %w",
				c.rank, len(rest), p, ErrProtocol)
		}
	}
	return
}

func (c *Communicator) allGather(ctx context.Context, val uint64) (vals []uint64, err error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	vals = make([]uint64, c.np)
	vals[c.rank] = val
	c.mb.PostMessageToAll(c.rank, buf)
	c.mb.DeliverMyMessages(c.rank)
	for p := 0; p < c.np; p++ {
		if p == c.rank {
			continue
		}
		var msgs [][]byte
		if msgs, err = c.mb.AwaitMessages(ctx, c.rank, p); err != nil {
			return nil, fmt.Errorf("rank %d in collective with rank %d: %w: %w", c.rank, p, ErrAborted, err)
		}
		if len(msgs) != 1 || len(msgs[0]) != 8 {
			return nil, fmt.Errorf("rank %d in collective with rank %d: %w", c.rank, p, ErrProtocol)
		}
		vals[p] = binary.LittleEndian.Uint64(msgs[0])
	}
	return
}

// AllReduceOr is true on every process if it is true on any process
func (c *Communicator) AllReduceOr(ctx context.Context, b bool) (res bool, err error) {
	var (
		val  uint64
		vals []uint64
	)
	if b {
		val = 1
	}
	if vals, err = c.allGather(ctx, val); err != nil {
		return
	}
	for _, v := range vals {
		res = res || v != 0
	}
	return
}

// OneProcTrue is the collective OR used to decide whether another closure round is needed
func (c *Communicator) OneProcTrue(ctx context.Context, b bool) (bool, error) {
	return c.AllReduceOr(ctx, b)
}

func (c *Communicator) AllReduceMax(ctx context.Context, n int) (res int, err error) {
	if n < 0 {
		return 0, fmt.Errorf("AllReduceMax only handles non negative values, have %d", n)
	}
	var vals []uint64
	if vals, err = c.allGather(ctx, uint64(n)); err != nil {
		return
	}
	for _, v := range vals {
		if int(v) > res {
			res = int(v)
		}
	}
	return
}

// AllReduceSum adds up non negative counts of every process
func (c *Communicator) AllReduceSum(ctx context.Context, n int) (res int, err error) {
	if n < 0 {
		return 0, fmt.Errorf("AllReduceSum only handles non negative values, have %d", n)
	}
	var vals []uint64
	if vals, err = c.allGather(ctx, uint64(n)); err != nil {
		return
	}
	for _, v := range vals {
		res += int(v)
	}
	return
}

func (c *Communicator) Barrier(ctx context.Context) (err error) {
	_, err = c.allGather(ctx, 0)
	return
}

/*
World runs NP processes as goroutines that only share the mailbox transport. Each process is single threaded and
receives its own Communicator.
*/
type World struct {
	NP     int
	mb     *utils.MailBox[[]byte]
	logger *zap.Logger
}

func NewWorld(np int, logger *zap.Logger) *World {
	if np < 1 {
		panic(fmt.Errorf("a world needs at least one process, have %d", np))
	}
	if logger == nil {
		logger = zap.L().Named("parallel")
	}
	return &World{NP: np, mb: utils.NewMailBox[[]byte](np), logger: logger}
}

// Communicator returns the communicator of one rank, for single process use outside of Run
func (w *World) Communicator(rank int) *Communicator {
	return &Communicator{
		rank:   rank,
		np:     w.NP,
		mb:     w.mb,
		logger: w.logger.With(zap.Int("rank", rank)),
	}
}

// Run starts every rank and waits for all of them, the first error cancels the context seen by the others
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, comm *Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.NP; rank++ {
		comm := w.Communicator(rank)
		g.Go(func() error {
			if err := fn(gctx, comm); err != nil {
				comm.logger.Error("rank failed", zap.Error(err))
				return fmt.Errorf("rank %d: %w", comm.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

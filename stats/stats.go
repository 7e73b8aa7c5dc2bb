// Package stats implements the driver's per-CPU counter model: one set of
// counters per CPU shard, updated lock-free from the data path, summed only
// when a reader asks for the aggregate.
package stats

import (
	"runtime"
	"sync/atomic"
)

// Shard holds one CPU's contribution to the device's Tx/Rx counters. Each
// field is updated with a plain atomic add from whichever CPU is currently
// running the enqueue or poll path; there is no cross-shard coordination on
// the write side.
type Shard struct {
	_ [0]int64 // guards against accidental copy-by-value losing alignment

	TxPackets uint64
	TxBytes   uint64
	TxDropped uint64
	TxErrors  uint64

	RxPackets uint64
	RxBytes   uint64
	RxDropped uint64
	RxErrors  uint64

	XDPPass       uint64
	XDPDrop       uint64
	XDPTx         uint64
	XDPTxErr      uint64
	XDPRedirect   uint64
	BulkXmit      uint64
	BulkXmitErr   uint64
}

// Counters is a sharded counter set, one Shard per CPU, fanned in on read.
type Counters struct {
	shards []Shard
}

// New allocates a Counters set sized to the host's CPU count.
func New() *Counters {
	return &Counters{shards: make([]Shard, runtime.GOMAXPROCS(0))}
}

// Shard returns the counter shard for cpu, used by the data path to avoid
// any lookup beyond indexing into the slice it already has.
func (c *Counters) Shard(cpu int) *Shard {
	return &c.shards[cpu%len(c.shards)]
}

// AddTx records one transmitted frame of n bytes on the given shard.
func (c *Counters) AddTx(cpu int, n int) {
	s := c.Shard(cpu)
	atomic.AddUint64(&s.TxPackets, 1)
	atomic.AddUint64(&s.TxBytes, uint64(n))
}

// AddTxDropped records a dropped-on-transmit frame (DMA map failure).
func (c *Counters) AddTxDropped(cpu int) {
	s := c.Shard(cpu)
	atomic.AddUint64(&s.TxDropped, 1)
	atomic.AddUint64(&s.TxErrors, 1)
}

// AddRx records one received frame of n bytes on the given shard.
func (c *Counters) AddRx(cpu int, n int) {
	s := c.Shard(cpu)
	atomic.AddUint64(&s.RxPackets, 1)
	atomic.AddUint64(&s.RxBytes, uint64(n))
}

// AddXDP increments the hook counter matching a dispatched verdict.
func (c *Counters) AddXDP(cpu int, field *uint64) {
	atomic.AddUint64(field, 1)
}

// Totals is the fanned-in sum of every shard, read by the ethtool-like
// counters surface.
type Totals struct {
	TxPackets, TxBytes, TxDropped, TxErrors uint64
	RxPackets, RxBytes, RxDropped, RxErrors uint64
	XDPPass, XDPDrop, XDPTx, XDPTxErr, XDPRedirect uint64
	BulkXmit, BulkXmitErr uint64
}

// Sum aggregates every shard's counters into a single snapshot. Callers
// should not expect a perfectly consistent point-in-time view across
// fields: each field is summed independently while the data path keeps
// running, the same tradeoff per-CPU counters always make in exchange for
// uncontended writes.
func (c *Counters) Sum() Totals {
	var t Totals

	for i := range c.shards {
		s := &c.shards[i]
		t.TxPackets += atomic.LoadUint64(&s.TxPackets)
		t.TxBytes += atomic.LoadUint64(&s.TxBytes)
		t.TxDropped += atomic.LoadUint64(&s.TxDropped)
		t.TxErrors += atomic.LoadUint64(&s.TxErrors)
		t.RxPackets += atomic.LoadUint64(&s.RxPackets)
		t.RxBytes += atomic.LoadUint64(&s.RxBytes)
		t.RxDropped += atomic.LoadUint64(&s.RxDropped)
		t.RxErrors += atomic.LoadUint64(&s.RxErrors)
		t.XDPPass += atomic.LoadUint64(&s.XDPPass)
		t.XDPDrop += atomic.LoadUint64(&s.XDPDrop)
		t.XDPTx += atomic.LoadUint64(&s.XDPTx)
		t.XDPTxErr += atomic.LoadUint64(&s.XDPTxErr)
		t.XDPRedirect += atomic.LoadUint64(&s.XDPRedirect)
		t.BulkXmit += atomic.LoadUint64(&s.BulkXmit)
		t.BulkXmitErr += atomic.LoadUint64(&s.BulkXmitErr)
	}

	return t
}

// Package txrx implements the transmit enqueue/reclaim pipeline and the
// receive NAPI-style poll loop: the two data-plane operations that move
// frames between the host network stack and the device's descriptor rings.
package txrx

import (
	"sync/atomic"
	"time"

	"github.com/open-nic/onic-driver/dma"
	"github.com/open-nic/onic-driver/qdma"
	"github.com/open-nic/onic-driver/stats"
)

// MinEthernetFrame is the minimum frame length the device will accept;
// shorter frames are zero-padded before enqueue.
const MinEthernetFrame = 60

// BufferTag discriminates a Tx buffer record's ownership, replacing the
// 1-bit-tag union the source driver used. Every record carries the same
// fields whatever its tag; reclaim unmaps any mapped record and releases
// its frame through FrameHandle.
type BufferTag int

const (
	// TagStack is a frame handed down from the host network stack.
	TagStack BufferTag = iota
	// TagLocal is a frame produced by the hook program's TX verdict,
	// still backed by a page pool page the cleanup path returns.
	TagLocal
	// TagExternal is a frame handed in by xmit_external/TransmitBulk; it
	// was DMA-mapped on our behalf and must be unmapped before the
	// frame is returned.
	TagExternal
)

// FrameHandle is the caller-owned object a Tx buffer record refers to.
// Release is called exactly once, by reclaim, according to the record's
// tag.
type FrameHandle interface {
	// Release returns the frame to its owner (stack deallocation, page
	// pool recycle, etc).
	Release()
}

// txBufferRecord is one in-flight Tx descriptor's bookkeeping.
type txBufferRecord struct {
	tag       BufferTag
	frame     FrameHandle
	dmaAddr   uint64
	dmaLen    int
	mapped    bool
	timestamp time.Time
}

// Doorbell is the per-queue H2C PIDX doorbell: {pidx:16, irq_arm:1}.
type Doorbell interface {
	WriteH2CDoorbell(qid int, pidx uint16, irqArm bool)
}

// Fencer inserts the write fence required between descriptor payload
// writes and the doorbell write that hands them to the device.
type Fencer interface {
	Fence()
}

// WriteBackReader reads a ring's write-back consumer index, the value the
// device last reported it has consumed up to.
type WriteBackReader interface {
	ReadCIDX() uint16
}

// Unmapper releases a previously DMA-mapped buffer.
type Unmapper interface {
	Unmap(addr uint64, length int)
}

// Result is the outcome of an Enqueue call.
type Result int

const (
	// OK means the frame was consumed (written to a descriptor, or
	// dropped and counted — either way the caller must not retry it).
	OK Result = iota
	// Busy means the ring is full; the caller (stack) retries later.
	Busy
)

// TxQueue is one host-to-card streaming queue.
type TxQueue struct {
	qid      int
	ring     *qdma.Ring
	region   *dma.Region
	doorbell Doorbell
	fence    Fencer
	wb       WriteBackReader
	unmap    Unmapper
	counters *stats.Counters

	records []txBufferRecord

	// cleanerActive is the single-bit "cleaner active" lock: a
	// try-acquire guard that never blocks. 0 = free, 1 = held.
	cleanerActive uint32
}

// NewTxQueue constructs a Tx queue over an already-initialized ring. wb
// reads the ring's write-back status; unmap releases DMA mappings reclaim
// tears down.
func NewTxQueue(qid int, ring *qdma.Ring, region *dma.Region, doorbell Doorbell, fence Fencer, wb WriteBackReader, unmap Unmapper, counters *stats.Counters) *TxQueue {
	return &TxQueue{
		qid:      qid,
		ring:     ring,
		region:   region,
		doorbell: doorbell,
		fence:    fence,
		wb:       wb,
		unmap:    unmap,
		counters: counters,
		records:  make([]txBufferRecord, ring.RealCount()),
	}
}

// mapper abstracts DMA mapping of a caller-owned buffer into a bus address
// the device can read from, so tests can simulate mapping failure.
type mapper interface {
	MapToDevice(payload []byte) (addr uint64, ok bool)
}

// Enqueue posts one frame for transmission. moreComing is the stack's batch
// hint: when false (or the ring fills), the doorbell is written
// immediately; otherwise it is deferred to coalesce with the next send.
func (q *TxQueue) Enqueue(cpu int, payload []byte, tag BufferTag, frame FrameHandle, m mapper, moreComing bool) Result {
	q.Reclaim()

	if q.ring.IsFull() {
		return Busy
	}

	if len(payload) < MinEthernetFrame {
		padded := make([]byte, MinEthernetFrame)
		copy(padded, payload)
		payload = padded
	}

	addr, ok := m.MapToDevice(payload)
	if !ok {
		q.counters.AddTxDropped(cpu)
		return OK
	}

	idx := q.ring.NextToUse()

	desc := qdma.H2CDescriptor{
		Metadata: uint32(len(payload)),
		Length:   uint16(len(payload)),
		SrcAddr:  addr,
	}
	desc.Marshal(q.ring.Slot(idx))

	q.records[idx] = txBufferRecord{
		tag:       tag,
		frame:     frame,
		dmaAddr:   addr,
		dmaLen:    len(payload),
		mapped:    true,
		timestamp: time.Now(),
	}

	q.ring.AdvanceHead()
	q.counters.AddTx(cpu, len(payload))

	if q.ring.IsFull() || !moreComing {
		q.fence.Fence()
		q.doorbell.WriteH2CDoorbell(q.qid, uint16(q.ring.NextToUse()), false)
	}

	return OK
}

// Reclaim drains completed descriptors reported by the ring's write-back
// status. It is single-writer: a concurrent call while one is already
// running returns immediately without making progress, via a try-acquire
// "cleaner active" guard.
func (q *TxQueue) Reclaim() {
	if !atomic.CompareAndSwapUint32(&q.cleanerActive, 0, 1) {
		return
	}
	defer atomic.StoreUint32(&q.cleanerActive, 0)

	q.drainTo(uint32(q.wb.ReadCIDX()))
}

func (q *TxQueue) drainTo(wbCIDX uint32) {
	real := q.ring.RealCount()
	ntc := q.ring.NextToClean()
	work := (wbCIDX - ntc + real) % real

	for i := uint32(0); i < work; i++ {
		idx := (ntc + i) % real
		rec := &q.records[idx]

		if rec.mapped && q.unmap != nil {
			q.unmap.Unmap(rec.dmaAddr, rec.dmaLen)
		}

		if rec.frame != nil {
			rec.frame.Release()
		}

		*rec = txBufferRecord{}
	}

	q.ring.SetNextToClean(wbCIDX)
}

// InFlight is the number of descriptors posted but not yet reclaimed.
func (q *TxQueue) InFlight() uint32 {
	return q.ring.InFlight()
}

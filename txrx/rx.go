package txrx

import (
	"github.com/open-nic/onic-driver/hook"
	"github.com/open-nic/onic-driver/pagepool"
	"github.com/open-nic/onic-driver/qdma"
	"github.com/open-nic/onic-driver/stats"
)

// RxDescStep is the batch size the refill path advances the descriptor
// ring's producer index by once free descriptors drop below half this
// value.
const RxDescStep = 256

// CompletionTrailerReader reads a completion ring's trailer (producer
// index and color), the values the poll loop compares cmpl_ring's
// next_to_clean against to find the end of a batch.
type CompletionTrailerReader interface {
	ReadTrailer() qdma.CompletionTrailer
}

// RxDoorbell is the per-queue C2H descriptor doorbell plus the completion
// CIDX doorbell the poll loop re-arms with on exit.
type RxDoorbell interface {
	WriteC2HDoorbell(qid int, pidx uint16)
	WriteCompletionDoorbell(qid int, cidx uint16, irqArm bool)
}

// ErrorClearer clears the device's global error interrupt, called when a
// completion entry's error bit is observed.
type ErrorClearer interface {
	ClearGlobalError()
}

// StackHandoff is the host network stack entry point a PASS-verdict frame
// is handed to.
type StackHandoff interface {
	Receive(rxQueue int, payload []byte)
}

// RxQueue is one card-to-host streaming queue paired with its completion
// ring.
type RxQueue struct {
	qid      int
	index    int
	descRing *qdma.Ring
	cmplRing *qdma.Ring
	pool     *pagepool.Pool
	program  *hook.Handle
	trailer  CompletionTrailerReader
	doorbell RxDoorbell
	errClear ErrorClearer
	stack    StackHandoff
	counters *stats.Counters

	// pages[i] is the page currently posted in descRing slot i.
	pages []*pagepool.Page
}

// NewRxQueue constructs an Rx queue over already-initialized rings and a
// page pool sized to descRing.RealCount().
func NewRxQueue(qid, index int, descRing, cmplRing *qdma.Ring, pool *pagepool.Pool, program *hook.Handle,
	trailer CompletionTrailerReader, doorbell RxDoorbell, errClear ErrorClearer, stack StackHandoff, counters *stats.Counters) *RxQueue {

	return &RxQueue{
		qid:      qid,
		index:    index,
		descRing: descRing,
		cmplRing: cmplRing,
		pool:     pool,
		program:  program,
		trailer:  trailer,
		doorbell: doorbell,
		errClear: errClear,
		stack:    stack,
		counters: counters,
		pages:    make([]*pagepool.Page, descRing.RealCount()),
	}
}

// PollResult summarizes one Poll call for tests and callers that need to
// know whether the batch drained (NAPI complete) or budget was exhausted.
type PollResult struct {
	Processed int
	Completed bool // true if the batch fully drained within budget
}

// Poll drains up to budget completions, dispatching each through the hook
// program and refilling the descriptor ring as it goes. txQueues are
// pre-reclaimed first, piggybacking Tx completion handling on the Rx poll.
func (q *RxQueue) Poll(cpu int, budget int, txQueues []*TxQueue, ctx *hook.Context) PollResult {
	for _, tq := range txQueues {
		tq.Reclaim()
	}

	processed := 0
	exhausted := false
	prog := q.program.Load()

	for processed < budget {
		trailer := q.trailer.ReadTrailer()

		if q.cmplRing.NextToClean() == uint32(trailer.PIDX) {
			break
		}

		entryBuf := q.cmplRing.Slot(q.cmplRing.NextToClean())
		entry := qdma.UnmarshalCompletionEntry(entryBuf)

		if entry.Err {
			q.errClear.ClearGlobalError()
		}

		idx := q.descRing.NextToClean()
		page := q.pages[idx]

		verdict := hook.Pass
		if prog != nil {
			f := &hook.Frame{
				Data:   page.Bytes(),
				Offset: q.pool.Headroom(),
				Len:    int(entry.Length),
				RxQueue: hook.RxQInfo{QueueIndex: q.index},
			}
			verdict = prog.Run(ctx, f)
		}

		q.dispatch(cpu, verdict, page, int(entry.Length), ctx)

		fresh, err := q.pool.Get()
		if err == nil {
			q.pages[idx] = fresh
			desc := qdma.C2HDescriptor{DstAddr: fresh.Addr() + uint64(q.pool.Headroom())}
			desc.Marshal(q.descRing.Slot(idx))
		}

		q.descRing.AdvanceTail()
		q.cmplRing.AdvanceTail()

		if q.unusedDescriptors() < RxDescStep/2 {
			q.descRing.AdvanceHeadBy(RxDescStep)
			q.doorbell.WriteC2HDoorbell(q.qid, uint16(q.descRing.NextToUse()))
		}

		processed++

		// Page pool exhausted: end the batch here and treat the poll as
		// complete; refill resumes on a later poll.
		if err != nil {
			exhausted = true
			break
		}
	}

	completed := true
	trailer := q.trailer.ReadTrailer()
	if !exhausted && q.cmplRing.NextToClean() != uint32(trailer.PIDX) {
		completed = false
	}

	if completed {
		q.doorbell.WriteCompletionDoorbell(q.qid, uint16(q.cmplRing.NextToClean()), true)
	}

	return PollResult{Processed: processed, Completed: completed}
}

// unusedDescriptors is the number of descriptor slots not currently posted
// to the device, the quantity the refill-batch threshold watches.
func (q *RxQueue) unusedDescriptors() uint32 {
	return q.descRing.RealCount() - q.descRing.InFlight()
}

func (q *RxQueue) dispatch(cpu int, v hook.Verdict, page *pagepool.Page, length int, ctx *hook.Context) {
	switch v {
	case hook.Pass:
		q.counters.AddRx(cpu, length)
		if q.stack != nil {
			data := make([]byte, length)
			copy(data, page.Data(length))
			q.stack.Receive(q.index, data)
		}
		q.pool.Put(page)

	case hook.TX:
		shard := q.counters.Shard(cpu)
		if ctx != nil && ctx.Transmit != nil {
			f := &hook.Frame{Data: page.Bytes(), Offset: q.pool.Headroom(), Len: length}
			if err := ctx.Transmit.TransmitBulk(cpu, []*hook.Frame{f}, true); err != nil {
				q.counters.AddXDP(cpu, &shard.XDPTxErr)
			} else {
				q.counters.AddXDP(cpu, &shard.XDPTx)
			}
		} else {
			q.counters.AddXDP(cpu, &shard.XDPTxErr)
		}
		q.pool.Put(page)

	case hook.Redirect:
		shard := q.counters.Shard(cpu)
		q.counters.AddXDP(cpu, &shard.XDPRedirect)
		if ctx != nil && ctx.Redirector != nil {
			f := &hook.Frame{Data: page.Bytes(), Offset: q.pool.Headroom(), Len: length}
			if err := ctx.Redirector.Redirect(f); err != nil {
				q.counters.AddXDP(cpu, &shard.XDPTxErr)
			}
		}
		q.pool.Put(page)

	default: // Drop, Aborted, or anything else
		shard := q.counters.Shard(cpu)
		q.counters.AddXDP(cpu, &shard.XDPDrop)
		q.counters.AddRx(cpu, length)
		q.pool.Put(page)
	}
}

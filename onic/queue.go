package onic

import (
	"fmt"

	"github.com/open-nic/onic-driver/hook"
	"github.com/open-nic/onic-driver/intx"
	"github.com/open-nic/onic-driver/pagepool"
	"github.com/open-nic/onic-driver/qdma"
	"github.com/open-nic/onic-driver/txrx"
)

// installFunctionMap installs this function's queue-id partition once, at
// Open. It is idempotent: a second call while already installed is a no-op.
func (d *Device) installFunctionMap() error {
	if d.fmapInstalled {
		return nil
	}

	fmap := qdma.FunctionMapContext{QBase: d.cfg.QBase, QMax: d.cfg.QMax}
	if err := d.programmer.Write(qdma.SelFMAP, uint16(d.cfg.FuncID), fmap.Pack()); err != nil {
		return err
	}

	d.fmapInstalled = true
	return nil
}

// teardownFunctionMap invalidates the function-map context installed by
// installFunctionMap. Idempotent.
func (d *Device) teardownFunctionMap() {
	if !d.fmapInstalled {
		return
	}

	d.programmer.Invalidate(qdma.SelFMAP, uint16(d.cfg.FuncID))
	d.fmapInstalled = false
}

// initTxQueue allocates one Tx queue's ring (with write-back), installs the
// software/hardware/credit contexts, and constructs the pipeline object.
func (d *Device) initTxQueue(index int) error {
	qid := d.deviceQID(index)

	count := qdma.RingSizes[d.cfg.TxRingSizeIdx]
	need := int(count) * qdma.H2CDescriptorSize
	dmaAddr, buf := d.region.Reserve(need, pageAlign)

	ring, err := qdma.NewRing(d.cfg.TxRingSizeIdx, qdma.H2CDescriptorSize, dmaAddr, buf, true)
	if err != nil {
		d.region.Release(dmaAddr)
		return err
	}

	sw := qdma.SWContext{
		FuncID:    d.cfg.FuncID,
		QEn:       true,
		WBEn:      true,
		RingSzIdx: uint8(d.cfg.TxRingSizeIdx),
		DescBase:  dmaAddr,
		Vector:    d.vectorForQueue(index),
	}
	if err := d.programmer.Write(qdma.SelSWH2C, qid, sw.Pack()); err != nil {
		d.region.Release(dmaAddr)
		return fmt.Errorf("sw context: %w", err)
	}

	// Hardware and credit contexts are engine-owned and carry no driver
	// payload to write; clearing them here resets any state a previous
	// occupant of this queue ID left behind.
	if err := d.programmer.Clear(qdma.SelHWH2C, qid); err != nil {
		d.region.Release(dmaAddr)
		return fmt.Errorf("hw context: %w", err)
	}
	if err := d.programmer.Clear(qdma.SelCRH2C, qid); err != nil {
		d.region.Release(dmaAddr)
		return fmt.Errorf("credit context: %w", err)
	}

	wbSlot := ring.Slot(ring.RealCount())

	d.txRings[index] = ring
	d.regs[index] = queueRegisters{
		doorbells: &doorbells{win: d.bar0},
		errClear:  &globalErrorClearer{win: d.bar0},
	}

	d.txQueues[index] = txrx.NewTxQueue(
		int(qid), ring, d.region,
		d.regs[index].doorbells, fencer{},
		&txWriteBack{slot: wbSlot},
		&regionUnmapper{region: d.region},
		d.counters,
	)

	return nil
}

// teardownTxQueue tears down one Tx queue in reverse order: clear
// its contexts, destroy the ring, and free its DMA memory.
func (d *Device) teardownTxQueue(index int) {
	if d.txQueues[index] == nil {
		return
	}

	qid := d.deviceQID(index)
	d.programmer.Clear(qdma.SelSWH2C, qid)
	d.programmer.Clear(qdma.SelHWH2C, qid)
	d.programmer.Clear(qdma.SelCRH2C, qid)

	ring := d.txRings[index]
	dmaAddr := ring.DMAAddr()
	ring.Destroy()
	d.region.Release(dmaAddr)

	d.txRings[index] = nil
	d.txQueues[index] = nil
}

// initRxQueue allocates one Rx queue's descriptor and completion rings, the
// page pool, installs SW/HW/CR/PFCH/CMPL contexts, and seeds the device with
// the initial producer/consumer indices.
func (d *Device) initRxQueue(index int) error {
	qid := d.deviceQID(index)

	descCount := qdma.RingSizes[d.cfg.RxDescRingSizeIdx]
	descNeed := int(descCount) * qdma.C2HDescriptorSize
	descAddr, descBuf := d.region.Reserve(descNeed, pageAlign)

	descRing, err := qdma.NewRing(d.cfg.RxDescRingSizeIdx, qdma.C2HDescriptorSize, descAddr, descBuf, true)
	if err != nil {
		d.region.Release(descAddr)
		return err
	}

	cmplCount := qdma.RingSizes[d.cfg.RxCmplRingSizeIdx]
	cmplNeed := int(cmplCount) * qdma.CompletionEntrySize
	cmplAddr, cmplBuf := d.region.Reserve(cmplNeed, pageAlign)

	cmplRing, err := qdma.NewRing(d.cfg.RxCmplRingSizeIdx, qdma.CompletionEntrySize, cmplAddr, cmplBuf, true)
	if err != nil {
		d.region.Release(descAddr)
		d.region.Release(cmplAddr)
		return err
	}

	hookLoaded := !hook.IsNoop(d.program.Load())
	direction := pagepool.FromDevice
	if hookLoaded {
		direction = pagepool.Bidirectional
	}

	pool := pagepool.New(d.region, int(descRing.RealCount()), d.cfg.PageSize, d.cfg.Headroom, direction)
	d.rxPools[index] = pool

	for i := uint32(0); i < descRing.RealCount(); i++ {
		pg, err := pool.Get()
		if err != nil {
			d.region.Release(descAddr)
			d.region.Release(cmplAddr)
			return fmt.Errorf("seed page %d: %w", i, err)
		}
		desc := qdma.C2HDescriptor{DstAddr: pg.Addr() + uint64(d.cfg.Headroom)}
		desc.Marshal(descRing.Slot(i))
	}

	sw := qdma.SWContext{
		FuncID:    d.cfg.FuncID,
		QEn:       true,
		WBEn:      true,
		RingSzIdx: uint8(d.cfg.RxDescRingSizeIdx),
		DescBase:  descAddr,
		Vector:    d.vectorForQueue(index),
	}
	if err := d.programmer.Write(qdma.SelSWC2H, qid, sw.Pack()); err != nil {
		d.region.Release(descAddr)
		d.region.Release(cmplAddr)
		return fmt.Errorf("sw context: %w", err)
	}

	// Hardware and credit contexts are engine-owned and carry no driver
	// payload to write; clearing them here resets any state a previous
	// occupant of this queue ID left behind.
	if err := d.programmer.Clear(qdma.SelHWC2H, qid); err != nil {
		d.region.Release(descAddr)
		d.region.Release(cmplAddr)
		return fmt.Errorf("hw context: %w", err)
	}
	if err := d.programmer.Clear(qdma.SelCRC2H, qid); err != nil {
		d.region.Release(descAddr)
		d.region.Release(cmplAddr)
		return fmt.Errorf("credit context: %w", err)
	}

	pfch := qdma.PrefetchContext{PfchEn: true, Valid: true}
	if err := d.programmer.Write(qdma.SelPFCH, qid, pfch.Pack()); err != nil {
		return fmt.Errorf("prefetch context: %w", err)
	}

	// Fixed completion moderation fields: one counter/timer ring slot per
	// queue, threshold-or-timer trigger mode, status writes enabled. The
	// same values are carried into the completion CIDX doorbell below so
	// every re-arm matches what was programmed into the context.
	const (
		cmplCounterIdx = 0
		cmplTimerIdx   = 0
		cmplTrigMode   = 1 // counter-and-timer
	)

	cmpl := qdma.CompletionContext{
		StatEn:     true,
		IntrEn:     true,
		TrigMode:   cmplTrigMode,
		CounterIdx: cmplCounterIdx,
		TimerIdx:   cmplTimerIdx,
		Color:      true,
		RingSzIdx:  uint8(d.cfg.RxCmplRingSizeIdx),
		BAddr:      cmplAddr,
		Vector:     d.vectorForQueue(index),
		Valid:      true,
	}
	if err := d.programmer.Write(qdma.SelCMPL, qid, cmpl.Pack()); err != nil {
		return fmt.Errorf("completion context: %w", err)
	}

	cmplTrailerSlot := cmplRing.Slot(cmplRing.RealCount())

	d.rxDescRings[index] = descRing
	d.rxCmplRings[index] = cmplRing
	d.regs[index] = queueRegisters{
		doorbells: &doorbells{win: d.bar0, cmplCfg: completionDoorbellConfig{
			CounterIdx: cmplCounterIdx,
			TimerIdx:   cmplTimerIdx,
			TrigMode:   cmplTrigMode,
			StatEn:     true,
		}},
		errClear: &globalErrorClearer{win: d.bar0},
	}

	d.rxQueues[index] = txrx.NewRxQueue(
		int(qid), index, descRing, cmplRing, pool, d.program,
		&rxTrailer{slot: cmplTrailerSlot},
		d.regs[index].doorbells,
		d.regs[index].errClear,
		d,
		d.counters,
	)

	// Seed the device: initial producer index = RX_DESC_STEP, completion
	// consumer index = 0, armed.
	descRing.AdvanceHeadBy(txrx.RxDescStep)
	d.regs[index].doorbells.WriteC2HDoorbell(int(qid), uint16(descRing.NextToUse()))
	d.regs[index].doorbells.WriteCompletionDoorbell(int(qid), 0, true)

	return nil
}

// teardownRxQueue tears down one Rx queue in reverse order: clear
// contexts, disable polling, release page-pool pages, and free DMA memory.
func (d *Device) teardownRxQueue(index int) {
	rq := d.rxQueues[index]
	if rq == nil {
		return
	}

	qid := d.deviceQID(index)
	d.programmer.Clear(qdma.SelCMPL, qid)
	d.programmer.Clear(qdma.SelPFCH, qid)
	d.programmer.Clear(qdma.SelHWC2H, qid)
	d.programmer.Clear(qdma.SelCRC2H, qid)
	d.programmer.Clear(qdma.SelSWC2H, qid)

	if d.rxPools[index] != nil {
		d.rxPools[index].Destroy()
		d.rxPools[index] = nil
	}

	descRing := d.rxDescRings[index]
	descAddr := descRing.DMAAddr()
	descRing.Destroy()
	d.region.Release(descAddr)
	d.rxDescRings[index] = nil

	cmplRing := d.rxCmplRings[index]
	cmplAddr := cmplRing.DMAAddr()
	cmplRing.Destroy()
	d.region.Release(cmplAddr)
	d.rxCmplRings[index] = nil

	d.rxQueues[index] = nil
}

// vectorForQueue resolves the MSI-X vector bound to a queue index from the
// assignment table built at Open.
func (d *Device) vectorForQueue(index int) uint16 {
	for _, a := range d.vectors {
		if a.Kind == intx.KindRxQueue && a.RxQueueIndex == index {
			return uint16(a.Vector)
		}
	}
	return 0
}

package onic

import (
	"github.com/open-nic/onic-driver/bits"
	"github.com/open-nic/onic-driver/dma"
	"github.com/open-nic/onic-driver/qdma"
	"github.com/open-nic/onic-driver/reg"
)

// Doorbell register bank base offsets within BAR0, 16-byte stride per queue.
const (
	regH2CDoorbellBase  = 0x1000
	regC2HDoorbellBase  = 0x2000
	regCmplDoorbellBase = 0x3000
	doorbellStride      = 16

	// regGlblErrClear is the BAR0 global error interrupt clear-on-write
	// register, distinct from the per-function GLBL_ERR_INT arm register
	// intx.ErrorRegister programs.
	regGlblErrClear = 0x0248
)

// completionDoorbellConfig carries the completion CIDX doorbell's fixed
// fields (counter/timer index, trigger mode, stat-enable) that accompany
// every write alongside the variable cidx/irq_arm.
type completionDoorbellConfig struct {
	CounterIdx uint8
	TimerIdx   uint8
	TrigMode   uint8
	StatEn     bool
}

// doorbells implements the per-queue H2C/C2H descriptor PIDX doorbells and
// the completion CIDX doorbell over a BAR0 window.
type doorbells struct {
	win     *reg.Window
	cmplCfg completionDoorbellConfig
}

// WriteH2CDoorbell implements txrx.Doorbell: fields {pidx:16, irq_arm:1}.
func (d *doorbells) WriteH2CDoorbell(qid int, pidx uint16, irqArm bool) {
	var w uint32
	bits.SetN(&w, 0, 0xffff, uint32(pidx))
	bits.SetN(&w, 16, 1, bits.Bool(irqArm))
	d.win.Write32(regH2CDoorbellBase+uint32(qid)*doorbellStride, w)
}

// WriteC2HDoorbell implements txrx.RxDoorbell: fields {pidx:16, irq_arm:1}
// (irq_arm unused on the C2H descriptor doorbell, left clear).
func (d *doorbells) WriteC2HDoorbell(qid int, pidx uint16) {
	var w uint32
	bits.SetN(&w, 0, 0xffff, uint32(pidx))
	d.win.Write32(regC2HDoorbellBase+uint32(qid)*doorbellStride, w)
}

// WriteCompletionDoorbell implements txrx.RxDoorbell: fields
// {cidx:16, counter_idx:4, timer_idx:4, trig_mode:3, stat_en:1, irq_arm:1}.
func (d *doorbells) WriteCompletionDoorbell(qid int, cidx uint16, irqArm bool) {
	var w uint32
	bits.SetN(&w, 0, 0xffff, uint32(cidx))
	bits.SetN(&w, 16, 0xf, uint32(d.cmplCfg.CounterIdx))
	bits.SetN(&w, 20, 0xf, uint32(d.cmplCfg.TimerIdx))
	bits.SetN(&w, 24, 0x7, uint32(d.cmplCfg.TrigMode))
	bits.SetN(&w, 27, 1, bits.Bool(d.cmplCfg.StatEn))
	bits.SetN(&w, 28, 1, bits.Bool(irqArm))
	d.win.Write32(regCmplDoorbellBase+uint32(qid)*doorbellStride, w)
}

// globalErrorClearer implements txrx.ErrorClearer by writing a clear strobe
// to the BAR0 global error interrupt register.
type globalErrorClearer struct {
	win *reg.Window
}

func (e *globalErrorClearer) ClearGlobalError() {
	e.win.Write32(regGlblErrClear, 1)
}

// txWriteBack implements txrx.WriteBackReader over a Tx ring's trailing
// write-back slot.
type txWriteBack struct {
	slot []byte
}

func (w *txWriteBack) ReadCIDX() uint16 {
	return qdma.UnmarshalWriteBackStatus(w.slot).CIDX
}

// rxTrailer implements txrx.CompletionTrailerReader over a completion ring's
// trailing status slot.
type rxTrailer struct {
	slot []byte
}

func (r *rxTrailer) ReadTrailer() qdma.CompletionTrailer {
	return qdma.UnmarshalCompletionTrailer(r.slot)
}

// regionMapper DMA-maps a caller-owned buffer by reserving a same-sized
// block from the device's DMA region and copying the payload into it.
//
// dma.Region.Reserve panics on exhaustion because every other caller in
// this driver (ring and page pool allocation) sizes its reservation at
// init time, where exhaustion is a programming error. Tx mapping is the one
// caller that must turn that condition into an ordinary, countable failure
// instead of a crash — hence the recover.
type regionMapper struct {
	region *dma.Region
}

func (m *regionMapper) MapToDevice(payload []byte) (addr uint64, ok bool) {
	defer func() {
		if recover() != nil {
			addr, ok = 0, false
		}
	}()

	var buf []byte
	addr, buf = m.region.Reserve(len(payload), 0)
	copy(buf, payload)

	return addr, true
}

// regionUnmapper implements txrx.Unmapper by releasing a mapped reservation
// back to the DMA region.
type regionUnmapper struct {
	region *dma.Region
}

func (u *regionUnmapper) Unmap(addr uint64, length int) {
	u.region.Release(addr)
}

// fencer implements txrx.Fencer/qdma ordering requirements via reg.Fence.
type fencer struct{}

func (fencer) Fence() { reg.Fence() }

package qdma

import "github.com/open-nic/onic-driver/bits"

// SWContext is the descriptor queue software context: everything the fetch
// engine needs to walk a ring (base address, ring size, descriptor size, the
// owning function and MSI-X vector) plus the producer index the driver
// advances on every batch of posted descriptors.
type SWContext struct {
	PIDX      uint16
	IRQArm    bool
	FuncID    uint8
	QEn       bool
	FetchCrdEn bool
	WBIChk    bool
	WBIIntvlEn bool
	AddrTrans bool
	FetchMax  uint8
	RingSzIdx uint8
	DescSz    uint8
	Bypass    bool
	MMChannel bool
	WBEn      bool
	IRQEn     bool
	PortID    uint8
	IRQNoLast bool
	Err       uint8
	ErrWBSent bool
	IRQReq    bool
	MarkerDis bool
	IsMM      bool
	DescBase  uint64
	Vector    uint16
	IntrAggr  bool
}

// Pack marshals the software context into its NumDataRegs[:5] wire words.
func (c SWContext) Pack() []uint32 {
	var w [5]uint32

	bits.SetN(&w[0], 0, 0xffff, uint32(c.PIDX))
	bits.SetN(&w[0], 16, 1, bits.Bool(c.IRQArm))
	bits.SetN(&w[0], 17, 0xff, uint32(c.FuncID))

	bits.SetN(&w[1], 0, 1, bits.Bool(c.QEn))
	bits.SetN(&w[1], 1, 1, bits.Bool(c.FetchCrdEn))
	bits.SetN(&w[1], 2, 1, bits.Bool(c.WBIChk))
	bits.SetN(&w[1], 3, 1, bits.Bool(c.WBIIntvlEn))
	bits.SetN(&w[1], 4, 1, bits.Bool(c.AddrTrans))
	bits.SetN(&w[1], 5, 0x7, uint32(c.FetchMax))
	bits.SetN(&w[1], 12, 0xf, uint32(c.RingSzIdx))
	bits.SetN(&w[1], 16, 0x3, uint32(c.DescSz))
	bits.SetN(&w[1], 18, 1, bits.Bool(c.Bypass))
	bits.SetN(&w[1], 19, 1, bits.Bool(c.MMChannel))
	bits.SetN(&w[1], 20, 1, bits.Bool(c.WBEn))
	bits.SetN(&w[1], 21, 1, bits.Bool(c.IRQEn))
	bits.SetN(&w[1], 22, 0x7, uint32(c.PortID))
	bits.SetN(&w[1], 25, 1, bits.Bool(c.IRQNoLast))
	bits.SetN(&w[1], 26, 0x3, uint32(c.Err))
	bits.SetN(&w[1], 28, 1, bits.Bool(c.ErrWBSent))
	bits.SetN(&w[1], 29, 1, bits.Bool(c.IRQReq))
	bits.SetN(&w[1], 30, 1, bits.Bool(c.MarkerDis))
	bits.SetN(&w[1], 31, 1, bits.Bool(c.IsMM))

	w[2] = uint32(c.DescBase)
	w[3] = uint32(c.DescBase >> 32)

	bits.SetN(&w[4], 0, 0x7ff, uint32(c.Vector))
	bits.SetN(&w[4], 11, 1, bits.Bool(c.IntrAggr))

	return w[:]
}

// UnpackSWContext unmarshals a software context readback.
func UnpackSWContext(w [NumDataRegs]uint32) SWContext {
	return SWContext{
		PIDX:       uint16(bits.GetN(w[0], 0, 0xffff)),
		IRQArm:     bits.GetN(w[0], 16, 1) != 0,
		FuncID:     uint8(bits.GetN(w[0], 17, 0xff)),
		QEn:        bits.GetN(w[1], 0, 1) != 0,
		FetchCrdEn: bits.GetN(w[1], 1, 1) != 0,
		WBIChk:     bits.GetN(w[1], 2, 1) != 0,
		WBIIntvlEn: bits.GetN(w[1], 3, 1) != 0,
		AddrTrans:  bits.GetN(w[1], 4, 1) != 0,
		FetchMax:   uint8(bits.GetN(w[1], 5, 0x7)),
		RingSzIdx:  uint8(bits.GetN(w[1], 12, 0xf)),
		DescSz:     uint8(bits.GetN(w[1], 16, 0x3)),
		Bypass:     bits.GetN(w[1], 18, 1) != 0,
		MMChannel:  bits.GetN(w[1], 19, 1) != 0,
		WBEn:       bits.GetN(w[1], 20, 1) != 0,
		IRQEn:      bits.GetN(w[1], 21, 1) != 0,
		PortID:     uint8(bits.GetN(w[1], 22, 0x7)),
		IRQNoLast:  bits.GetN(w[1], 25, 1) != 0,
		Err:        uint8(bits.GetN(w[1], 26, 0x3)),
		ErrWBSent:  bits.GetN(w[1], 28, 1) != 0,
		IRQReq:     bits.GetN(w[1], 29, 1) != 0,
		MarkerDis:  bits.GetN(w[1], 30, 1) != 0,
		IsMM:       bits.GetN(w[1], 31, 1) != 0,
		DescBase:   uint64(w[2]) | uint64(w[3])<<32,
		Vector:     uint16(bits.GetN(w[4], 0, 0x7ff)),
		IntrAggr:   bits.GetN(w[4], 11, 1) != 0,
	}
}

// HWContext is the descriptor queue hardware context: engine-owned state
// reflecting the consumer index and in-flight fetch/descriptor activity.
// The driver only ever reads this context back, never writes it.
type HWContext struct {
	CIDX       uint16
	CreditsUsed uint16
	DescPend   bool
	IdleStopped bool
	EventPend  bool
	FetchPend  uint8
}

// UnpackHWContext unmarshals a hardware context readback.
func UnpackHWContext(w [NumDataRegs]uint32) HWContext {
	return HWContext{
		CIDX:        uint16(bits.GetN(w[0], 0, 0xffff)),
		CreditsUsed: uint16(bits.GetN(w[0], 16, 0xffff)),
		DescPend:    bits.GetN(w[1], 8, 1) != 0,
		IdleStopped: bits.GetN(w[1], 9, 1) != 0,
		EventPend:   bits.GetN(w[1], 10, 1) != 0,
		FetchPend:   uint8(bits.GetN(w[1], 11, 0xf)),
	}
}

// CreditContext is the descriptor queue credit context: the running count of
// fetch credits the engine has granted the queue.
type CreditContext struct {
	Credit uint16
}

// Pack marshals the credit context.
func (c CreditContext) Pack() []uint32 {
	var w uint32
	bits.SetN(&w, 0, 0xffff, uint32(c.Credit))
	return []uint32{w}
}

// UnpackCreditContext unmarshals a credit context readback.
func UnpackCreditContext(w [NumDataRegs]uint32) CreditContext {
	return CreditContext{Credit: uint16(bits.GetN(w[0], 0, 0xffff))}
}

// PrefetchContext is the C2H prefetch context: per-queue buffer sizing and
// prefetch enable/state used by the engine's look-ahead descriptor fetch.
type PrefetchContext struct {
	Bypass   bool
	BufSzIdx uint8
	PortID   uint8
	Err      bool
	PfchEn   bool
	InPfch   bool
	SWCredit uint16
	Valid    bool
}

// Pack marshals the prefetch context into its two wire words.
func (c PrefetchContext) Pack() []uint32 {
	var w [2]uint32

	bits.SetN(&w[0], 0, 1, bits.Bool(c.Bypass))
	bits.SetN(&w[0], 1, 0xf, uint32(c.BufSzIdx))
	bits.SetN(&w[0], 5, 0x7, uint32(c.PortID))
	bits.SetN(&w[0], 26, 1, bits.Bool(c.Err))
	bits.SetN(&w[0], 27, 1, bits.Bool(c.PfchEn))
	bits.SetN(&w[0], 28, 1, bits.Bool(c.InPfch))
	bits.SetN(&w[0], 29, 0x7, uint32(c.SWCredit&0x7))

	bits.SetN(&w[1], 0, 0x1fff, uint32(c.SWCredit>>3))
	bits.SetN(&w[1], 13, 1, bits.Bool(c.Valid))

	return w[:]
}

// UnpackPrefetchContext unmarshals a prefetch context readback.
func UnpackPrefetchContext(w [NumDataRegs]uint32) PrefetchContext {
	low := bits.GetN(w[0], 29, 0x7)
	high := bits.GetN(w[1], 0, 0x1fff)

	return PrefetchContext{
		Bypass:   bits.GetN(w[0], 0, 1) != 0,
		BufSzIdx: uint8(bits.GetN(w[0], 1, 0xf)),
		PortID:   uint8(bits.GetN(w[0], 5, 0x7)),
		Err:      bits.GetN(w[0], 26, 1) != 0,
		PfchEn:   bits.GetN(w[0], 27, 1) != 0,
		InPfch:   bits.GetN(w[0], 28, 1) != 0,
		SWCredit: uint16(high<<3 | low),
		Valid:    bits.GetN(w[1], 13, 1) != 0,
	}
}

// CompletionContext is the C2H completion context: the completion ring's
// base address, indices, color bit and interrupt/timer configuration.
type CompletionContext struct {
	StatEn       bool
	IntrEn       bool
	TrigMode     uint8
	FuncID       uint8
	CounterIdx   uint8
	TimerIdx     uint8
	IntrState    uint8
	Color        bool
	RingSzIdx    uint8
	BAddr        uint64
	DescSz       uint8
	PIDX         uint16
	CIDX         uint16
	Valid        bool
	Err          uint8
	UserTrigPend bool
	TimerRunning bool
	FullUpdate   bool
	OvfChkDis    bool
	AddrTrans    bool
	Vector       uint16
	IntrAggr     bool
}

// Pack marshals the completion context into its five wire words. BAddr is
// the ring base shifted right by 12 (4K aligned): its low 26 bits go into
// word 1 and the next 26 bits into word 2, per the hardware's
// QDMA_CMPL_CTXT_BADDR_GET_{L,H}_MASK fields.
func (c CompletionContext) Pack() []uint32 {
	var w [5]uint32

	bits.SetN(&w[0], 0, 1, bits.Bool(c.StatEn))
	bits.SetN(&w[0], 1, 1, bits.Bool(c.IntrEn))
	bits.SetN(&w[0], 2, 0x7, uint32(c.TrigMode))
	bits.SetN(&w[0], 5, 0xff, uint32(c.FuncID))
	bits.SetN(&w[0], 17, 0xf, uint32(c.CounterIdx))
	bits.SetN(&w[0], 21, 0xf, uint32(c.TimerIdx))
	bits.SetN(&w[0], 25, 0x3, uint32(c.IntrState))
	bits.SetN(&w[0], 27, 1, bits.Bool(c.Color))
	bits.SetN(&w[0], 28, 0xf, uint32(c.RingSzIdx))

	field := c.BAddr >> 12
	bits.SetN(&w[1], 6, 0x3ffffff, uint32(field&0x3ffffff))
	bits.SetN(&w[2], 0, 0x3ffffff, uint32(field>>26))
	bits.SetN(&w[2], 26, 0x3, uint32(c.DescSz))

	bits.SetN(&w[3], 0, 0xfff, uint32(c.PIDX>>4))
	bits.SetN(&w[2], 28, 0xf, uint32(c.PIDX&0xf))
	bits.SetN(&w[3], 12, 0xffff, uint32(c.CIDX))
	bits.SetN(&w[3], 28, 1, bits.Bool(c.Valid))
	bits.SetN(&w[3], 29, 0x3, uint32(c.Err))
	bits.SetN(&w[3], 31, 1, bits.Bool(c.UserTrigPend))

	bits.SetN(&w[4], 0, 1, bits.Bool(c.TimerRunning))
	bits.SetN(&w[4], 1, 1, bits.Bool(c.FullUpdate))
	bits.SetN(&w[4], 2, 1, bits.Bool(c.OvfChkDis))
	bits.SetN(&w[4], 3, 1, bits.Bool(c.AddrTrans))
	bits.SetN(&w[4], 4, 0x7ff, uint32(c.Vector))
	bits.SetN(&w[4], 15, 1, bits.Bool(c.IntrAggr))

	return w[:]
}

// UnpackCompletionContext unmarshals a completion context readback.
func UnpackCompletionContext(w [NumDataRegs]uint32) CompletionContext {
	baddrLow := uint64(bits.GetN(w[1], 6, 0x3ffffff))
	baddrHigh := uint64(bits.GetN(w[2], 0, 0x3ffffff))
	pidxLow := uint16(bits.GetN(w[2], 28, 0xf))
	pidxHigh := uint16(bits.GetN(w[3], 0, 0xfff))

	return CompletionContext{
		StatEn:       bits.GetN(w[0], 0, 1) != 0,
		IntrEn:       bits.GetN(w[0], 1, 1) != 0,
		TrigMode:     uint8(bits.GetN(w[0], 2, 0x7)),
		FuncID:       uint8(bits.GetN(w[0], 5, 0xff)),
		CounterIdx:   uint8(bits.GetN(w[0], 17, 0xf)),
		TimerIdx:     uint8(bits.GetN(w[0], 21, 0xf)),
		IntrState:    uint8(bits.GetN(w[0], 25, 0x3)),
		Color:        bits.GetN(w[0], 27, 1) != 0,
		RingSzIdx:    uint8(bits.GetN(w[0], 28, 0xf)),
		BAddr:        (baddrHigh<<26 | baddrLow) << 12,
		DescSz:       uint8(bits.GetN(w[2], 26, 0x3)),
		PIDX:         pidxHigh<<4 | pidxLow,
		CIDX:         uint16(bits.GetN(w[3], 12, 0xffff)),
		Valid:        bits.GetN(w[3], 28, 1) != 0,
		Err:          uint8(bits.GetN(w[3], 29, 0x3)),
		UserTrigPend: bits.GetN(w[3], 31, 1) != 0,
		TimerRunning: bits.GetN(w[4], 0, 1) != 0,
		FullUpdate:   bits.GetN(w[4], 1, 1) != 0,
		OvfChkDis:    bits.GetN(w[4], 2, 1) != 0,
		AddrTrans:    bits.GetN(w[4], 3, 1) != 0,
		Vector:       uint16(bits.GetN(w[4], 4, 0x7ff)),
		IntrAggr:     bits.GetN(w[4], 15, 1) != 0,
	}
}

// FunctionMapContext assigns a contiguous band of the device's global queue
// ID space to a PCI function. Every other context is addressed by a
// per-function queue ID that the engine translates through this mapping.
type FunctionMapContext struct {
	QBase uint16
	QMax  uint16
}

// Pack marshals the function map context into its two wire words.
func (c FunctionMapContext) Pack() []uint32 {
	var w [2]uint32
	bits.SetN(&w[0], 0, 0x7ff, uint32(c.QBase))
	bits.SetN(&w[1], 0, 0xfff, uint32(c.QMax))
	return w[:]
}

// UnpackFunctionMapContext unmarshals a function map context readback.
func UnpackFunctionMapContext(w [NumDataRegs]uint32) FunctionMapContext {
	return FunctionMapContext{
		QBase: uint16(bits.GetN(w[0], 0, 0x7ff)),
		QMax:  uint16(bits.GetN(w[1], 0, 0xfff)),
	}
}

// Package qdma implements the indirect context programming protocol, the
// descriptor/completion wire codecs, and the ring abstraction for the
// DMA engine's streaming queues.
package qdma

import "github.com/open-nic/onic-driver/bits"

// Op identifies a context programming operation.
type Op uint32

const (
	OpClr Op = iota
	OpWr
	OpRd
	OpInv
)

// Selector identifies a context kind within the indirect programming
// window.
type Selector uint32

const (
	SelSWC2H Selector = iota
	SelSWH2C
	SelHWC2H
	SelHWH2C
	SelCRC2H
	SelCRH2C
	SelCMPL
	SelPFCH
	SelIntrCoal
	SelFMAP = 12
)

// Command word bit layout: {busy:1, sel:4, op:2, qid:11, rsvd:14}.
const (
	cmdBusyPos = 0
	cmdSelPos  = 1
	cmdSelMask = 0xf
	cmdOpPos   = 5
	cmdOpMask  = 0x3
	cmdQIDPos  = 7
	cmdQIDMask = 0x7ff
)

// MaxQID is the largest representable queue ID, bounded by the 11-bit qid
// field of the command word.
const MaxQID = 1<<11 - 1

// Command represents the indirect context command register value.
type Command struct {
	Busy bool
	Sel  Selector
	Op   Op
	QID  uint16
}

// Encode packs the command into its wire word. Busy is always encoded as
// 0: only the device sets it.
func (c Command) Encode() uint32 {
	var w uint32
	bits.SetN(&w, cmdSelPos, cmdSelMask, uint32(c.Sel))
	bits.SetN(&w, cmdOpPos, cmdOpMask, uint32(c.Op))
	bits.SetN(&w, cmdQIDPos, cmdQIDMask, uint32(c.QID))
	return w
}

// DecodeCommand unpacks a command word, e.g. to verify a readback or in
// tests.
func DecodeCommand(w uint32) Command {
	return Command{
		Busy: bits.GetN(w, cmdBusyPos, 1) != 0,
		Sel:  Selector(bits.GetN(w, cmdSelPos, cmdSelMask)),
		Op:   Op(bits.GetN(w, cmdOpPos, cmdOpMask)),
		QID:  uint16(bits.GetN(w, cmdQIDPos, cmdQIDMask)),
	}
}

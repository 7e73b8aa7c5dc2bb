// Package hook implements the programmable packet-processing hook the
// receive path dispatches into: a black-box program that inspects a frame
// and decides whether it is passed up the stack, dropped, locally
// retransmitted, or redirected to another device's receive path.
//
// The program itself is out of scope — the core only executes whatever is
// installed through Program, the same way the rest of the driver treats the
// MAC/PHY register tables as an external collaborator (see the onic
// package's Device.SetProgram).
package hook

import "sync/atomic"

// Verdict is the outcome a Program returns for one frame.
type Verdict int

const (
	// Pass hands the frame up the host network stack unchanged.
	Pass Verdict = iota
	// Drop discards the frame; the page is recycled directly.
	Drop
	// TX locally retransmits the frame on a transmit queue bound to the
	// same CPU the poll is running on.
	TX
	// Redirect hands the frame to another device's receive path through
	// the redirect service.
	Redirect
	// Aborted indicates the program itself failed; treated like Drop.
	Aborted
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Drop:
		return "drop"
	case TX:
		return "tx"
	case Redirect:
		return "redirect"
	case Aborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// RxQInfo identifies the receive queue a frame arrived on, passed to a
// program alongside the frame view so it can make queue-aware decisions
// (e.g. RSS-bucket-specific redirection).
type RxQInfo struct {
	QueueIndex int
	DeviceName string
}

// Frame is the view a program operates on: a pointer into a page-pool page,
// the headroom already reserved ahead of the payload, and the payload
// length. A program may only read and rewrite within [Offset, Offset+Len);
// it does not own the backing page.
type Frame struct {
	Data   []byte // the full page backing this frame
	Offset int    // byte offset of the payload within Data (the headroom)
	Len    int    // payload length

	RxQueue RxQInfo
}

// Payload returns the frame's packet bytes, excluding headroom.
func (f *Frame) Payload() []byte {
	return f.Data[f.Offset : f.Offset+f.Len]
}

// Redirector hands a frame to another device's receive path. Implemented by
// the driver's redirect service; a program reaches it only through the
// TX/Redirect verdicts, never directly.
type Redirector interface {
	Redirect(f *Frame) error
}

// BulkTransmitter is the bulk-transmit entry point a program's TX verdict
// resolves to, the same path an external redirect call drives.
type BulkTransmitter interface {
	TransmitBulk(qid int, frames []*Frame, flush bool) error
}

// Program is a loadable packet-processing hook. Context carries whatever
// per-frame services (redirector, bulk transmitter, rxq info) the embedding
// driver wants to expose; the interpreter interface stays generic on
// purpose, since the bytecode format itself is out of scope.
type Program interface {
	Run(ctx *Context, f *Frame) Verdict
}

// Context bundles the services a running Program may call back into.
type Context struct {
	Redirector Redirector
	Transmit   BulkTransmitter
}

// Handle is an atomically-swappable slot holding the currently installed
// Program. It keeps no reference count. Replacing a program never mutates
// the old value in place: it publishes a new value and lets readers that
// already captured the old one finish naturally, avoiding a program
// executing concurrently with its own teardown.
type Handle struct {
	v atomic.Value // holds programSlot (nil wrapped as noProgram{})
}

// programSlot wraps the installed Program so that every value stored in
// Handle.v has the same concrete type, as atomic.Value requires.
type programSlot struct {
	prog Program
}

type noProgram struct{}

func (noProgram) Run(*Context, *Frame) Verdict { return Pass }

// NewHandle returns a handle initialized to the no-op program: every frame
// takes the Pass path until a program is installed.
func NewHandle() *Handle {
	h := &Handle{}
	h.v.Store(programSlot{noProgram{}})
	return h
}

// Load returns the currently installed program. Never returns nil.
func (h *Handle) Load() Program {
	return h.v.Load().(programSlot).prog
}

// Swap atomically installs prog as the current program and returns the
// previous one. Passing nil installs the no-op program (all frames Pass).
func (h *Handle) Swap(prog Program) Program {
	if prog == nil {
		prog = noProgram{}
	}
	old := h.v.Swap(programSlot{prog})
	return old.(programSlot).prog
}

// IsNoop reports whether prog is the sentinel installed by Swap(nil) or a
// freshly constructed Handle, i.e. whether a program is actually loaded.
func IsNoop(prog Program) bool {
	_, ok := prog.(noProgram)
	return ok
}

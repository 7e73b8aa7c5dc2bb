// Package intx implements the driver's MSI-X vector topology: allocation
// sizing, the fixed assignment order (mailbox, user, error, then one per Rx
// queue), and per-vector handler binding including the two-stage top/bottom
// half handlers the user and error vectors use.
package intx

import (
	"errors"
	"fmt"
	"log"
)

// ErrShortAllocation is returned when the platform granted fewer vectors
// than the minimum the device needs to operate.
var ErrShortAllocation = errors.New("intx: short MSI-X allocation")

// Config selects which of the optional non-queue vectors this device
// instance requires.
type Config struct {
	MailboxEnabled bool
	UserIRQEnabled bool
	MasterPF       bool
	NumRxQueues    int
}

// NonQueueVectors is the count of vectors consumed by mailbox/user/error
// before any per-queue vector is assigned.
func (c Config) NonQueueVectors() int {
	n := 0
	if c.MailboxEnabled {
		n++
	}
	if c.UserIRQEnabled {
		n++
	}
	if c.MasterPF {
		n++
	}
	return n
}

// Requested is the number of vectors the device asks the platform to
// allocate: one per potential Rx queue plus the non-queue vectors.
func (c Config) Requested() int {
	return c.NumRxQueues + c.NonQueueVectors()
}

// MinAcceptable is the smallest allocation the device can still operate
// with: the non-queue vectors plus at least one queue vector.
func (c Config) MinAcceptable() int {
	return c.NonQueueVectors() + 1
}

// Kind identifies what a given vector index is bound to.
type Kind int

const (
	KindMailbox Kind = iota
	KindUser
	KindError
	KindRxQueue
)

func (k Kind) String() string {
	switch k {
	case KindMailbox:
		return "mailbox"
	case KindUser:
		return "user"
	case KindError:
		return "error"
	case KindRxQueue:
		return "rxqueue"
	default:
		return "unknown"
	}
}

// Assignment names what a vector index in the allocated table is bound to.
type Assignment struct {
	Vector int
	Kind   Kind
	// RxQueueIndex is meaningful only when Kind == KindRxQueue.
	RxQueueIndex int
}

// Assign lays out granted vectors in the fixed order: mailbox (optional),
// user (optional), error (master-pf only), then one per Rx queue, up to
// however many vectors were actually granted. It returns ErrShortAllocation
// if granted is below MinAcceptable.
func Assign(c Config, granted int) ([]Assignment, error) {
	if granted < c.MinAcceptable() {
		return nil, fmt.Errorf("%w: got %d want at least %d", ErrShortAllocation, granted, c.MinAcceptable())
	}

	var out []Assignment
	v := 0

	if c.MailboxEnabled {
		out = append(out, Assignment{Vector: v, Kind: KindMailbox})
		v++
	}
	if c.UserIRQEnabled {
		out = append(out, Assignment{Vector: v, Kind: KindUser})
		v++
	}
	if c.MasterPF {
		out = append(out, Assignment{Vector: v, Kind: KindError})
		v++
	}

	for rx := 0; v < granted && rx < c.NumRxQueues; rx++ {
		out = append(out, Assignment{Vector: v, Kind: KindRxQueue, RxQueueIndex: rx})
		v++
	}

	return out, nil
}

// WakeFunc schedules a bottom half to run outside interrupt context, the
// two-stage pattern the user/error vectors use (top-half returns quickly,
// bottom-half does the logging/handling work). The mailbox vector logs
// directly, without a bottom half.
type WakeFunc func(bottomHalf func())

// RxWake wakes the NAPI instance bound to a queue; irq-off scheduling, no
// two-stage split.
type RxWake func(queueIndex int)

// Dispatcher binds vector assignments to their handlers and routes raw
// vector-fired events to the right one.
type Dispatcher struct {
	assignments []Assignment
	wake        WakeFunc
	rxWake      RxWake

	funcID uint8
}

// NewDispatcher builds a dispatcher over a completed vector assignment.
// wake schedules the bottom half for user/error vectors; rxWake
// wakes the NAPI instance for a per-queue vector.
func NewDispatcher(assignments []Assignment, funcID uint8, wake WakeFunc, rxWake RxWake) *Dispatcher {
	return &Dispatcher{assignments: assignments, wake: wake, rxWake: rxWake, funcID: funcID}
}

// Fire handles one interrupt having fired on vector index v.
func (d *Dispatcher) Fire(v int) {
	for _, a := range d.assignments {
		if a.Vector != v {
			continue
		}

		switch a.Kind {
		case KindMailbox:
			log.Printf("intx: mailbox interrupt on vector %d", v)
		case KindUser:
			d.wake(func() {
				log.Printf("intx: user interrupt bottom half on vector %d", v)
			})
		case KindError:
			d.wake(func() {
				log.Printf("intx: error interrupt on function %d vector %d", d.funcID, v)
			})
		case KindRxQueue:
			d.rxWake(a.RxQueueIndex)
		}

		return
	}
}

// ErrorRegister is the wire layout of the device's GLBL_ERR_INT register:
// the function the vector is bound to, the vector number, and the arm bit.
type ErrorRegister struct {
	Func uint8
	Vec  uint16
	Arm  bool
}

// Encode packs the error interrupt register: {func:8, vec:11, arm:1}.
func (e ErrorRegister) Encode() uint32 {
	var w uint32
	w |= uint32(e.Func)
	w |= uint32(e.Vec&0x7ff) << 8
	if e.Arm {
		w |= 1 << 19
	}
	return w
}

// DecodeErrorRegister unpacks a GLBL_ERR_INT register readback.
func DecodeErrorRegister(w uint32) ErrorRegister {
	return ErrorRegister{
		Func: uint8(w & 0xff),
		Vec:  uint16((w >> 8) & 0x7ff),
		Arm:  w&(1<<19) != 0,
	}
}

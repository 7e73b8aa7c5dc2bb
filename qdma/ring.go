package qdma

import "fmt"

// RingSizes is the 16-entry pool of descriptor counts a ring's size index
// may select, indexable 0..15.
var RingSizes = [16]uint32{
	64, 128, 256, 512,
	1024, 2048, 4096, 8192,
	16384, 16384, 16384, 16384,
	16384, 16384, 16384, 16384,
}

// Ring is a power-of-two-sized circular buffer of fixed-size descriptor
// slots, with an optional trailing write-back slot the device owns.
type Ring struct {
	count       uint32 // total slots, including the write-back slot if any
	descSize    int    // bytes per descriptor slot
	desc        []byte // backing storage for the descriptor slots
	dmaAddr     uint64 // bus address of desc
	hasWB       bool
	nextToUse   uint32
	nextToClean uint32
	color       bool
}

// NewRing allocates a ring of sizeIdx's slot count (from RingSizes), each
// descSize bytes wide, backed by the given DMA-coherent buffer. If
// withWriteBack is true, the last slot is reserved for the device's
// write-back status and is excluded from RealCount.
func NewRing(sizeIdx int, descSize int, dmaAddr uint64, buf []byte, withWriteBack bool) (*Ring, error) {
	if sizeIdx < 0 || sizeIdx >= len(RingSizes) {
		return nil, fmt.Errorf("qdma: ring size index %d out of range", sizeIdx)
	}

	count := RingSizes[sizeIdx]
	need := int(count) * descSize

	if len(buf) < need {
		return nil, fmt.Errorf("qdma: ring buffer too small: need %d got %d", need, len(buf))
	}

	return &Ring{
		count:    count,
		descSize: descSize,
		desc:     buf[:need],
		dmaAddr:  dmaAddr,
		hasWB:    withWriteBack,
		color:    true,
	}, nil
}

// RealCount is the number of slots usable for descriptors, excluding the
// write-back slot if the ring reserves one.
func (r *Ring) RealCount() uint32 {
	if r.hasWB {
		return r.count - 1
	}
	return r.count
}

// Count is the ring's total slot count, including any write-back slot.
func (r *Ring) Count() uint32 { return r.count }

// DMAAddr is the bus address of the ring's descriptor array.
func (r *Ring) DMAAddr() uint64 { return r.dmaAddr }

// NextToUse is the producer index, owned by the host.
func (r *Ring) NextToUse() uint32 { return r.nextToUse }

// NextToClean is the consumer index, owned by the host.
func (r *Ring) NextToClean() uint32 { return r.nextToClean }

// Color is the ring's current expected completion color.
func (r *Ring) Color() bool { return r.color }

// IsFull reports whether one more AdvanceHead would collide with the
// consumer index.
func (r *Ring) IsFull() bool {
	real := r.RealCount()
	return (r.nextToUse+1)%real == r.nextToClean
}

// IsEmpty reports whether the producer and consumer indices coincide.
func (r *Ring) IsEmpty() bool {
	return r.nextToUse == r.nextToClean
}

// Slot returns the descriptor slot bytes at index i.
func (r *Ring) Slot(i uint32) []byte {
	off := int(i) * r.descSize
	return r.desc[off : off+r.descSize]
}

// CurrentSlot returns the descriptor slot at the current producer index.
func (r *Ring) CurrentSlot() []byte {
	return r.Slot(r.nextToUse)
}

// AdvanceHead moves the producer index forward by one slot, modulo
// RealCount. It never flips the color bit: color flips are a consumer-side
// concept tied to completion rings.
func (r *Ring) AdvanceHead() {
	r.nextToUse = (r.nextToUse + 1) % r.RealCount()
}

// AdvanceTail moves the consumer index forward by one slot, modulo
// RealCount, flipping the ring's expected color whenever the index wraps
// back to 0.
func (r *Ring) AdvanceTail() {
	r.nextToClean = (r.nextToClean + 1) % r.RealCount()
	if r.nextToClean == 0 {
		r.color = !r.color
	}
}

// AdvanceHeadBy moves the producer index forward by n slots, as used when
// refilling an Rx ring in batches.
func (r *Ring) AdvanceHeadBy(n uint32) {
	r.nextToUse = (r.nextToUse + n) % r.RealCount()
}

// SetNextToClean sets the consumer index directly, as used after reading a
// Tx ring's write-back status to catch up in one step rather than one
// AdvanceTail per reclaimed descriptor.
func (r *Ring) SetNextToClean(v uint32) {
	r.nextToClean = v % r.RealCount()
}

// InFlight is the number of descriptors the device has not yet consumed.
func (r *Ring) InFlight() uint32 {
	real := r.RealCount()
	return (r.nextToUse - r.nextToClean + real) % real
}

// Destroy releases the ring's state. The backing DMA buffer is owned by the
// caller and is not freed here.
func (r *Ring) Destroy() {
	r.desc = nil
	r.nextToUse = 0
	r.nextToClean = 0
}

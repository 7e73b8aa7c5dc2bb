package qdma

import "encoding/binary"

// H2CDescriptorSize is the wire size in bytes of a host-to-card descriptor.
const H2CDescriptorSize = 16

// C2HDescriptorSize is the wire size in bytes of a card-to-host descriptor.
const C2HDescriptorSize = 8

// CompletionEntrySize is the wire size in bytes of a completion ring entry.
const CompletionEntrySize = 8

// WriteBackSize is the wire size in bytes of a descriptor ring write-back
// status block.
const WriteBackSize = 8

// H2CDescriptor describes one outbound (host-to-card) buffer: a source
// address and length, plus a metadata word the engine copies verbatim into
// the completion the queue produces for it.
type H2CDescriptor struct {
	Metadata uint32
	Length   uint16
	SrcAddr  uint64
}

// Marshal packs the descriptor into its 16-byte little-endian wire form:
// metadata(4) | length(2) | rsvd(2) | src_addr(8).
func (d H2CDescriptor) Marshal(buf []byte) {
	_ = buf[:H2CDescriptorSize]
	binary.LittleEndian.PutUint32(buf[0:4], d.Metadata)
	binary.LittleEndian.PutUint16(buf[4:6], d.Length)
	binary.LittleEndian.PutUint64(buf[8:16], d.SrcAddr)
}

// UnmarshalH2CDescriptor unpacks a 16-byte H2C descriptor.
func UnmarshalH2CDescriptor(buf []byte) H2CDescriptor {
	_ = buf[:H2CDescriptorSize]
	return H2CDescriptor{
		Metadata: binary.LittleEndian.Uint32(buf[0:4]),
		Length:   binary.LittleEndian.Uint16(buf[4:6]),
		SrcAddr:  binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// C2HDescriptor describes one inbound (card-to-host) buffer: just the
// destination address of a page the driver has posted to the ring. Its
// length is implicit in the ring's configured buffer size.
type C2HDescriptor struct {
	DstAddr uint64
}

// Marshal packs the descriptor into its 8-byte little-endian wire form.
func (d C2HDescriptor) Marshal(buf []byte) {
	_ = buf[:C2HDescriptorSize]
	binary.LittleEndian.PutUint64(buf[0:8], d.DstAddr)
}

// UnmarshalC2HDescriptor unpacks an 8-byte C2H descriptor.
func UnmarshalC2HDescriptor(buf []byte) C2HDescriptor {
	_ = buf[:C2HDescriptorSize]
	return C2HDescriptor{DstAddr: binary.LittleEndian.Uint64(buf[0:8])}
}

// CompletionEntry is one slot of a completion ring: the outcome of a single
// posted C2H buffer. Color alternates on every wrap of the ring so the
// driver can tell a freshly written entry from a stale one without a
// separate doorbell read.
type CompletionEntry struct {
	Color  bool
	Err    bool
	Length uint16
	PktID  uint16
}

const (
	cmplColorPos  = 0
	cmplErrPos    = 1
	cmplLengthPos = 16
	cmplLengthMask = 0xffff
	cmplPktIDShift = 32
)

// Marshal packs the completion entry into its 8-byte little-endian wire
// form: word0{color:1, err:1, rsvd:14, length:16} | word1{pkt_id:16, rsvd:16}.
func (c CompletionEntry) Marshal(buf []byte) {
	_ = buf[:CompletionEntrySize]

	var w0 uint32
	if c.Color {
		w0 |= 1 << cmplColorPos
	}
	if c.Err {
		w0 |= 1 << cmplErrPos
	}
	w0 |= uint32(c.Length&cmplLengthMask) << cmplLengthPos

	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.PktID))
}

// UnmarshalCompletionEntry unpacks an 8-byte completion entry.
func UnmarshalCompletionEntry(buf []byte) CompletionEntry {
	_ = buf[:CompletionEntrySize]

	w0 := binary.LittleEndian.Uint32(buf[0:4])
	w1 := binary.LittleEndian.Uint32(buf[4:8])

	return CompletionEntry{
		Color:  w0&(1<<cmplColorPos) != 0,
		Err:    w0&(1<<cmplErrPos) != 0,
		Length: uint16((w0 >> cmplLengthPos) & cmplLengthMask),
		PktID:  uint16(w1),
	}
}

// WriteBackStatus is the ring write-back block the engine periodically DMAs
// to host memory so the driver can learn the engine's progress without a
// register read: its own consumer index and, for C2H rings, the producer
// index of a companion completion ring.
type WriteBackStatus struct {
	PIDX uint16
	CIDX uint16
}

// Marshal packs the write-back status into its 8-byte little-endian wire
// form: pidx(2) | cidx(2) | rsvd(4).
func (w WriteBackStatus) Marshal(buf []byte) {
	_ = buf[:WriteBackSize]
	binary.LittleEndian.PutUint16(buf[0:2], w.PIDX)
	binary.LittleEndian.PutUint16(buf[2:4], w.CIDX)
}

// UnmarshalWriteBackStatus unpacks an 8-byte write-back status block.
func UnmarshalWriteBackStatus(buf []byte) WriteBackStatus {
	_ = buf[:WriteBackSize]
	return WriteBackStatus{
		PIDX: binary.LittleEndian.Uint16(buf[0:2]),
		CIDX: binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// CompletionTrailer is the last entry a completion ring's write-back block
// carries: its own producer/consumer indices, the ring's current color, and
// the interrupt state, read by the driver to decide whether to re-arm.
type CompletionTrailer struct {
	PIDX      uint16
	CIDX      uint16
	Color     bool
	IntrState uint8
}

// Marshal packs the completion trailer into its 8-byte little-endian wire
// form: pidx(2) | cidx(2) | color(1) | intr_state(1) | rsvd(2).
func (t CompletionTrailer) Marshal(buf []byte) {
	_ = buf[:8]
	binary.LittleEndian.PutUint16(buf[0:2], t.PIDX)
	binary.LittleEndian.PutUint16(buf[2:4], t.CIDX)

	var flags byte
	if t.Color {
		flags |= 1
	}
	buf[4] = flags
	buf[5] = t.IntrState
}

// UnmarshalCompletionTrailer unpacks an 8-byte completion trailer.
func UnmarshalCompletionTrailer(buf []byte) CompletionTrailer {
	_ = buf[:8]
	return CompletionTrailer{
		PIDX:      binary.LittleEndian.Uint16(buf[0:2]),
		CIDX:      binary.LittleEndian.Uint16(buf[2:4]),
		Color:     buf[4]&1 != 0,
		IntrState: buf[5],
	}
}

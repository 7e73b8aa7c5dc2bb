package pci

const (
	msixOffsetMessageControl = 0 // upper 16 bits of the capability's first word
	msixOffsetTable          = 4
	msixOffsetPBA            = 8

	msixEnableBit = 31 // bit 15 of Message Control, i.e. bit 31 of word 0
	msixTableSize = 0x7ff

	msixEntrySize = 16 // bytes per MSI-X table entry
)

// CapabilityMSIX represents an MSI-X Capability Structure (PCI Local Bus
// Specification 3.0, §6.8.2).
type CapabilityMSIX struct {
	CapabilityHeader
	MessageControl uint16
	TableOffset    uint32
	PBAOffset      uint32

	device *Device
	off    uint32
}

// Unmarshal decodes the MSI-X capability from the device configuration
// space at the given register offset.
func (msix *CapabilityMSIX) Unmarshal(d *Device, off uint32) {
	val := d.Read(off)
	msix.ID = uint8(val)
	msix.Next = uint8(val >> 8)
	msix.MessageControl = uint16(val >> 16)

	msix.TableOffset = d.Read(off + msixOffsetTable)
	msix.PBAOffset = d.Read(off + msixOffsetPBA)

	msix.device = d
	msix.off = off
}

// TableSize returns the number of entries in the MSI-X table.
func (msix *CapabilityMSIX) TableSize() int {
	return int(msix.MessageControl&msixTableSize) + 1
}

// TableBIR returns the index of the BAR that contains the MSI-X table.
func (msix *CapabilityMSIX) TableBIR() int {
	return int(msix.TableOffset & 0b111)
}

// TableByteOffset returns the byte offset of the MSI-X table within its BAR.
func (msix *CapabilityMSIX) TableByteOffset() uint32 {
	return msix.TableOffset &^ 0b111
}

// EnableInterrupt programs MSI-X table entry n to deliver interrupts by
// writing addr/data to the entry and unmasking it, then asserts the
// capability's global MSI-X Enable bit. bar must be the window obtained by
// mapping the BAR named by TableBIR.
func (msix *CapabilityMSIX) EnableInterrupt(bar BAR, n int, addr uint64, data uint32) {
	if n >= msix.TableSize() || msix.device == nil {
		return
	}

	off := msix.TableByteOffset() + uint32(n*msixEntrySize)

	bar.Write32(off+0, uint32(addr))
	bar.Write32(off+4, uint32(addr>>32))
	bar.Write32(off+8, data)
	bar.Write32(off+12, 0) // vector control: clear mask bit

	msix.device.Write(msix.off, uint32(1)<<msixEnableBit)
}

// MaskInterrupt sets the per-vector mask bit without disturbing the
// address/data pair, used to quiesce the error vector during teardown.
func (msix *CapabilityMSIX) MaskInterrupt(bar BAR, n int) {
	if n >= msix.TableSize() {
		return
	}

	off := msix.TableByteOffset() + uint32(n*msixEntrySize)
	bar.Write32(off+12, 1)
}

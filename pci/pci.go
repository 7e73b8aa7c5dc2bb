// Package pci models the PCIe function the DMA engine attaches to.
//
// Bus enumeration, BDF assignment and resource allocation are host OS
// glue and out of scope for this package — Device is constructed by that
// glue and handed to the driver already bound to one function, with its
// configuration space and BAR windows reachable through the ConfigSpace
// and BAR interfaces below.
package pci

import "github.com/open-nic/onic-driver/bits"

// Header Type 0x0 offsets relevant to this driver.
const (
	OffsetVendorID   = 0x00
	OffsetCommand    = 0x04
	OffsetRevisionID = 0x08
	OffsetBAR0       = 0x10
	OffsetCapList    = 0x34
)

// BAR type bits (PCI Local Bus Specification, 6.2.5.1).
const (
	barTypeMem32 = 0
	barTypeMem64 = 2
)

// ConfigSpace abstracts access to a function's configuration space,
// implemented by the host OS PCI glue (sysfs config file, VFIO config
// region, or a platform-specific ECAM accessor).
type ConfigSpace interface {
	Read(fn uint32, off uint32) uint32
	Write(fn uint32, off uint32, val uint32)
}

// BAR abstracts a mapped memory Base Address Register window, i.e. the
// result of mmap-ing the kernel's resourceN file (or a VFIO region) for
// one of the device's BARs.
type BAR interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// SupportedDevice describes one entry of the static vendor/device ID
// table: a given device ID identifies a specific function role, PCIe
// lane width and silicon generation combination, not just a product
// line.
type SupportedDevice struct {
	Vendor     uint16
	Device     uint16
	Function   int // PCI function number this ID is valid for
	Lanes      int // PCIe lane width (x1, x4, x8, x16)
	Generation int // PCIe generation (1, 2, 3, 4)
}

// SupportedDevices is the static table of vendor/device IDs recognized by
// this driver. Real deployments extend this table per board; it is kept
// here rather than derived so that probing stays a constant-time lookup.
var SupportedDevices = []SupportedDevice{
	{Vendor: 0x10ee, Device: 0x9031, Function: 0, Lanes: 16, Generation: 3},
	{Vendor: 0x10ee, Device: 0x9032, Function: 1, Lanes: 16, Generation: 3},
	{Vendor: 0x10ee, Device: 0x9034, Function: 0, Lanes: 8, Generation: 4},
	{Vendor: 0x10ee, Device: 0x9035, Function: 1, Lanes: 8, Generation: 4},
}

// Supported reports whether (vendor, device) appears in the static table.
func Supported(vendor, device uint16) (SupportedDevice, bool) {
	for _, d := range SupportedDevices {
		if d.Vendor == vendor && d.Device == device {
			return d, true
		}
	}
	return SupportedDevice{}, false
}

// Device represents one PCI function bound to this driver.
type Device struct {
	Bus    uint32
	Slot   uint32
	Func   uint32
	Vendor uint16
	DevID  uint16

	Config ConfigSpace
}

// Read reads the device configuration space for the given register
// offset, at this device's function.
func (d *Device) Read(off uint32) uint32 {
	return d.Config.Read(d.Func, off)
}

// Write writes the device configuration space for the given register
// offset, at this device's function. The offset must be 32-bit aligned.
func (d *Device) Write(off uint32, val uint32) {
	d.Config.Write(d.Func, off, val)
}

// BaseAddress returns a 64-bit-decoded Base Address Register value. A
// 64-bit BAR spans two consecutive 32-bit slots; n must name the low
// slot (0, 2, or 4).
func (d *Device) BaseAddress(n int) uint64 {
	if n > 5 {
		return 0
	}

	off := uint32(OffsetBAR0) + uint32(n)*4
	lo := d.Read(off)

	switch bits.GetN(lo, 1, 0b11) {
	case barTypeMem32:
		return uint64(lo &^ 0xf)
	case barTypeMem64:
		hi := d.Read(off + 4)
		return uint64(hi)<<32 | uint64(lo&^0xf)
	}

	return 0
}

// CapabilityHeader represents the common fields of a PCI Capabilities List
// entry.
type CapabilityHeader struct {
	ID   uint8
	Next uint8
}

func (hdr *CapabilityHeader) unmarshal(d *Device, off uint32) {
	val := d.Read(off)
	hdr.ID = uint8(val)
	hdr.Next = uint8(val >> 8)
}

// Capabilities iterates the device's Capabilities List.
func (d *Device) Capabilities(yield func(off uint32, hdr CapabilityHeader) bool) {
	off := d.Read(OffsetCapList) & 0xfc

	for off != 0 {
		var hdr CapabilityHeader
		hdr.unmarshal(d, off)

		if !yield(off, hdr) {
			return
		}

		off = uint32(hdr.Next) & 0xfc
	}
}

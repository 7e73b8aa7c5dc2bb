package pci

// Capability IDs (PCI Code and ID Assignment Specification, §2).
const (
	CapNull           = 0x00
	CapPower          = 0x01
	CapVPD            = 0x03
	CapMSI            = 0x05
	CapVendorSpecific = 0x09
	CapPCIe           = 0x10
	MSIX              = 0x11
)

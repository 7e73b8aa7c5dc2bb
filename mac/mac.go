// Package mac defines the driver's boundary with the MAC/PHY register
// tables: only the interfaces the core calls through are specified here,
// per the out-of-scope note in the system overview. The register layouts
// and per-port statistic readout themselves belong to the shell (BAR 2)
// implementation, not this package.
package mac

import "net"

// LinkState is the result of a link query.
type LinkState struct {
	Up      bool
	SpeedMb int
}

// CounterSnapshot is one read of the per-port MAC counters the ethtool-like
// surface exposes. Names mirror what a real shell reports; values are
// 64-bit running totals.
type CounterSnapshot struct {
	Names  []string
	Values []uint64
}

// Controller is the external collaborator that owns the shell (BAR 2) MAC
// and PHY register tables for one port.
type Controller interface {
	// Reset brings the MAC out of reset and waits for the shell-enable
	// sequence to complete. It takes no timeout argument: the bound on
	// that wait is chosen by the implementation rather than the source's
	// unbounded poll (see the open question on the MAC reset wait).
	Reset() error

	// SetMACAddress programs the port's station address.
	SetMACAddress(addr net.HardwareAddr) error

	// SetRSFEC enables or disables RS-FEC on the MAC instance, driven by
	// the RS_FEC_ENABLED boot-time flag.
	SetRSFEC(enabled bool) error

	// LinkState reports carrier state, read twice per the register
	// contract's "read twice to flush latched" requirement before the
	// result is trusted.
	LinkState() (LinkState, error)

	// Counters returns the current per-port MAC counter snapshot.
	Counters() (CounterSnapshot, error)
}

// DefaultOUI is the fixed organizationally unique identifier prefix used to
// synthesize a MAC address when none is configured: the remaining three
// octets are randomized.
var DefaultOUI = [3]byte{0x00, 0x0a, 0x35}

// GenerateAddress builds a MAC address from DefaultOUI and three
// caller-supplied random octets (random source left to the caller so this
// package has no global RNG dependency).
func GenerateAddress(random [3]byte) net.HardwareAddr {
	return net.HardwareAddr{
		DefaultOUI[0], DefaultOUI[1], DefaultOUI[2],
		random[0], random[1], random[2],
	}
}

// LinkUp reports carrier state as the logical AND of the stack's own
// carrier flag and a device-status bit — the
// `onic_get_link` ambiguity resolved in favor of requiring both.
func LinkUp(netifCarrierOK bool, deviceStatusBit bool) bool {
	return netifCarrierOK && deviceStatusBit
}

package onic

import "fmt"

// DriverInfo is the ethtool-like driver identification block.
type DriverInfo struct {
	Driver  string
	Version string
	BusInfo string
}

// driverVersion is bumped on release; no build system wires this from a
// tag, so it stays a plain constant.
const driverVersion = "0.1.0"

// DriverInfo returns the static driver identification block.
func (d *Device) DriverInfo() DriverInfo {
	return DriverInfo{
		Driver:  "onic",
		Version: driverVersion,
		BusInfo: fmt.Sprintf("%04x:%02x:%02x.%x", 0, d.pciDev.Bus, d.pciDev.Slot, d.pciDev.Func),
	}
}

// LinkState reports whether the port is up, combining the MAC shell's
// carrier read with the device's own running state per mac.LinkUp's AND
// rule: a port cannot be "up" while the data plane itself is stopped.
func (d *Device) LinkState() (LinkStateReport, error) {
	ls, err := d.macCtl.LinkState()
	if err != nil {
		return LinkStateReport{}, fmt.Errorf("onic: link state: %w", err)
	}

	return LinkStateReport{
		Up:      ls.Up && d.carrierOn(),
		SpeedMb: ls.SpeedMb,
	}, nil
}

// LinkStateReport mirrors mac.LinkState after the device-running AND.
type LinkStateReport struct {
	Up      bool
	SpeedMb int
}

// CounterEntry is one named counter value in the ethtool-like counters
// surface.
type CounterEntry struct {
	Name  string
	Value uint64
}

// CounterNamesAndValues reports every driver counter (Tx/Rx/XDP/bulk) and
// every MAC shell counter as a flat name/value list, the shape ethtool -S
// reports over.
func (d *Device) CounterNamesAndValues() ([]CounterEntry, error) {
	t := d.Counters()

	entries := []CounterEntry{
		{"tx_packets", t.TxPackets},
		{"tx_bytes", t.TxBytes},
		{"tx_dropped", t.TxDropped},
		{"tx_errors", t.TxErrors},
		{"rx_packets", t.RxPackets},
		{"rx_bytes", t.RxBytes},
		{"rx_dropped", t.RxDropped},
		{"rx_errors", t.RxErrors},
		{"xdp_pass", t.XDPPass},
		{"xdp_drop", t.XDPDrop},
		{"xdp_tx", t.XDPTx},
		{"xdp_tx_errors", t.XDPTxErr},
		{"xdp_redirect", t.XDPRedirect},
		{"bulk_xmit", t.BulkXmit},
		{"bulk_xmit_errors", t.BulkXmitErr},
	}

	mc, err := d.macCtl.Counters()
	if err != nil {
		return nil, fmt.Errorf("onic: mac counters: %w", err)
	}
	for i, name := range mc.Names {
		entries = append(entries, CounterEntry{Name: name, Value: mc.Values[i]})
	}

	return entries, nil
}

// RSSIndirectionSize is the fixed size of the RSS indirection table this
// driver exposes.
const RSSIndirectionSize = 128

// RSSKeySize is the fixed size, in bytes, of the RSS hash key.
const RSSKeySize = 40

// rssState holds the current RSS indirection table and key. Actual RSS
// steering is programmed by the shell (BAR 2), out of this package's scope
// per the system overview; these getters/setters are the OS-facing surface
// over whatever the shell reports and accepts.
type rssState struct {
	indirection [RSSIndirectionSize]uint8
	key         [RSSKeySize]byte
}

// RSSIndirectionTable returns a copy of the current indirection table.
func (d *Device) RSSIndirectionTable() [RSSIndirectionSize]uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rss.indirection
}

// SetRSSIndirectionTable installs a new indirection table. Every entry must
// address a configured Rx queue.
func (d *Device) SetRSSIndirectionTable(table [RSSIndirectionSize]uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, q := range table {
		if int(q) >= d.cfg.NumRxQueues {
			return fmt.Errorf("onic: rss indirection entry %d selects queue %d, only %d configured", i, q, d.cfg.NumRxQueues)
		}
	}

	d.rss.indirection = table
	return nil
}

// RSSKey returns a copy of the current RSS hash key.
func (d *Device) RSSKey() [RSSKeySize]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rss.key
}

// SetRSSKey installs a new RSS hash key.
func (d *Device) SetRSSKey(key [RSSKeySize]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rss.key = key
}

package onic

import (
	"net"
	"testing"

	"github.com/open-nic/onic-driver/dma"
	"github.com/open-nic/onic-driver/hook"
	"github.com/open-nic/onic-driver/mac"
	"github.com/open-nic/onic-driver/pci"
	"github.com/open-nic/onic-driver/reg"
)

type fakeMAC struct {
	resetCalls int
	addr       net.HardwareAddr
	rsfec      bool
	linkUp     bool
}

func (f *fakeMAC) Reset() error { f.resetCalls++; return nil }

func (f *fakeMAC) SetMACAddress(addr net.HardwareAddr) error {
	f.addr = addr
	return nil
}

func (f *fakeMAC) SetRSFEC(enabled bool) error {
	f.rsfec = enabled
	return nil
}

func (f *fakeMAC) LinkState() (mac.LinkState, error) {
	return mac.LinkState{Up: f.linkUp, SpeedMb: 100000}, nil
}

func (f *fakeMAC) Counters() (mac.CounterSnapshot, error) {
	return mac.CounterSnapshot{Names: []string{"rx_crc_errors"}, Values: []uint64{0}}, nil
}

func testConfig() Config {
	return Config{
		Name:              "onic0",
		FuncID:            0,
		QBase:             0,
		QMax:              8,
		NumTxQueues:       2,
		NumRxQueues:       2,
		TxRingSizeIdx:     1, // 128 entries
		RxDescRingSizeIdx: 1,
		RxCmplRingSizeIdx: 1,
		PageSize:          2048,
		Headroom:          128,
		RSFECEnabled:      true,
	}
}

func newTestDevice(t *testing.T) (*Device, *fakeMAC) {
	t.Helper()

	bar0 := reg.NewWindow(make([]byte, 0x10000))
	bar2 := reg.NewWindow(make([]byte, 0x1000))
	pciDev := &pci.Device{Bus: 0, Slot: 1, Func: 0}
	m := &fakeMAC{linkUp: true}

	d := New(testConfig(), pciDev, bar0, bar2, m)
	return d, m
}

func TestDeviceQIDTranslation(t *testing.T) {
	d, _ := newTestDevice(t)
	d.cfg.QBase = 16

	for i, want := range map[int]uint16{0: 16, 1: 17, 7: 23} {
		if got := d.deviceQID(i); got != want {
			t.Fatalf("deviceQID(%d): got %d want %d", i, got, want)
		}
	}
}

func TestOpenInitializesAllQueuesAndStopTearsDown(t *testing.T) {
	d, m := newTestDevice(t)

	region := dma.NewRegion(0x1000_0000, 16*1024*1024)

	if err := d.Open(region, 8); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !d.isOpen() {
		t.Fatalf("device not marked open")
	}
	if m.resetCalls != 1 {
		t.Fatalf("mac reset calls: got %d want 1", m.resetCalls)
	}
	if !m.rsfec {
		t.Fatalf("rsfec not enabled")
	}
	if d.hwAddr == nil {
		t.Fatalf("no mac address generated")
	}

	for i := 0; i < d.cfg.NumTxQueues; i++ {
		if d.txQueues[i] == nil {
			t.Fatalf("tx queue %d not initialized", i)
		}
	}
	for i := 0; i < d.cfg.NumRxQueues; i++ {
		if d.rxQueues[i] == nil {
			t.Fatalf("rx queue %d not initialized", i)
		}
		if d.rxPools[i] == nil {
			t.Fatalf("rx pool %d not initialized", i)
		}
	}

	if err := d.Open(region, 8); err != ErrAlreadyOpen {
		t.Fatalf("second Open: got %v want ErrAlreadyOpen", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if d.isOpen() {
		t.Fatalf("device still marked open after Stop")
	}
	for i := 0; i < d.cfg.NumTxQueues; i++ {
		if d.txQueues[i] != nil {
			t.Fatalf("tx queue %d not torn down", i)
		}
	}
	for i := 0; i < d.cfg.NumRxQueues; i++ {
		if d.rxQueues[i] != nil {
			t.Fatalf("rx queue %d not torn down", i)
		}
		if d.rxPools[i] != nil {
			t.Fatalf("rx pool %d not released", i)
		}
	}

	if err := d.Stop(); err != ErrNotOpen {
		t.Fatalf("second Stop: got %v want ErrNotOpen", err)
	}
}

// countingProgram is a minimal hook.Program fake that passes every frame;
// installing and removing it exercises SetProgram's restart semantics.
type countingProgram struct{}

func (countingProgram) Run(ctx *hook.Context, f *hook.Frame) hook.Verdict { return hook.Pass }

func TestSetProgramRestartsOnlyOnEnableDisableTransition(t *testing.T) {
	d, _ := newTestDevice(t)
	region := dma.NewRegion(0x2000_0000, 16*1024*1024)

	if err := d.Open(region, 8); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rxBefore := d.rxQueues[0]

	// Installing a real program while none was loaded is an enable
	// transition: expect a restart (new Rx queue objects).
	if err := d.SetProgram(countingProgram{}); err != nil {
		t.Fatalf("SetProgram enable: %v", err)
	}
	if d.rxQueues[0] == rxBefore {
		t.Fatalf("expected rx queue restart on hook enable")
	}
	if hook.IsNoop(d.program.Load()) {
		t.Fatalf("program not installed")
	}

	rxAfter := d.rxQueues[0]

	// Installing a second real program is not a transition: no restart.
	if err := d.SetProgram(countingProgram{}); err != nil {
		t.Fatalf("SetProgram replace: %v", err)
	}
	if d.rxQueues[0] != rxAfter {
		t.Fatalf("expected no rx queue restart on program replace")
	}

	// Removing the program (nil) is a disable transition: expect a
	// restart back to pool direction FromDevice.
	if err := d.SetProgram(nil); err != nil {
		t.Fatalf("SetProgram disable: %v", err)
	}
	if !hook.IsNoop(d.program.Load()) {
		t.Fatalf("program still installed after disable")
	}
	if d.rxQueues[0] == rxAfter {
		t.Fatalf("expected rx queue restart on hook disable")
	}
}

func TestVectorForQueue(t *testing.T) {
	d, _ := newTestDevice(t)
	region := dma.NewRegion(0x3000_0000, 16*1024*1024)

	if err := d.Open(region, 8); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Stop()

	v0 := d.vectorForQueue(0)
	v1 := d.vectorForQueue(1)
	if v0 == v1 {
		t.Fatalf("expected distinct vectors per rx queue, both got %d", v0)
	}
}

func TestChangeMTURejectsOutOfRange(t *testing.T) {
	d, _ := newTestDevice(t)

	if err := d.ChangeMTU(9000); err != nil {
		t.Fatalf("ChangeMTU in range: %v", err)
	}
	if d.MTU() != 9000 {
		t.Fatalf("MTU: got %d want 9000", d.MTU())
	}

	if err := d.ChangeMTU(40); err == nil {
		t.Fatalf("expected error for MTU below MinMTU")
	}
	if err := d.ChangeMTU(20000); err == nil {
		t.Fatalf("expected error for MTU above MaxMTU")
	}
}

func TestCounterNamesAndValuesIncludesMACCounters(t *testing.T) {
	d, _ := newTestDevice(t)

	entries, err := d.CounterNamesAndValues()
	if err != nil {
		t.Fatalf("CounterNamesAndValues: %v", err)
	}

	found := false
	for _, e := range entries {
		if e.Name == "rx_crc_errors" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mac counter rx_crc_errors in combined list")
	}
}

func TestSetRSSIndirectionTableRejectsOutOfRangeQueue(t *testing.T) {
	d, _ := newTestDevice(t)

	var table [RSSIndirectionSize]uint8
	table[0] = uint8(d.cfg.NumRxQueues) // one past the last configured queue

	if err := d.SetRSSIndirectionTable(table); err == nil {
		t.Fatalf("expected error for out-of-range rss indirection entry")
	}

	table[0] = 0
	if err := d.SetRSSIndirectionTable(table); err != nil {
		t.Fatalf("SetRSSIndirectionTable: %v", err)
	}
}

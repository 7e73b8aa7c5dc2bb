// Package onic ties the register I/O, context programmer, ring, page pool,
// interrupt topology and Tx/Rx pipeline packages into one PCI-function-scoped
// device: queue-pair lifecycle, hook program installation, and the
// OS-facing network-interface and ethtool-like surfaces.
package onic

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/open-nic/onic-driver/dma"
	"github.com/open-nic/onic-driver/hook"
	"github.com/open-nic/onic-driver/intx"
	"github.com/open-nic/onic-driver/mac"
	"github.com/open-nic/onic-driver/pagepool"
	"github.com/open-nic/onic-driver/pci"
	"github.com/open-nic/onic-driver/qdma"
	"github.com/open-nic/onic-driver/reg"
	"github.com/open-nic/onic-driver/stats"
	"github.com/open-nic/onic-driver/txrx"
)

// MaxQueues bounds the per-function queue-pair count (ONIC_MAX_QUEUES).
const MaxQueues = 64

// pageAlign is the DMA allocation alignment used for every ring and page
// pool reservation, matching the engine's page-granular addressing.
const pageAlign = 4096

// device state bits, accessed only through atomic bit test-and-set/clear.
const (
	stateOpen uint32 = 1 << iota
	stateCarrierOn
)

var (
	// ErrNotOpen is returned by operations that require the device to be
	// running.
	ErrNotOpen = errors.New("onic: device not open")
	// ErrAlreadyOpen is returned by Open on an already-running device.
	ErrAlreadyOpen = errors.New("onic: device already open")
)

// Config is the boot-time configuration of one PCI-function-scoped device
// instance.
type Config struct {
	Name string

	// FuncID and QBase/QMax describe this function's slice of the
	// device-global queue ID space (the function-map context).
	FuncID uint8
	QBase  uint16
	QMax   uint16

	NumTxQueues int
	NumRxQueues int

	TxRingSizeIdx     int
	RxDescRingSizeIdx int
	RxCmplRingSizeIdx int

	PageSize int
	Headroom int

	// RSFECEnabled mirrors the RS_FEC_ENABLED boot flag (default on),
	// applied to both MAC instances.
	RSFECEnabled bool

	MailboxEnabled bool
	UserIRQEnabled bool
	MasterPF       bool
}

// queueRegisters bundles the register-backed collaborators one queue pair's
// Tx/Rx pipeline needs, built from the device's BAR windows and DMA region.
type queueRegisters struct {
	doorbells *doorbells
	errClear  *globalErrorClearer
}

// Device represents one PCI function bound to this driver.
type Device struct {
	// mu serializes control-plane operations (Open/Stop/SetProgram/queue
	// init-teardown) against each other. It is never held on the data
	// path: Tx enqueue and Rx poll run lock-free against their own
	// queue's state once the queue exists.
	mu sync.Mutex

	cfg    Config
	pciDev *pci.Device
	bar0   *reg.Window
	bar2   *reg.Window

	programmer *qdma.Programmer
	macCtl     mac.Controller
	counters   *stats.Counters
	program    *hook.Handle
	dispatcher *intx.Dispatcher
	vectors    []intx.Assignment

	region *dma.Region

	hwAddr net.HardwareAddr
	mtu    int

	state uint32 // atomic bitset: stateOpen, stateCarrierOn

	txQueues    [MaxQueues]*txrx.TxQueue
	rxQueues    [MaxQueues]*txrx.RxQueue
	rxPools     [MaxQueues]*pagepool.Pool
	regs        [MaxQueues]queueRegisters
	txRings     [MaxQueues]*qdma.Ring
	rxDescRings [MaxQueues]*qdma.Ring
	rxCmplRings [MaxQueues]*qdma.Ring

	fmapInstalled bool
	rss           rssState

	net netEndpoint // gvisor wiring, see netstack.go
}

// New constructs a device over an already-probed PCI function and its
// mapped BAR windows. bar0 carries the DMA engine (indirect context window,
// doorbells, global error register); bar2 carries the MAC/PHY shell
// registers macCtl's implementation is expected to also address directly.
func New(cfg Config, pciDev *pci.Device, bar0, bar2 *reg.Window, macCtl mac.Controller) *Device {
	if cfg.NumTxQueues > MaxQueues || cfg.NumRxQueues > MaxQueues {
		panic("onic: queue count exceeds MaxQueues")
	}

	d := &Device{
		cfg:        cfg,
		pciDev:     pciDev,
		bar0:       bar0,
		bar2:       bar2,
		programmer: qdma.NewProgrammer(bar0),
		macCtl:     macCtl,
		counters:   stats.New(),
		program:    hook.NewHandle(),
		mtu:        1500,
	}

	return d
}

// deviceQID translates a per-function queue index to the device-global
// queue ID the context programmer and doorbells address, per the
// function-map translation testable property: qid = index + QBase.
func (d *Device) deviceQID(index int) uint16 {
	return d.cfg.QBase + uint16(index)
}

func (d *Device) isOpen() bool {
	return atomic.LoadUint32(&d.state)&stateOpen != 0
}

func (d *Device) carrierOn() bool {
	return atomic.LoadUint32(&d.state)&stateCarrierOn != 0
}

func (d *Device) setState(bit uint32) {
	for {
		old := atomic.LoadUint32(&d.state)
		if old&bit != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&d.state, old, old|bit) {
			return
		}
	}
}

func (d *Device) clearState(bit uint32) {
	for {
		old := atomic.LoadUint32(&d.state)
		if old&bit == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&d.state, old, old&^bit) {
			return
		}
	}
}

// Open brings the device up: installs the function map, resets the MAC,
// assigns MSI-X vectors, and initializes every configured Tx/Rx queue pair.
func (d *Device) Open(region *dma.Region, vectorsGranted int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isOpen() {
		return ErrAlreadyOpen
	}

	d.region = region

	if err := d.installFunctionMap(); err != nil {
		return fmt.Errorf("onic: function map install: %w", err)
	}

	if err := d.macCtl.Reset(); err != nil {
		d.teardownFunctionMap()
		return fmt.Errorf("onic: mac reset: %w", err)
	}

	if err := d.macCtl.SetRSFEC(d.cfg.RSFECEnabled); err != nil {
		d.teardownFunctionMap()
		return fmt.Errorf("onic: set rsfec: %w", err)
	}

	if d.hwAddr == nil {
		d.hwAddr = mac.GenerateAddress([3]byte{0x00, 0x00, 0x00})
	}
	if err := d.macCtl.SetMACAddress(d.hwAddr); err != nil {
		d.teardownFunctionMap()
		return fmt.Errorf("onic: set mac address: %w", err)
	}

	intxCfg := intx.Config{
		MailboxEnabled: d.cfg.MailboxEnabled,
		UserIRQEnabled: d.cfg.UserIRQEnabled,
		MasterPF:       d.cfg.MasterPF,
		NumRxQueues:    d.cfg.NumRxQueues,
	}
	assignments, err := intx.Assign(intxCfg, vectorsGranted)
	if err != nil {
		d.teardownFunctionMap()
		return fmt.Errorf("onic: msi-x allocation: %w", err)
	}
	d.vectors = assignments
	d.dispatcher = intx.NewDispatcher(assignments, d.cfg.FuncID, d.runBottomHalf, d.wakeRxQueue)

	if err := d.startDataPlane(); err != nil {
		d.teardownFunctionMap()
		return err
	}

	d.setState(stateOpen)
	d.setState(stateCarrierOn)

	return nil
}

// Stop brings the device down: marks carrier off, tears down every Rx then
// Tx queue, and removes the function map. Mirrors Open's steps in reverse.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isOpen() {
		return ErrNotOpen
	}

	d.clearState(stateCarrierOn)

	if err := d.stopDataPlane(); err != nil {
		return err
	}

	d.teardownFunctionMap()
	d.clearState(stateOpen)

	return nil
}

// startDataPlane initializes every configured Tx queue then every configured
// Rx queue, unwinding anything already brought up on failure.
func (d *Device) startDataPlane() error {
	for i := 0; i < d.cfg.NumTxQueues; i++ {
		if err := d.initTxQueue(i); err != nil {
			for j := 0; j < i; j++ {
				d.teardownTxQueue(j)
			}
			return fmt.Errorf("onic: init tx queue %d: %w", i, err)
		}
	}

	for i := 0; i < d.cfg.NumRxQueues; i++ {
		if err := d.initRxQueue(i); err != nil {
			for j := 0; j < i; j++ {
				d.teardownRxQueue(j)
			}
			for j := 0; j < d.cfg.NumTxQueues; j++ {
				d.teardownTxQueue(j)
			}
			return fmt.Errorf("onic: init rx queue %d: %w", i, err)
		}
	}

	return nil
}

// stopDataPlane tears down every Rx queue then every Tx queue: the inverse
// order of startDataPlane.
func (d *Device) stopDataPlane() error {
	for i := 0; i < d.cfg.NumRxQueues; i++ {
		d.teardownRxQueue(i)
	}
	for i := 0; i < d.cfg.NumTxQueues; i++ {
		d.teardownTxQueue(i)
	}
	return nil
}

func (d *Device) runBottomHalf(fn func()) {
	go fn()
}

func (d *Device) wakeRxQueue(index int) {
	if index < 0 || index >= d.cfg.NumRxQueues || d.rxQueues[index] == nil {
		return
	}
	d.rxQueues[index].Poll(index, 64, d.txQueueSlice(), &hook.Context{Transmit: d})
}

func (d *Device) txQueueSlice() []*txrx.TxQueue {
	return d.txQueues[:d.cfg.NumTxQueues]
}

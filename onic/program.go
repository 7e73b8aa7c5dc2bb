package onic

import (
	"fmt"

	"github.com/open-nic/onic-driver/hook"
)

// SetProgram installs prog as the device's packet-processing hook. Per the
// installation/replace rule: if the change is an enable or disable
// transition (one side of the swap is the no-op program) and the device is
// running, the data plane is stopped and restarted around the swap so every
// Rx queue's page pool is reallocated with the right DMA direction and
// headroom; otherwise the new program is published directly and every
// active Rx queue picks it up through the shared handle without a restart.
func (d *Device) SetProgram(prog hook.Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.program.Load()
	transition := hook.IsNoop(old) != hook.IsNoop(prog)

	if transition && d.isOpen() {
		if err := d.stopDataPlane(); err != nil {
			return fmt.Errorf("onic: stop data plane for program swap: %w", err)
		}

		d.program.Swap(prog)

		if err := d.startDataPlane(); err != nil {
			return fmt.Errorf("onic: restart data plane after program swap: %w", err)
		}

		return nil
	}

	d.program.Swap(prog)
	return nil
}

package hal

import (
	"errors"
	"fmt"
	"time"

	"siwtouch/internal/reg"
)

// PowerCtrl is a power sequencing request.
type PowerCtrl int

const (
	PowerOff PowerCtrl = iota
	PowerOn
	PowerSleep
	PowerWake
	PowerHwReset
)

func (c PowerCtrl) String() string {
	switch c {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerSleep:
		return "sleep"
	case PowerWake:
		return "wake"
	case PowerHwReset:
		return "hw_reset"
	}
	return fmt.Sprintf("PowerCtrl(%d)", int(c))
}

// ResetKind selects a reset sequence.
type ResetKind int

const (
	ResetSoft ResetKind = iota
	ResetHardSync
	ResetHardAsync
)

func (k ResetKind) String() string {
	switch k {
	case ResetSoft:
		return "sw"
	case ResetHardSync:
		return "hw_sync"
	case ResetHardAsync:
		return "hw_async"
	}
	return fmt.Sprintf("ResetKind(%d)", int(k))
}

// Power runs a power sequence.
func (d *Device) Power(ctrl PowerCtrl) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power(ctrl)
}

func (d *Device) power(ctrl PowerCtrl) error {
	switch ctrl {
	case PowerOff:
		d.log.Debug("power off", "chip", d.v.Chip)
		d.init = NeedInit
		err := errors.Join(
			d.pl.SetReset(false),
			d.pl.SetVIO(false),
			d.pl.SetVDD(false),
		)
		d.delay(time.Millisecond)
		return err
	case PowerOn:
		d.log.Debug("power on", "chip", d.v.Chip)
		return errors.Join(
			d.pl.SetVDD(true),
			d.pl.SetVIO(true),
			d.pl.SetReset(true),
		)
	case PowerSleep, PowerWake:
		d.log.Info("power", "ctrl", ctrl)
		return nil
	case PowerHwReset:
		return d.reset(ResetHardAsync)
	}
	return fmt.Errorf("power %v: %w", ctrl, ErrInvalidArgument)
}

// Reset runs a reset sequence. ResetHardAsync returns immediately and
// leaves init to the work queue.
func (d *Device) Reset(kind ResetKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset(kind)
}

func (d *Device) reset(kind ResetKind) error {
	d.resetMu.Lock()
	defer d.resetMu.Unlock()

	d.log.Info("reset", "chip", d.v.Chip, "kind", kind)

	var err error
	switch kind {
	case ResetSoft:
		if d.v.CmdReset {
			err = d.resetSoftCmd()
		} else {
			err = d.resetSoftRegs()
		}
		d.init = NeedInit
	case ResetHardAsync:
		err = d.reinit(false, 0, false, nil)
		d.queue(workInit)
	case ResetHardSync:
		err = d.reinit(false, d.o.HwResetDelay, true, d.initChip)
	default:
		return fmt.Errorf("reset %v: %w", kind, ErrInvalidArgument)
	}

	d.o.Hooks.WatchRTCClear()
	return err
}

func (d *Device) resetSoftCmd() error {
	err := errors.Join(
		d.e.Command(reg.CmdEna),
		d.e.Command(reg.CmdResetLow),
	)
	d.delay(time.Millisecond)
	err = errors.Join(err,
		d.e.Command(reg.CmdResetHigh),
		d.e.Command(reg.CmdDis),
	)
	d.delay(d.o.SwResetDelay)
	return err
}

func (d *Device) resetSoftRegs() error {
	d.pl.EnableIRQ(false)

	if err := d.e.WriteValue(d.regs.SprRstCtl, 7); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.SprRstCtl, 0); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.SprBootCtl, 1); err != nil {
		return err
	}
	if _, err := d.waitFor(d.regs.TcFlashDnStatus, d.v.BootReady, ^uint32(0), 10*time.Millisecond, 200); err != nil {
		d.log.Error("boot check failed", err)
		return err
	}
	d.queue(workInit)
	return nil
}

// reinit drops the chip back to NeedInit via a power cycle or a reset
// pulse, waits, then runs fn.
func (d *Device) reinit(powerCycle bool, wait time.Duration, irqEnable bool, fn func() error) error {
	d.pl.EnableIRQ(false)

	var err error
	if powerCycle {
		err = errors.Join(d.power(PowerOff), d.power(PowerOn))
	} else {
		err = d.pl.SetReset(false)
		d.delay(time.Millisecond)
		err = errors.Join(err, d.pl.SetReset(true))
	}
	d.init = NeedInit

	d.delay(wait)

	if fn != nil {
		err = errors.Join(err, fn())
	}
	if irqEnable {
		d.pl.EnableIRQ(true)
	}
	return err
}

// waitFor polls addr until (value & mask) == expect. Each attempt sleeps
// first. It returns the last value read.
func (d *Device) waitFor(addr uint16, expect, mask uint32, interval time.Duration, tries int) (uint32, error) {
	var last uint32
	for range tries {
		d.delay(interval)
		v, err := d.e.ReadValue(addr)
		if err != nil {
			last = 0
			continue
		}
		last = v
		if v&mask == expect {
			return v, nil
		}
	}
	return last, &TimeoutError{Addr: addr, Expect: expect, Mask: mask, Last: last}
}

// clock gates the chip oscillator and clock. Variants without command
// gating only track the sleep state.
func (d *Device) clock(on bool) error {
	if !d.v.CmdClock {
		if on {
			d.sleep = SleepNormal
		} else {
			d.sleep = SleepDeep
		}
		d.log.Info("clock", "on", on)
		return nil
	}

	err := d.e.Command(reg.CmdEna)
	if on {
		err = errors.Join(err,
			d.e.Command(reg.CmdOscOn),
			d.e.Command(reg.CmdClkOn),
		)
		d.sleep = SleepNormal
	} else if d.lcd == reg.ModeU0 {
		err = errors.Join(err,
			d.e.Command(reg.CmdClkOff),
			d.e.Command(reg.CmdOscOff),
		)
		d.sleep = SleepDeep
	}
	err = errors.Join(err, d.e.Command(reg.CmdDis))

	d.log.Info("clock", "on", on, "sleep", d.sleep)
	return err
}

// Clock turns the chip clock on or off.
func (d *Device) Clock(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock(on)
}

func (d *Device) deepSleep() error {
	err := d.tcDriving(reg.ModeStop)
	d.log.Info("deep sleep", "chip", d.v.Chip)
	return errors.Join(err, d.clock(false))
}

// DeepSleep stops touch driving and gates the clock.
func (d *Device) DeepSleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deepSleep()
}

package hal

import (
	"errors"
	"fmt"

	"siwtouch/internal/reg"
)

const chargerPartialHold = 80

// Probe checks the bus and the panel identity. In charger boot the chip is
// parked in deep sleep instead, after a short partial-driving period when
// the variant has one. Probe does not run Init.
func (d *Device) Probe() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.o.BootMode == BootCharger {
		if err := d.chargerPark(); err != nil {
			return err
		}
		d.log.Info("probe done (charger mode)", "chip", d.v.Chip)
		return nil
	}

	d.setTCIDefaults()
	d.setSwipeDefaults()

	if err := d.chipsetCheck(); err != nil {
		d.log.Error("chipset check failed", err, "chip", d.v.Chip)
		return err
	}

	d.lcd = reg.ModeU3
	d.tciDebugType = 1

	d.log.Info("probe done", "chip", d.v.Chip)
	return nil
}

func (d *Device) chargerPark() error {
	if d.v.PartialAllowed() {
		if err := d.tcDriving(reg.ModeU3Partial); err != nil {
			return err
		}
		d.delay(ms(chargerPartialHold))
	}
	return d.deepSleep()
}

// Remove disables the interrupt, powers the chip off and stops the
// monitor and the work queue.
func (d *Device) Remove() error {
	d.mu.Lock()
	d.pl.EnableIRQ(false)
	err := d.power(PowerOff)
	d.mu.Unlock()

	d.log.Info("remove done", "chip", d.v.Chip)
	return errors.Join(err, d.Close())
}

// Suspend handles the display going off: it applies the suspend gesture
// policy, or schedules init when the chip still needs one.
func (d *Device) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspend()
}

func (d *Device) suspend() error {
	if d.o.BootMode == BootCharger {
		return fmt.Errorf("suspend in charger mode: %w", ErrNotReady)
	}
	d.fbSuspended = true

	if d.init != InitDone {
		d.log.Info("suspend: need init")
		d.queue(workInit)
		return nil
	}
	err := d.lpwgMode()
	d.log.Debug("suspend done", "chip", d.v.Chip)
	return err
}

// Resume handles the display coming back. In charger boot the chip is
// parked again and ErrNotReady is returned; otherwise init is scheduled.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resume()
}

func (d *Device) resume() error {
	d.fbSuspended = false

	if d.o.BootMode == BootCharger {
		if err := d.chargerPark(); err != nil {
			return err
		}
		return fmt.Errorf("resume in charger mode: %w", ErrNotReady)
	}

	d.queue(workInit)
	d.log.Debug("resume done", "chip", d.v.Chip)
	return nil
}

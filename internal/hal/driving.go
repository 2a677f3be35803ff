package hal

import (
	"siwtouch/internal/reg"
)

const (
	drivingSettle = 20
	// DebugOption1 keeps U3 driving out of 6LHB mode.
	DebugOption1 = 1 << 1
)

// driveCtl returns the drive control word for mode.
func (d *Device) driveCtl(mode reg.LCDMode) (uint32, bool) {
	u3 := uint32(reg.DriveDispU3 | reg.DriveMode6LHB | reg.DriveStart)
	if d.o.DebugOption&DebugOption1 != 0 {
		u3 &^= reg.DriveMode6LHB
	}

	switch mode {
	case reg.ModeU0:
		return reg.DriveStart, true
	case reg.ModeU2, reg.ModeU2Unblank:
		return reg.DriveDispU2 | reg.DriveStart, true
	case reg.ModeU3:
		return u3, true
	case reg.ModeU3Partial:
		return reg.DrivePartial | u3, true
	case reg.ModeU3QuickCover:
		return reg.DriveQCover | u3, true
	case reg.ModeStop:
		return reg.DriveStop, true
	}
	return 0, false
}

// SetDrivingMode switches touch driving to mode. A mode the variant does
// not support fails with *ModeNotAllowedError and leaves the stored mode
// unchanged.
func (d *Device) SetDrivingMode(mode reg.LCDMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tcDriving(mode)
}

func (d *Device) tcDriving(mode reg.LCDMode) error {
	if d.sleep == SleepDeep {
		d.log.Warn("can't control tc driving in deep sleep", "mode", mode)
		return nil
	}
	if !d.v.Allowed(mode) {
		return &ModeNotAllowedError{Chip: d.v.Chip, Mode: mode}
	}
	ctrl, ok := d.driveCtl(mode)
	if !ok {
		return &ModeNotAllowedError{Chip: d.v.Chip, Mode: mode}
	}
	d.driving = mode

	if err := d.swipeMode(mode); err != nil {
		d.log.Warn("swipe mode failed", "err", err)
	}

	if mode == reg.ModeU0 || mode == reg.ModeU2 {
		d.delay(ms(200))
	}

	if sub, err := d.e.ReadValue(d.regs.SprSubdispStatus); err == nil {
		d.log.Debug("ddi display mode", "value", hex32(sub))
	}
	if err := d.e.WriteValue(d.regs.TcDriveCtl, ctrl); err != nil {
		d.log.Warn("drive control write failed", "err", err)
	}
	d.log.Info("driving mode", "mode", mode, "ctrl", hex32(ctrl))

	d.delay(ms(drivingSettle))

	defer func() { d.recurChk = false }()

	if d.o.BootMode == BootTCCheck || mode == reg.ModeU3Partial {
		return nil
	}
	if d.recurChk {
		d.log.Info("running status already checked")
		return nil
	}

	status, err := d.e.ReadValue(d.regs.TcStatus)
	if err != nil {
		d.log.Error("check module", err)
		return err
	}
	status &= reg.TcStatusMask

	var again bool
	if mode != reg.ModeStop {
		again = status == reg.TcStatusIdle || status == reg.TcStatusNotReady || status == reg.TcStatusUnknown
	} else {
		again = status != 0
	}
	if again {
		d.log.Warn("drive command missed", "mode", mode, "status", hex32(status))
		d.recurChk = true
		if err := d.reinit(true, ms(100), true, d.initChip); err != nil {
			d.log.Error("re-init after missed drive command failed", err)
		}
	}
	return nil
}

// swipeMode arms the swipe block for U2 and disarms it for every other
// mode. It does nothing while swipe is unconfigured.
func (d *Device) swipeMode(mode reg.LCDMode) error {
	if d.swipe.Mode == 0 {
		return nil
	}
	if mode != reg.ModeU2 {
		d.log.Debug("swipe disabled")
		return d.e.WriteValue(d.regs.SwipeEnableW, 0)
	}

	r, l := &d.swipe.Info[SwipeR], &d.swipe.Info[SwipeL]
	data := reg.PutWords(
		d.swipe.Mode,
		reg.Pack16(r.Distance, l.Distance),
		reg.Pack16(r.RatioThres, l.RatioThres),
		reg.Pack16(r.RatioDist, l.RatioDist),
		reg.Pack16(r.RatioPeriod, l.RatioPeriod),
		reg.Pack16(r.MinTime, l.MinTime),
		reg.Pack16(r.MaxTime, l.MaxTime),
		reg.Pack16(r.Area[0], l.Area[0]),
		reg.Pack16(r.Area[1], l.Area[1]),
		reg.Pack16(r.Area[2], l.Area[2]),
		reg.Pack16(r.Area[3], l.Area[3]),
	)
	if err := d.e.Write(d.regs.SwipeEnableW, data); err != nil {
		return err
	}
	d.log.Info("swipe enabled")
	return nil
}

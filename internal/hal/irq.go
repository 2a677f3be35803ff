package hal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"siwtouch/internal/input"
	"siwtouch/internal/reg"
)

// touchInfo is the decoded interrupt payload read from TcICStatus.
type touchInfo struct {
	icStatus   uint32
	status     uint32
	wakeupType uint32
	touchCnt   int
	buttonCnt  int
	palmBit    uint32
	// data is the raw entry area; LPWG events reuse it for coordinates.
	data []byte
}

type touchEntry struct {
	toolType uint8
	event    uint8
	trackID  uint8
	x, y     uint16
	pressure uint8
	angle    uint8
	wMajor   uint16
	wMinor   uint16
}

func parseTouchInfo(b []byte) touchInfo {
	w := binary.LittleEndian.Uint32(b[8:])
	return touchInfo{
		icStatus:   binary.LittleEndian.Uint32(b[0:]),
		status:     binary.LittleEndian.Uint32(b[4:]),
		wakeupType: w & 0xFF,
		touchCnt:   int(w>>8) & 0x1F,
		buttonCnt:  int(w>>13) & 0x07,
		palmBit:    w >> 16,
		data:       b[12:],
	}
}

func (t touchInfo) entry(i int) touchEntry {
	b := t.data[i*reg.TouchEntrySize:]
	return touchEntry{
		toolType: b[0] & 0x0F,
		event:    b[0] >> 4,
		trackID:  b[1],
		x:        binary.LittleEndian.Uint16(b[2:]),
		y:        binary.LittleEndian.Uint16(b[4:]),
		pressure: b[6],
		angle:    b[7],
		wMajor:   binary.LittleEndian.Uint16(b[8:]),
		wMinor:   binary.LittleEndian.Uint16(b[10:]),
	}
}

// HandleIRQ services one controller interrupt. It returns ErrRestart
// after scheduling an asynchronous hardware reset, and ErrRange for
// payloads that were logged and dropped.
func (d *Device) HandleIRQ() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.irq()
	if errors.Is(err, ErrRestart) {
		if rerr := d.reset(ResetHardAsync); rerr != nil {
			d.log.Error("reset after irq failed", rerr)
		}
	}
	return err
}

func (d *Device) irq() error {
	if d.init == NeedInit {
		d.log.Warn("not ready, need ic init")
		return nil
	}

	buf := make([]byte, reg.TouchInfoSize)
	if err := d.e.Read(d.regs.TcICStatus, buf); err != nil {
		return err
	}
	info := parseTouchInfo(buf)

	if err := d.checkStatus(info.status, info.icStatus); err != nil {
		return err
	}

	d.log.Debug("irq", "wakeup", info.wakeupType, "touch_cnt", info.touchCnt,
		"button_cnt", info.buttonCnt, "palm_bit", info.palmBit)

	if info.wakeupType == reg.WakeAbsMode {
		return d.irqAbs(info)
	}
	return d.irqLPWG(info)
}

// checkStatus classifies a device status word. nil is normal, ErrRange
// needs logging only and ErrRestart needs a hardware reset.
func (d *Device) checkStatus(status, icStatus uint32) error {
	mask := status ^ reg.IntNormalMask

	var pre error
	switch {
	case mask&reg.IntResetClrBit != 0:
		d.log.Warn("need reset", "status", hex32(status), "ic_status", hex32(icStatus), "chk", hex32(mask&reg.IntResetClrBit))
		pre = ErrRestart
	case mask&reg.IntLoggingClrBit != 0:
		d.log.Warn("need logging", "status", hex32(status), "ic_status", hex32(icStatus), "chk", hex32(mask&reg.IntLoggingClrBit))
		pre = ErrRange
	}

	var err error
	if d.v.Status == reg.StatusType1 {
		err = d.checkStatusType1(status, icStatus)
	} else {
		err = d.checkStatusDefault(status, icStatus)
	}

	if pre != nil && !errors.Is(err, ErrRestart) {
		return pre
	}
	return err
}

func (d *Device) checkStatusType1(status, icStatus uint32) error {
	var faults []string
	note := func(cond bool, msg string) {
		if cond {
			faults = append(faults, msg)
		}
	}
	note(status&reg.StatusDevCtl == 0, "[b5] device ctl not set")
	note(status&reg.StatusCodeCRCOk == 0, "[b6] code crc invalid")
	note(status&reg.StatusCfgCRCOk == 0, "[b7] cfg crc invalid")
	note(status&reg.StatusU3Fault != 0, "[b9] abnormal status detected")
	note(status&reg.StatusSysErr != 0, "[b10] system error detected")
	note(status&reg.StatusTCDriving != 0, "[b13] display mode mismatch")
	note(status&reg.StatusESDCheck == 0, "[b15] irq pin invalid")
	note(status&reg.StatusFwReady == 0, "[b20] irq status invalid")
	note(status&reg.StatusDispReady == 0, "[b22] driving invalid")

	if len(faults) > 0 {
		d.log.Warn("status check", "status", hex32(status), "ic_status", hex32(icStatus), "faults", strings.Join(faults, ", "))
	}

	var err error
	if status&reg.StatusSysErr != 0 {
		err = d.escalate("system error")
	}
	if icStatus&(1<<0) != 0 || icStatus&(1<<3) != 0 {
		d.log.Warn("watchdog exception", "status", hex32(status), "ic_status", hex32(icStatus))
		err = d.escalate("watchdog exception")
	}
	if err != nil {
		return err
	}

	switch (status >> 16) & 0x0F {
	case 0x2, 0x3, 0x4:
		return ErrRange
	}
	return nil
}

// escalate restarts the chip in U0 and reports ESD otherwise.
func (d *Device) escalate(reason string) error {
	if d.lcd == reg.ModeU0 {
		return ErrRestart
	}
	d.log.Warn("esd detected", "reason", reason, "lcd", d.lcd)
	d.o.Hooks.ESDNotify()
	return nil
}

func (d *Device) checkStatusDefault(status, icStatus uint32) error {
	var err error
	if status&reg.StatusDevCtl == 0 || status&reg.IntDevAbnormalStatus != 0 {
		d.log.Warn("abnormal device status", "status", hex32(status))
		err = ErrRestart
	}
	if icStatus&reg.IntICAbnormalStatus != 0 {
		d.log.Warn("abnormal ic status", "ic_status", hex32(icStatus))
		err = ErrRestart
	}
	return err
}

func (d *Device) irqAbs(info touchInfo) error {
	if info.touchCnt == 0 || info.touchCnt > d.o.MaxID {
		first := info.entry(0)
		d.log.Debug("invalid touch count", "count", info.touchCnt, "max", d.o.MaxID,
			"id", first.trackID, "event", first.event, "x", first.x, "y", first.y)
		return fmt.Errorf("touch count %d: %w", info.touchCnt, ErrRange)
	}

	first := info.entry(0)
	if first.trackID == reg.PalmID {
		switch first.event {
		case reg.TouchDown:
			d.palm = true
			d.log.Info("palm detected")
		case reg.TouchUp:
			d.palm = false
			d.log.Info("palm released")
		}
		d.fingers = 0
		d.o.Reporter.ReportTouch(input.Frame{Palm: d.palm})
		return nil
	}

	var f input.Frame
	for i := range min(info.touchCnt, reg.TouchMaxPoints) {
		e := info.entry(i)
		if int(e.trackID) >= d.o.MaxFinger {
			continue
		}
		if e.event != reg.TouchDown && e.event != reg.TouchMove {
			continue
		}
		f.Mask |= 1 << e.trackID

		orientation := int(e.angle)
		if e.wMajor == e.wMinor {
			orientation = 1
		}
		f.Points = append(f.Points, input.Point{
			ID:          int(e.trackID),
			Tool:        int(e.toolType),
			Event:       input.Event(e.event),
			X:           int(e.x),
			Y:           int(e.y),
			Pressure:    int(e.pressure),
			WidthMajor:  int(e.wMajor),
			WidthMinor:  int(e.wMinor),
			Orientation: orientation,
		})
	}

	d.fingers = f.Mask
	f.Palm = d.palm
	d.o.Reporter.ReportTouch(f)
	return nil
}

// tciCoords reads count packed (x, y) pairs from the entry area.
func tciCoords(info touchInfo, count int) []input.Coord {
	count = min(count, reg.TciMaxTapCode, len(info.data)/4)
	out := make([]input.Coord, 0, count)
	for _, w := range reg.Words(info.data[:count*4]) {
		x, y := reg.Unpack16(w)
		out = append(out, input.Coord{X: int(x), Y: int(y)})
	}
	return out
}

func (d *Device) logCoords(cs []input.Coord) {
	for _, c := range cs {
		if d.lpwg.Mode == LPWGPassword {
			d.log.Info("lpwg data xxxx, xxxx")
			continue
		}
		d.log.Info("lpwg data", "x", c.X, "y", c.Y)
	}
}

func (d *Device) irqLPWG(info touchInfo) error {
	switch info.wakeupType {
	case reg.WakeKnock1:
		if d.lpwg.Mode == LPWGNone {
			return nil
		}
		d.log.Info("lpwg: knock")
		cs := tciCoords(info, int(d.tci.Info[TCI1].TapCount))
		d.logCoords(cs)
		d.o.Reporter.ReportGesture(input.Gesture{Type: input.GestureKnock, Coords: cs})
	case reg.WakeKnock2:
		if d.lpwg.Mode != LPWGPassword {
			return nil
		}
		d.log.Info("lpwg: password")
		cs := tciCoords(info, int(d.tci.Info[TCI2].TapCount))
		d.logCoords(cs)
		d.o.Reporter.ReportGesture(input.Gesture{Type: input.GesturePassword, Coords: cs})
	case reg.WakeSwipeRight, reg.WakeSwipeLeft:
		g := input.GestureSwipeRight
		if info.wakeupType == reg.WakeSwipeLeft {
			g = input.GestureSwipeLeft
		}
		w := reg.Words(info.data[:12])
		sx, sy := reg.Unpack16(w[0])
		ex, ey := reg.Unpack16(w[1])
		d.log.Info("lpwg: swipe", "dir", g, "start", fmt.Sprintf("(%d,%d)", sx, sy),
			"end", fmt.Sprintf("(%d,%d)", ex, ey), "time_ms", w[2]&0xFFFF)
		d.o.Reporter.ReportGesture(input.Gesture{Type: g, Coords: []input.Coord{{X: int(ex), Y: int(ey)}}})
	case reg.WakeCustomDebug:
		d.log.Info("lpwg: custom debug")
		d.debugTCI()
		d.debugSwipe()
	case reg.WakeKnockOvertap:
		d.log.Info("lpwg: overtap")
		cs := tciCoords(info, int(d.tci.Info[TCI2].TapCount)+1)
		d.logCoords(cs)
		d.o.Reporter.ReportGesture(input.Gesture{Type: input.GesturePassword, Coords: cs})
	default:
		d.log.Warn("lpwg: unknown type", "type", info.wakeupType)
		return fmt.Errorf("wakeup type %d: %w", info.wakeupType, ErrInvalidArgument)
	}
	return nil
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08X", v)
}

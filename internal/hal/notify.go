package hal

import (
	"fmt"
	"strings"

	"siwtouch/internal/reg"
)

// Event is a platform notification delivered through Notify.
type Event int

const (
	EventTouchReset Event = iota
	EventResetStart
	EventResetEnd
	EventLCDMode
	EventReadReg
	EventConnection
	EventWireless
	EventEarjack
	EventIMEState
	EventDebugTool
	EventCallState
	EventDrvRegistered
	EventDrvUnregistered
	EventWatchLUT
	EventWatchPos
	EventProxy
	EventESD
)

var eventNames = [...]string{
	EventTouchReset:      "TOUCH_RESET",
	EventResetStart:      "TOUCH_RESET_START",
	EventResetEnd:        "TOUCH_RESET_END",
	EventLCDMode:         "LCD_MODE",
	EventReadReg:         "READ_REG",
	EventConnection:      "CONNECTION",
	EventWireless:        "WIRELESS",
	EventEarjack:         "EARJACK",
	EventIMEState:        "IME_STATE",
	EventDebugTool:       "DEBUG_TOOL",
	EventCallState:       "CALL_STATE",
	EventDrvRegistered:   "DRV_REGISTERED",
	EventDrvUnregistered: "DRV_UNREGISTERED",
	EventWatchLUT:        "WATCH_LUT",
	EventWatchPos:        "WATCH_POS",
	EventProxy:           "PROXY",
	EventESD:             "ESD",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// ParseEvent maps an event name, in any case, to its Event.
func ParseEvent(s string) (Event, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range eventNames {
		if n == s {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q: %w", s, ErrInvalidArgument)
}

// Charger types reported with EventConnection.
const (
	ChargerInvalid = iota
	ChargerSDP
	ChargerDCP
	ChargerCDP
	ChargerProprietary
	ChargerFloated
	ChargerHub
)

// Values written to SprChargerStatus.
const (
	connectNone     = 0x00
	connectUSB      = 0x01
	connectTA       = 0x02
	connectOTG      = 0x03
	connectWireless = 0x10
)

const debugToolMax = 2

// Notify delivers a platform event. value carries the event argument:
// the LCD mode, charger type, wireless state, IME state or call state.
func (d *Device) Notify(ev Event, value uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("notify", "event", ev, "value", value)

	switch ev {
	case EventTouchReset:
		d.log.Info("notify: reset")
		d.init = NeedInit
		d.o.Hooks.WatchRTCClear()
	case EventResetStart:
		d.log.Info("notify: touch reset start")
		d.pl.EnableIRQ(false)
		return d.pl.SetReset(false)
	case EventResetEnd:
		d.log.Info("notify: touch reset end")
		err := d.pl.SetReset(true)
		d.queue(workInit)
		return err
	case EventLCDMode:
		d.log.Info("notify: lcd mode", "mode", reg.LCDMode(value))
		if err := d.setLCDMode(reg.LCDMode(value)); err != nil {
			return err
		}
		if !d.checkMode() {
			if d.lcd == reg.ModeU3 {
				d.queue(workResume)
			} else {
				d.queue(workSuspend)
			}
		}
	case EventReadReg:
		_, err := d.readStatusRegs()
		return err
	case EventConnection:
		d.charger = value
		d.log.Info("notify: connection", "type", value)
		return d.connect()
	case EventWireless:
		d.wireless = value != 0
		d.log.Info("notify: wireless", "state", value)
		return d.connect()
	case EventEarjack:
		d.log.Info("notify: earjack", "type", value)
	case EventIMEState:
		d.ime = value
		d.log.Info("notify: ime state", "state", value)
		if d.init == InitDone {
			return d.e.WriteValue(d.regs.ImeState, value)
		}
	case EventDebugTool:
		if value >= debugToolMax {
			return fmt.Errorf("debug tool %d: %w", value, ErrInvalidArgument)
		}
		d.log.Info("notify: debug tool", "enable", value == 1)
	case EventCallState:
		d.call = value
		d.log.Info("notify: call state", "state", value)
		return d.e.WriteValue(d.regs.CallState, value)
	case EventDrvRegistered, EventDrvUnregistered, EventWatchLUT, EventWatchPos, EventProxy:
		d.log.Info("notify", "event", ev)
	case EventESD:
		d.log.Info("notify: esd detected")
		d.o.Hooks.ESDNotify()
	default:
		return fmt.Errorf("notify %v: %w", ev, ErrInvalidArgument)
	}
	return nil
}

func (d *Device) setLCDMode(mode reg.LCDMode) error {
	if !d.v.Allowed(mode) {
		return &ModeNotAllowedError{Chip: d.v.Chip, Mode: mode}
	}
	if d.v.U2UnblankAsU2 && mode == reg.ModeU2Unblank {
		mode = reg.ModeU2
	}
	d.prevLCD = d.lcd
	d.lcd = mode
	d.log.Info("lcd mode", "mode", mode, "prev", d.prevLCD)
	return nil
}

// checkMode reacts to an LCD mode change inside the U2 family. It reports
// true when the change was handled here and no display work is needed.
func (d *Device) checkMode() bool {
	if d.v.CheckMode == reg.CheckModePrevLCD {
		return d.checkModePrev(d.lcd, d.prevLCD)
	}
	return d.checkModeDriving(d.lcd, d.driving)
}

func (d *Device) watchInit() {
	if err := d.o.Hooks.WatchInit(); err != nil {
		d.log.Warn("watch init failed", "err", err)
	}
}

func (d *Device) watchDisplayOff() {
	if err := d.o.Hooks.WatchDisplayOff(); err != nil {
		d.log.Warn("watch display off failed", "err", err)
	}
}

func (d *Device) checkModeDriving(lcd, chk reg.LCDMode) bool {
	switch lcd {
	case reg.ModeU3:
		return false
	case reg.ModeU2:
		if chk != reg.ModeU2Unblank {
			d.log.Info("U2 mode change")
			return false
		}
		d.log.Info("U1 -> U2: watch on")
		d.watchInit()
		if err := d.tcDriving(reg.ModeU2); err != nil {
			d.log.Warn("driving U2 failed", "err", err)
		}
		return true
	case reg.ModeU2Unblank:
		switch chk {
		case reg.ModeStop:
			d.log.Info("skip mode change: STOP -> U1")
			d.watchDisplayOff()
			return true
		case reg.ModeU2:
			d.log.Info("U2 -> U1: watch off")
			d.watchDisplayOff()
			if err := d.tcDriving(reg.ModeU2Unblank); err != nil {
				d.log.Warn("driving U2_UNBLANK failed", "err", err)
			}
			return true
		case reg.ModeU0:
			d.log.Info("U0 -> U1 mode change")
		default:
			d.log.Info("not defined mode", "mode", chk)
		}
	case reg.ModeU0:
		d.log.Info("U0 mode change")
	default:
		d.log.Info("not defined mode", "mode", lcd)
	}
	return false
}

func (d *Device) checkModePrev(lcd, prev reg.LCDMode) bool {
	switch lcd {
	case reg.ModeU3:
		return false
	case reg.ModeU2:
		d.watchInit()
		if prev == reg.ModeU2Unblank {
			d.log.Info("U1 -> U2: watch on")
			return true
		}
		d.log.Info("U2 mode change")
	case reg.ModeU2Unblank:
		switch prev {
		case reg.ModeU2:
			d.log.Info("U2 -> U1")
		case reg.ModeU0:
			d.log.Info("U0 -> U1 mode change")
			d.watchInit()
		default:
			d.log.Info("not defined mode", "mode", prev)
		}
	case reg.ModeU0:
		d.log.Info("U0 mode change")
	default:
		d.log.Info("not defined mode", "mode", lcd)
	}
	return false
}

// chargerState maps the platform charger type and wireless flag to the
// value the chip expects.
func chargerState(charger uint32, wireless bool) uint32 {
	var v uint32
	switch charger {
	case ChargerInvalid:
		v = connectNone
	case ChargerDCP, ChargerProprietary:
		v = connectTA
	case ChargerHub:
		v = connectOTG
	default:
		v = connectUSB
	}
	if wireless {
		v |= connectWireless
	}
	return v
}

func (d *Device) connect() error {
	v := chargerState(d.charger, d.wireless)
	d.log.Info("write charger state", "value", fmt.Sprintf("0x%02X", v))
	if d.pmSuspended {
		d.log.Info("system suspended, skip bus access")
		return nil
	}
	return d.e.WriteValue(d.regs.SprChargerStatus, v)
}

// SetSystemSuspended records the host power state. While suspended,
// charger updates are kept but not written to the chip.
func (d *Device) SetSystemSuspended(suspended bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pmSuspended = suspended
}

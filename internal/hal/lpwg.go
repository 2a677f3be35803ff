package hal

import (
	"errors"
	"fmt"

	"siwtouch/internal/input"
	"siwtouch/internal/reg"
)

var tciDebugStr = [...]string{
	"NONE",
	"DISTANCE_INTER_TAP",
	"DISTANCE_TOUCHSLOP",
	"TIMEOUT_INTER_TAP_LONG",
	"MULTI_FINGER",
	"DELAY_TIME",
	"TIMEOUT_INTER_TAP_SHORT",
	"PALM_STATE",
	"TAP_TIMEOVER",
	"DEBUG9",
	"DEBUG10",
}

var swipeDebugStr = [...]string{
	"ERROR",
	"1FINGER_FAST_RELEASE",
	"MULTI_FINGER",
	"FAST_SWIPE",
	"SLOW_SWIPE",
	"OUT_OF_AREA",
	"RATIO_FAIL",
}

var defaultTCIInfo = [2]TCIInfo{
	TCI1: {TapCount: 2, MinIntertap: 6, MaxIntertap: 70, TouchSlop: 100, TapDistance: 10, IntrDelay: 0},
	TCI2: {TapCount: 0, MinIntertap: 6, MaxIntertap: 70, TouchSlop: 100, TapDistance: 255, IntrDelay: 20},
}

var defaultSwipeInfo = SwipeInfo{
	Distance:    5,
	RatioThres:  100,
	RatioDist:   2,
	RatioPeriod: 5,
	MinTime:     0,
	MaxTime:     150,
	Area:        [4]uint16{401, 0, 1439, 159},
}

var noArea = Area{X1: ^uint32(0), Y1: ^uint32(0), X2: ^uint32(0), Y2: ^uint32(0)}

func (d *Device) setTCIDefaults() {
	d.tci.Info = defaultTCIInfo
	d.tci.Area = Area{X2: uint32(d.o.MaxX), Y2: uint32(d.o.MaxY)}
	d.tci.QCoverOpen = noArea
	d.tci.QCoverClose = noArea
}

func (d *Device) setSwipeDefaults() {
	d.swipe = SwipeCtrl{
		Mode: SwipeLeftBit | SwipeRightBit,
		Info: [2]SwipeInfo{SwipeR: defaultSwipeInfo, SwipeL: defaultSwipeInfo},
	}
}

// SetQuickCoverAreas installs the active areas used while the cover is
// open or closed. An area with X1 of ^0 leaves the current area alone.
func (d *Device) SetQuickCoverAreas(open, closed Area) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tci.QCoverOpen = open
	d.tci.QCoverClose = closed
}

// setDebugReason arms the chip's failure reason logging for one slot.
func (d *Device) setDebugReason(slot int) error {
	if d.tciDebugType == 0 {
		return nil
	}
	w0 := uint32(slot)
	if d.tciDebugType == 1 {
		w0 |= 1 << 2
	} else {
		w0 |= 1 << 3
	}
	d.log.Debug("tci debug reason", "slot", slot+1, "type", w0)
	return d.e.Write(d.regs.TciFailDebugW, reg.PutWords(w0, reg.TciDebugAll))
}

func (d *Device) tciKnock() error {
	if err := d.setDebugReason(TCI1); err != nil {
		d.log.Warn("tci debug reason failed", "err", err)
	}

	i1, i2 := &d.tci.Info[TCI1], &d.tci.Info[TCI2]
	data := reg.PutWords(
		d.tci.Mode,
		reg.Pack16(i1.TapCount, i2.TapCount),
		reg.Pack16(i1.MinIntertap, i2.MinIntertap),
		reg.Pack16(i1.MaxIntertap, i2.MaxIntertap),
		reg.Pack16(i1.TouchSlop, i2.TouchSlop),
		reg.Pack16(i1.TapDistance, i2.TapDistance),
		reg.Pack16(i1.IntrDelay, i2.IntrDelay),
	)
	return d.e.Write(d.regs.TciEnableW, data)
}

func (d *Device) tciPassword() error {
	if err := d.setDebugReason(TCI2); err != nil {
		d.log.Warn("tci debug reason failed", "err", err)
	}
	return d.tciKnock()
}

// tciActiveArea shrinks the rectangle by the sensorless margin and writes
// it into both slots of the four area registers.
func (d *Device) tciActiveArea(a Area) error {
	m := uint32(d.o.SensorlessMargin)
	d.log.Info("tci active area", "x1", a.X1, "y1", a.Y1, "x2", a.X2, "y2", a.Y2)

	words := [4]uint32{
		(a.X1 + m) & 0xFFFF,
		(a.Y1 + m) & 0xFFFF,
		(a.X2 - m) & 0xFFFF,
		(a.Y2 - m) & 0xFFFF,
	}
	regs := [4]uint16{d.regs.ActAreaX1W, d.regs.ActAreaY1W, d.regs.ActAreaX2W, d.regs.ActAreaY2W}
	for i, w := range words {
		if err := d.e.WriteValue(regs[i], reg.Dup16(uint16(w))); err != nil {
			return err
		}
	}
	return nil
}

// tciAreaSet applies the quick cover override area for the given cover
// state.
func (d *Device) tciAreaSet(cover int) error {
	if !d.v.QuickCoverAllowed() {
		return nil
	}
	area, name := d.tci.QCoverOpen, "open"
	if cover == CoverClose {
		area, name = d.tci.QCoverClose, "close"
	}
	if area.X1 == ^uint32(0) {
		return nil
	}
	if err := d.tciActiveArea(area); err != nil {
		return err
	}
	d.log.Info("lpwg active area", "qcover", name)
	return nil
}

func (d *Device) lpwgControl(mode LPWGMode) error {
	i1 := &d.tci.Info[TCI1]

	var err error
	switch mode {
	case LPWGDoubleTap:
		d.tci.Mode = 0x01
		i1.IntrDelay = 0
		i1.TapDistance = 10
		if d.o.SensorlessMargin != 0 {
			if err = d.tciActiveArea(d.tci.Area); err != nil {
				break
			}
		}
		err = d.tciKnock()
	case LPWGPassword:
		d.tci.Mode = 0x01 | 0x01<<16
		i1.IntrDelay = 0
		if d.tci.DoubleTapCheck {
			i1.IntrDelay = 68
		}
		i1.TapDistance = 7
		if d.o.SensorlessMargin != 0 {
			if err = d.tciActiveArea(d.tci.Area); err != nil {
				break
			}
		}
		err = d.tciPassword()
	default:
		d.tci.Mode = 0
		err = d.e.WriteValue(d.regs.TciEnableW, 0)
	}

	d.log.Info("lpwg control", "mode", mode)
	return err
}

func (d *Device) lpwgCtrl(c LPWGCtrl) error {
	if c.Clk >= 0 && d.sleep == SleepDeep {
		if err := d.clock(c.Clk != 0); err != nil {
			d.log.Warn("clock failed", "err", err)
		}
	}
	if c.QCover >= 0 {
		if err := d.tciAreaSet(c.QCover); err != nil {
			return err
		}
	}
	if c.LPWG >= 0 {
		if err := d.lpwgControl(LPWGMode(c.LPWG)); err != nil {
			return err
		}
	}
	if c.LCD >= 0 {
		return d.tcDriving(reg.LCDMode(c.LCD))
	}
	return nil
}

// ApplyLPWGCtrl applies clock, cover area, gesture and driving changes in
// that order. Fields set to -1 are skipped.
func (d *Device) ApplyLPWGCtrl(c LPWGCtrl) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lpwgCtrl(c)
}

func (d *Device) lpwgCtrlSkip() {
	d.log.Info("skip lpwg mode")
	if d.sleep == SleepDeep {
		if err := d.clock(true); err != nil {
			d.log.Warn("clock failed", "err", err)
		}
	}
	d.debugTCI()
	d.debugSwipe()
}

func (d *Device) lpwgModeSuspend() error {
	d.log.Info("lpwg suspend", "mode", d.lpwg.Mode, "screen", d.lpwg.Screen)

	c := NewLPWGCtrl()
	switch {
	case d.o.MFTS:
		c.LPWG = int(LPWGDoubleTap)
		c.LCD = int(d.lcd)
	case d.lpwg.Mode == LPWGNone:
		if d.lpwg.Screen {
			return d.clock(true)
		}
		return d.deepSleep()
	case d.lpwg.Screen:
		d.lpwgCtrlSkip()
		return nil
	case d.lpwg.QCover == CoverClose:
		c.Clk = 1
		c.QCover = CoverClose
		c.LPWG = int(LPWGNone)
		c.LCD = int(d.lcd)
	default:
		c.Clk = 1
		c.QCover = CoverOpen
		c.LPWG = int(d.lpwg.Mode)
		c.LCD = int(d.lcd)
	}

	err := d.lpwgCtrl(c)
	d.log.Info("lpwg suspend done", "lcd", d.lcd, "driving", d.driving)
	return err
}

func (d *Device) lpwgModeResume() error {
	d.log.Info("lpwg resume", "mode", d.lpwg.Mode, "screen", d.lpwg.Screen)

	d.releaseAll()

	c := NewLPWGCtrl()
	near := d.lpwg.QCover == CoverClose
	switch {
	case d.lpwg.Screen:
		mode := d.lcd
		if d.v.QuickCoverAllowed() && near {
			mode = reg.ModeU3QuickCover
		}
		c.LPWG = int(LPWGNone)
		c.LCD = int(mode)
	case d.lpwg.Mode == LPWGNone:
		c.LCD = int(reg.ModeStop)
	case !d.v.PartialAllowed():
		return nil
	case d.v.QuickCoverAllowed():
		c.QCover = CoverOpen
		if near {
			c.QCover = CoverClose
		}
		c.LPWG = int(d.lpwg.Mode)
		c.LCD = int(reg.ModeU3Partial)
	default:
		c.LPWG = int(d.lpwg.Mode)
		if near {
			c.LPWG = int(LPWGNone)
		}
		c.LCD = int(reg.ModeU3Partial)
	}

	err := d.lpwgCtrl(c)
	d.log.Info("lpwg resume done", "lcd", d.lcd, "driving", d.driving)
	return err
}

func (d *Device) lpwgMode() error {
	if d.init == NeedInit {
		d.log.Info("not ready, need ic init")
		return nil
	}
	if d.fbSuspended {
		return d.lpwgModeSuspend()
	}
	return d.lpwgModeResume()
}

// ConfigureLPWG applies one gesture configuration update. Codes are the
// LPWG* constants; values are read in the order each code documents.
func (d *Device) ConfigureLPWG(code int, values []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.o.UseLPWG {
		d.log.Warn("lpwg control not supported", "chip", d.v.Chip)
		return nil
	}

	need := map[int]int{LPWGActiveArea: 4, LPWGTapCount: 1, LPWGDoubleTapCheck: 1, LPWGUpdateAll: 4}[code]
	if len(values) < need {
		return fmt.Errorf("lpwg code %d needs %d values: %w", code, need, ErrInvalidArgument)
	}

	switch code {
	case LPWGActiveArea:
		d.tci.Area = Area{
			X1: uint32(values[0]),
			X2: uint32(values[1]),
			Y1: uint32(values[2]),
			Y2: uint32(values[3]),
		}
		d.log.Info("lpwg active area", "x1", values[0], "y1", values[2], "x2", values[1], "y2", values[3])
	case LPWGTapCount:
		d.tci.Info[TCI2].TapCount = uint16(values[0])
	case LPWGDoubleTapCheck:
		d.tci.DoubleTapCheck = values[0] != 0
	case LPWGUpdateAll:
		d.lpwg = LPWGState{
			Mode:   LPWGMode(values[0]),
			Screen: values[1] != 0,
			Sensor: values[2],
			QCover: values[3],
		}
		d.log.Info("lpwg update all",
			"mode", d.lpwg.Mode,
			"screen", onOff(d.lpwg.Screen),
			"sensor", pick(d.lpwg.Sensor != 0, "FAR", "NEAR"),
			"qcover", pick(d.lpwg.QCover != 0, "CLOSE", "OPEN"),
		)
		return d.lpwgMode()
	case LPWGReply:
	default:
		return fmt.Errorf("lpwg code %d: %w", code, ErrInvalidArgument)
	}
	return nil
}

// LPWGDebug holds the decoded gesture failure reasons of the last dump.
type LPWGDebug struct {
	TCI   [2][]string `json:"tci"`
	Swipe [2][]string `json:"swipe"`
}

// ReadLPWGDebug reads and decodes the chip's knock and swipe failure
// reason buffers.
func (d *Device) ReadLPWGDebug() (LPWGDebug, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tci, err1 := d.debugTCI()
	swipe, err2 := d.debugSwipe()
	return LPWGDebug{TCI: tci, Swipe: swipe}, errors.Join(err1, err2)
}

func (d *Device) debugTCI() ([2][]string, error) {
	var out [2][]string
	if d.tciDebugType == 0 {
		return out, nil
	}

	buf := make([]byte, 9*4)
	if err := d.e.Read(d.regs.TciDebugR, buf); err != nil {
		return out, err
	}
	w := reg.Words(buf)
	lo, hi := reg.Unpack16(w[0])
	counts := [2]int{min(int(lo), reg.TciDebugMaxNum), min(int(hi), reg.TciDebugMaxNum)}
	reasons := [2][]byte{buf[4:20], buf[20:36]}

	for slot := range counts {
		for j := range counts[slot] {
			code := reasons[slot][j]
			name := tciDebugStr[0]
			if code > 0 && int(code) < len(tciDebugStr) {
				name = tciDebugStr[code]
			}
			out[slot] = append(out[slot], name)
			d.log.Info("tci debug", "slot", slot+1, "n", j+1, "of", counts[slot], "reason", name, "code", code)
		}
	}
	return out, nil
}

func (d *Device) debugSwipe() ([2][]string, error) {
	var out [2][]string
	if d.swipeDebugType == 0 {
		return out, nil
	}

	buf := make([]byte, 5*4)
	if err := d.e.Read(d.regs.SwipeDebugR, buf); err != nil {
		return out, err
	}
	w := reg.Words(buf)
	lo, hi := reg.Unpack16(w[0])
	counts := [2]int{min(int(lo), reg.SwipeDebugMaxNum), min(int(hi), reg.SwipeDebugMaxNum)}
	reasons := [2][]byte{buf[4:12], buf[12:20]}

	for dir := range counts {
		for j := range counts[dir] {
			code := reasons[dir][j]
			name := swipeDebugStr[0]
			if code > 0 && int(code) < len(swipeDebugStr) {
				name = swipeDebugStr[code]
			}
			out[dir] = append(out[dir], name)
			d.log.Info("swipe debug", "dir", pick(dir == SwipeR, "right", "left"), "n", j+1, "of", counts[dir], "reason", name)
		}
	}
	return out, nil
}

// SetDebugTypes selects how much gesture failure detail the chip records.
// Zero disables the corresponding dump.
func (d *Device) SetDebugTypes(tci, swipe int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tciDebugType = tci
	d.swipeDebugType = swipe
}

// releaseAll reports every tracked contact as lifted.
func (d *Device) releaseAll() {
	if d.fingers == 0 && !d.palm {
		return
	}
	d.fingers = 0
	d.palm = false
	d.o.Reporter.ReportTouch(input.Frame{})
}

func onOff(b bool) string {
	return pick(b, "ON", "OFF")
}

func pick(c bool, a, b string) string {
	if c {
		return a
	}
	return b
}

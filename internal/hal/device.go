// Package hal is the SiW touch controller driver core: the register
// engine, chip lifecycle, firmware download, driving-mode and LPWG state
// machine and the interrupt decoder.
package hal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"siwtouch/internal/bus"
	"siwtouch/internal/reg"
)

type workKind int

const (
	workInit workKind = iota
	workResume
	workSuspend
	workSync
)

func (w workKind) String() string {
	switch w {
	case workInit:
		return "init"
	case workResume:
		return "fb_resume"
	case workSuspend:
		return "fb_suspend"
	default:
		return "sync"
	}
}

type work struct {
	kind workKind
	done chan struct{}
}

const workQueueSize = 8

// Device is one SiW controller. All exported methods are safe for
// concurrent use; they serialize on the device lock.
type Device struct {
	mu      sync.Mutex
	resetMu sync.Mutex

	e    *Engine
	v    reg.Variant
	regs *reg.Map
	o    Options
	log  Logger
	pl   Platform

	init    InitState
	sleep   SleepState
	lcd     reg.LCDMode
	prevLCD reg.LCDMode
	driving reg.LCDMode

	fbSuspended bool
	pmSuspended bool
	recurChk    bool

	fw      FirmwareInfo
	chipRaw uint32

	fingers uint32
	palm    bool

	lpwg           LPWGState
	tci            TCICtrl
	swipe          SwipeCtrl
	tciDebugType   int
	swipeDebugType int

	ime      uint32
	charger  uint32
	wireless bool
	call     uint32

	work     chan work
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	cron *cron.Cron
}

// New returns a device for variant v on transport t. The chip is not
// touched until Probe.
func New(t bus.Transport, v reg.Variant, opts ...Option) (*Device, error) {
	if t == nil {
		return nil, fmt.Errorf("hal: nil transport: %w", ErrInvalidArgument)
	}
	if v.Regs == nil {
		return nil, fmt.Errorf("hal: %s has no register map: %w", v.Chip, ErrInvalidArgument)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.ChipID != "" {
		v.ChipID = o.ChipID
	}
	if o.MaxID <= 0 || o.MaxID > reg.TouchMaxPoints {
		o.MaxID = reg.TouchMaxPoints
	}
	if o.MaxFinger <= 0 || o.MaxFinger > reg.TouchMaxPoints {
		o.MaxFinger = reg.TouchMaxPoints
	}
	if !v.QuickCoverAllowed() {
		o.UseQuickCover = false
	}

	d := &Device{
		e:       NewEngine(t, o.Engine, o.Logger),
		v:       v,
		regs:    v.Regs,
		o:       o,
		log:     o.Logger,
		pl:      o.Platform,
		lcd:     reg.ModeU3,
		prevLCD: reg.ModeU3,
		driving: reg.ModeU3,
		work:    make(chan work, workQueueSize),
		quit:    make(chan struct{}),
	}
	d.lpwg.Screen = true
	d.lpwg.Sensor = SensorFar
	d.setTCIDefaults()
	d.setSwipeDefaults()

	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Close stops the monitor and the work queue. It does not touch the chip;
// use Remove for that.
func (d *Device) Close() error {
	d.stopOnce.Do(func() {
		d.StopMonitor()
		close(d.quit)
		d.wg.Wait()
	})
	return nil
}

func (d *Device) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case w := <-d.work:
			if w.kind == workSync {
				close(w.done)
				continue
			}
			d.mu.Lock()
			d.runWork(w.kind)
			d.mu.Unlock()
		}
	}
}

func (d *Device) runWork(k workKind) {
	switch k {
	case workInit:
		if err := d.initChip(); err != nil {
			d.log.Error("deferred init failed", err, "chip", d.v.Chip)
		}
		d.pl.EnableIRQ(true)
	case workResume:
		if err := d.resume(); err != nil {
			d.log.Error("display resume failed", err)
		}
	case workSuspend:
		if err := d.suspend(); err != nil {
			d.log.Error("display suspend failed", err)
		}
	}
}

// queue schedules deferred work. A full queue drops the request; pending
// work of the same kind already covers it.
func (d *Device) queue(k workKind) {
	select {
	case d.work <- work{kind: k}:
	default:
		d.log.Warn("work queue full", "work", k)
	}
}

// WaitIdle blocks until every work item queued before the call has run.
func (d *Device) WaitIdle() {
	done := make(chan struct{})
	select {
	case d.work <- work{kind: workSync, done: done}:
	case <-d.quit:
		return
	}
	select {
	case <-done:
	case <-d.quit:
	}
}

func (d *Device) delay(t time.Duration) {
	if t > 0 {
		d.o.Sleep(t)
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Variant returns the chip capability record in use.
func (d *Device) Variant() reg.Variant {
	return d.v
}

// Read fills p from registers starting at addr.
func (d *Device) Read(addr uint16, p []byte) error {
	return d.e.Read(addr, p)
}

// Write stores p to registers starting at addr.
func (d *Device) Write(addr uint16, p []byte) error {
	return d.e.Write(addr, p)
}

// ReadValue reads one 32-bit register.
func (d *Device) ReadValue(addr uint16) (uint32, error) {
	return d.e.ReadValue(addr)
}

// WriteValue writes one 32-bit register.
func (d *Device) WriteValue(addr uint16, v uint32) error {
	return d.e.WriteValue(addr, v)
}

// Xfer runs a batched transaction.
func (d *Device) Xfer(x *Xfer) error {
	return d.e.Xfer(x)
}

// State returns a snapshot of the driver state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Chip:        d.v.Chip,
		Init:        d.init.String(),
		Sleep:       d.sleep.String(),
		LCDMode:     d.lcd.String(),
		PrevLCDMode: d.prevLCD.String(),
		DrivingMode: d.driving.String(),
		Suspended:   d.fbSuspended,
		Palm:        d.palm,
		Fingers:     d.fingers,
		LPWG:        d.lpwg,
		Firmware:    d.fw,
	}
}

// RunSelfTest runs the installed self tester, or the built-in bus and
// identity test when none is installed.
func (d *Device) RunSelfTest(w io.Writer) error {
	if d.o.SelfTester != nil {
		return d.o.SelfTester.RunSelfTest(w)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var failed bool
	if err := d.icTest(); err != nil {
		fmt.Fprintf(w, "ic bus r/w test: FAIL (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(w, "ic bus r/w test: PASS")
	}
	if err := d.productID(); err != nil {
		fmt.Fprintf(w, "product id: FAIL (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintf(w, "product id: PASS (%s)\n", d.fw.ProductID)
	}
	if failed {
		return fmt.Errorf("hal: self test failed")
	}
	return nil
}

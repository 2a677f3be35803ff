package hal

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"siwtouch/internal/reg"
)

const (
	monitorRetry = 3
	monitorDelay = 10
	// statusValidIRQ marks a polled status word as if it came with an irq.
	statusValidIRQ = 0x8000
)

// cronLogger routes scheduler messages to the device logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("monitor: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("monitor: "+msg, err, kv...)
}

// StartMonitor runs MonitorOnce on the configured schedule. Standard five
// field specs, specs with a leading seconds field and descriptors such as
// "@every 10s" are accepted.
func (d *Device) StartMonitor() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cron != nil {
		return nil
	}

	lg := cronLogger{l: d.log}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)
	if _, err := c.AddFunc(d.o.MonitorSchedule, func() {
		if err := d.MonitorOnce(); err != nil {
			d.log.Warn("monitor check failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("monitor schedule %q: %w", d.o.MonitorSchedule, err)
	}

	c.Start()
	d.cron = c
	d.log.Info("monitor started", "schedule", d.o.MonitorSchedule)
	return nil
}

// StopMonitor stops the scheduler and waits for a running check.
func (d *Device) StopMonitor() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		d.log.Info("monitor stopped")
	}
}

// MonitorOnce checks the chip identity and status. On a failure that
// survives the retries it schedules an asynchronous hardware reset and
// returns the error. Checks run only with the chip initialized and the
// display in U3 or above.
func (d *Device) MonitorOnce() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.init != InitDone || d.lcd < reg.ModeU3 {
		return nil
	}

	checks := []struct {
		name string
		fn   func() error
	}{
		{"id", d.monitorID},
		{"status", d.monitorStatus},
	}

	var err error
	for step, c := range checks {
		for i := range monitorRetry {
			if err = c.fn(); err == nil {
				d.log.Debug("monitor check done", "step", step, "check", c.name)
				break
			}
			d.log.Warn("monitor check failed", "step", step, "check", c.name, "try", i, "err", err)
			d.delay(ms(monitorDelay))
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		return nil
	}

	d.log.Error("monitor: recovery begins (hw reset)", err)
	if rerr := d.reset(ResetHardAsync); rerr != nil {
		d.log.Error("monitor: reset failed", rerr)
	}
	return err
}

func (d *Device) monitorID() error {
	id, err := d.e.ReadValue(d.regs.SprChipID)
	if err != nil {
		return err
	}
	if id != d.chipRaw {
		return fmt.Errorf("chip id 0x%08X, want 0x%08X: %w", id, d.chipRaw, ErrRestart)
	}
	return nil
}

func (d *Device) monitorStatus() error {
	icStatus, err := d.e.ReadValue(d.regs.TcICStatus)
	if err != nil {
		return err
	}
	status, err := d.e.ReadValue(d.regs.TcStatus)
	if err != nil {
		return err
	}

	if err := d.checkStatus(status|statusValidIRQ, icStatus); errors.Is(err, ErrRestart) {
		return err
	}
	return nil
}

// Package gpio drives the controller's reset, supply-enable and interrupt
// lines through the Linux GPIO character device.
package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// NoLine marks an optional line as not wired.
const NoLine = -1

// Config selects the chip and line offsets. VDD and VIO may be NoLine when
// the supplies are always on.
type Config struct {
	Chip  string
	Reset int
	IRQ   int
	VDD   int
	VIO   int
}

// Lines owns the requested GPIO lines.
type Lines struct {
	chip  *gpiocdev.Chip
	reset *gpiocdev.Line
	irq   *gpiocdev.Line
	vdd   *gpiocdev.Line
	vio   *gpiocdev.Line

	irqOn atomic.Bool
	onIRQ func()
}

// Open requests the configured lines. onIRQ runs on the gpiocdev event
// goroutine for every falling edge while the interrupt is enabled.
func Open(cfg Config, onIRQ func()) (*Lines, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", cfg.Chip, err)
	}

	l := &Lines{chip: chip, onIRQ: onIRQ}

	// Reset is active low; hold the chip running until told otherwise.
	l.reset, err = chip.RequestLine(
		cfg.Reset,
		gpiocdev.AsOutput(1),
		gpiocdev.WithConsumer("siw-touch-reset"),
	)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to request reset line %d: %w", cfg.Reset, err)
	}

	if cfg.VDD != NoLine {
		l.vdd, err = chip.RequestLine(cfg.VDD, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("siw-touch-vdd"))
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to request vdd line %d: %w", cfg.VDD, err)
		}
	}
	if cfg.VIO != NoLine {
		l.vio, err = chip.RequestLine(cfg.VIO, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("siw-touch-vio"))
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to request vio line %d: %w", cfg.VIO, err)
		}
	}

	if cfg.IRQ != NoLine {
		l.irq, err = chip.RequestLine(
			cfg.IRQ,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(l.handleEvent),
			gpiocdev.WithConsumer("siw-touch-irq"),
		)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to request irq line %d: %w", cfg.IRQ, err)
		}
	}

	return l, nil
}

func (l *Lines) handleEvent(gpiocdev.LineEvent) {
	if l.irqOn.Load() && l.onIRQ != nil {
		l.onIRQ()
	}
}

// SetReset drives the reset line.
func (l *Lines) SetReset(high bool) error {
	return setLine(l.reset, high, "reset")
}

// SetVDD switches the core supply enable, if wired.
func (l *Lines) SetVDD(on bool) error {
	return setLine(l.vdd, on, "vdd")
}

// SetVIO switches the I/O supply enable, if wired.
func (l *Lines) SetVIO(on bool) error {
	return setLine(l.vio, on, "vio")
}

// EnableIRQ gates delivery of interrupt edges to the handler.
func (l *Lines) EnableIRQ(on bool) {
	l.irqOn.Store(on)
}

func setLine(line *gpiocdev.Line, high bool, name string) error {
	if line == nil {
		return nil
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to set %s line to %d: %w", name, v, err)
	}
	return nil
}

// Close releases all GPIO resources.
func (l *Lines) Close() error {
	var errs []error

	for _, line := range []*gpiocdev.Line{l.irq, l.vio, l.vdd, l.reset} {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.irq, l.vio, l.vdd, l.reset = nil, nil, nil, nil

	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		l.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing GPIO: %v", errs)
	}
	return nil
}

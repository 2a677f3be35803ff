package sim

import "sync"

// PinEvent is one recorded line change.
type PinEvent struct {
	Line string
	High bool
}

// Pins records reset, supply and interrupt-enable changes in place of real
// GPIO lines.
type Pins struct {
	mu     sync.Mutex
	events []PinEvent
	irqOn  bool
}

func (p *Pins) record(line string, high bool) {
	p.mu.Lock()
	p.events = append(p.events, PinEvent{Line: line, High: high})
	p.mu.Unlock()
}

func (p *Pins) SetReset(high bool) error {
	p.record("reset", high)
	return nil
}

func (p *Pins) SetVDD(on bool) error {
	p.record("vdd", on)
	return nil
}

func (p *Pins) SetVIO(on bool) error {
	p.record("vio", on)
	return nil
}

func (p *Pins) EnableIRQ(on bool) {
	p.mu.Lock()
	p.irqOn = on
	p.mu.Unlock()
}

// IRQEnabled reports the last EnableIRQ state.
func (p *Pins) IRQEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqOn
}

// Events returns a copy of the recorded changes.
func (p *Pins) Events() []PinEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PinEvent(nil), p.events...)
}

// Count returns how many times line was driven to level high.
func (p *Pins) Count(line string, high bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Line == line && e.High == high {
			n++
		}
	}
	return n
}

// Reset clears the record.
func (p *Pins) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

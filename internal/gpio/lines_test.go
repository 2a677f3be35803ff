package gpio

import (
	"testing"

	"github.com/warthog618/go-gpiocdev"
)

func TestUnwiredLines(t *testing.T) {
	var l Lines
	if err := l.SetReset(true); err != nil {
		t.Errorf("SetReset: %v", err)
	}
	if err := l.SetVDD(false); err != nil {
		t.Errorf("SetVDD: %v", err)
	}
	if err := l.SetVIO(true); err != nil {
		t.Errorf("SetVIO: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestIRQGate(t *testing.T) {
	var n int
	l := &Lines{onIRQ: func() { n++ }}

	l.handleEvent(gpiocdev.LineEvent{})
	if n != 0 {
		t.Fatal("edge delivered while disabled")
	}
	l.EnableIRQ(true)
	l.handleEvent(gpiocdev.LineEvent{})
	l.EnableIRQ(false)
	l.handleEvent(gpiocdev.LineEvent{})
	if n != 1 {
		t.Errorf("delivered %d edges, want 1", n)
	}
}

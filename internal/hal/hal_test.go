package hal

import (
	"testing"
	"time"

	"siwtouch/internal/input"
	"siwtouch/internal/reg"
	"siwtouch/internal/sim"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)        {}
func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Warn(string, ...any)         {}
func (nopLogger) Error(string, error, ...any) {}

// recHooks counts hook calls.
type recHooks struct {
	NopHooks
	esd        int
	watchInit  int
	displayOff int
	rtcClear   int
}

func (h *recHooks) ESDNotify()             { h.esd++ }
func (h *recHooks) WatchInit() error       { h.watchInit++; return nil }
func (h *recHooks) WatchDisplayOff() error { h.displayOff++; return nil }
func (h *recHooks) WatchRTCClear()         { h.rtcClear++ }

type fixture struct {
	chip  *sim.Chip
	pins  *sim.Pins
	rec   *input.Recorder
	hooks *recHooks
	dev   *Device
}

// testVariant returns v with the flash handshake values the download
// tests poll for.
func testVariant(chip reg.Chip) reg.Variant {
	v := reg.Variants[chip]
	v.BootReady, v.CodeDone, v.ConfDone = 0xAA, 0xAA, 0xAA
	return v
}

func newFixture(t *testing.T, v reg.Variant, opts ...Option) *fixture {
	t.Helper()
	return attach(t, sim.New(v), v, opts...)
}

func attach(t *testing.T, chip *sim.Chip, v reg.Variant, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		chip:  chip,
		pins:  &sim.Pins{},
		rec:   &input.Recorder{},
		hooks: &recHooks{},
	}
	base := []Option{
		WithSleep(func(time.Duration) {}),
		WithPlatform(f.pins),
		WithReporter(f.rec),
		WithHooks(f.hooks),
		WithLogger(nopLogger{}),
	}
	dev, err := New(chip, v, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	f.dev = dev
	return f
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	if err := f.dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

// lastWords decodes the latest payload written to addr.
func (f *fixture) lastWords(t *testing.T, addr uint16) []uint32 {
	t.Helper()
	w := f.chip.Writes(addr)
	if len(w) == 0 {
		t.Fatalf("no write to 0x%03X", addr)
	}
	return reg.Words(w[len(w)-1])
}

func TestNewValidates(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	if _, err := New(nil, v); err == nil {
		t.Error("nil transport accepted")
	}
	v.Regs = nil
	if _, err := New(sim.New(reg.Variants[reg.LG4895]), v); err == nil {
		t.Error("variant without register map accepted")
	}
}

func TestNewClampsOptions(t *testing.T) {
	f := newFixture(t, reg.Variants[reg.LG4895], WithCaps(720, 1280, 20, 0), WithLPWG(true, true, 0))
	if f.dev.o.MaxFinger != reg.TouchMaxPoints || f.dev.o.MaxID != reg.TouchMaxPoints {
		t.Errorf("finger limits = %d/%d", f.dev.o.MaxFinger, f.dev.o.MaxID)
	}
	if f.dev.o.UseQuickCover {
		t.Error("quick cover kept on a variant without it")
	}
	st := f.dev.State()
	if st.LCDMode != "U3" || st.DrivingMode != "U3" || st.Init != "need_init" {
		t.Errorf("initial state %+v", st)
	}
}

func TestChipIDOverride(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	chip.SetBytes(v.Regs.SprChipID, []byte("ABCD"))
	f := attach(t, chip, v, func(o *Options) { o.ChipID = "ABCD" })
	f.init(t)
	if got := f.dev.State().Firmware.ChipID; got != "ABCD" {
		t.Errorf("chip id = %q", got)
	}
}

package hal

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"siwtouch/internal/bus"
	"siwtouch/internal/reg"
	"siwtouch/internal/sim"
)

func TestInit(t *testing.T) {
	for _, chip := range []reg.Chip{reg.LG4894, reg.LG4895, reg.LG4946, reg.SW1828} {
		t.Run(string(chip), func(t *testing.T) {
			v := reg.Variants[chip]
			f := newFixture(t, v)
			f.init(t)

			st := f.dev.State()
			if st.Init != "done" || st.Sleep != "normal" {
				t.Errorf("state after init: %+v", st)
			}
			fw := st.Firmware
			if fw.ChipID != v.ChipID || fw.Major != 1 || fw.Minor != 1 || fw.ProductID != sim.ProductID {
				t.Errorf("firmware info %+v", fw)
			}
			if fw.VChip != v.VChip || fw.VProto != v.VProto {
				t.Errorf("vchip/vproto = %d/%d", fw.VChip, fw.VProto)
			}
			if f.chip.Reg(v.Regs.TcDeviceCtl) != 1 || f.chip.Reg(v.Regs.TcInterruptCtl) != 1 {
				t.Error("chip not started")
			}
			if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got&reg.DriveStart == 0 {
				t.Errorf("drive ctl after init = %#x", got)
			}
		})
	}
}

func TestInitRetriesWithPowerCycle(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	fails := 0
	chip.XferHook = func([]bus.Msg) error {
		if fails < 2 {
			fails++
			return errors.New("no ack")
		}
		return nil
	}
	f := attach(t, chip, v)
	f.init(t)

	if got := f.pins.Count("vdd", false); got != 2 {
		t.Errorf("power cycles = %d, want 2", got)
	}
	if got := f.chip.Batches(); got != 3 {
		t.Errorf("identity reads = %d, want 3", got)
	}
	if f.dev.State().Init != "done" {
		t.Error("init not done after retries")
	}
}

func TestInitGivesUp(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	chip.XferHook = func([]bus.Msg) error { return errors.New("no ack") }
	f := attach(t, chip, v)

	err := f.dev.Init()
	var ioErr *IoError
	if !errors.As(err, &ioErr) {
		t.Fatalf("want *IoError, got %v", err)
	}
	if got := f.pins.Count("vdd", false); got != reg.InitRetryMax {
		t.Errorf("power cycles = %d, want %d", got, reg.InitRetryMax)
	}
	if f.dev.State().Init != "need_init" {
		t.Error("init marked done after failure")
	}
}

func TestInitIdentityMismatch(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	tests := []struct {
		name  string
		setup func(c *sim.Chip)
		field string
	}{
		{
			name:  "chip id",
			setup: func(c *sim.Chip) { c.SetBytes(v.Regs.SprChipID, []byte("4894")) },
			field: "chip id",
		},
		{
			name: "vchip",
			setup: func(c *sim.Chip) {
				c.SetReg(v.Regs.TcVersion, reg.Version{Minor: 1, Major: 1, Chip: 9, Protocol: 4}.Raw())
			},
			field: "ic info",
		},
		{
			name: "vproto",
			setup: func(c *sim.Chip) {
				c.SetReg(v.Regs.TcVersion, reg.Version{Minor: 1, Major: 1, Chip: 8, Protocol: 2}.Raw())
			},
			field: "ic info",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := sim.New(v)
			tt.setup(chip)
			f := attach(t, chip, v)

			err := f.dev.Init()
			var mm *IdentityMismatchError
			if !errors.As(err, &mm) {
				t.Fatalf("want *IdentityMismatchError, got %v", err)
			}
			if mm.Field != tt.field {
				t.Errorf("field = %q, want %q", mm.Field, tt.field)
			}
		})
	}
}

func TestInitExtendedInfo(t *testing.T) {
	v := reg.Variants[reg.LG4946]
	chip := sim.New(v)
	chip.SetReg(v.Regs.InfoFPCType, 3)
	chip.SetReg(v.Regs.InfoWfrType, 0x0F)
	chip.SetReg(v.Regs.InfoLotNum, 42)
	chip.SetReg(v.Regs.InfoSerialNum, 0xBEEF)
	f := attach(t, chip, v)
	f.init(t)

	fw := f.dev.State().Firmware
	if fw.FPC != 3 || fw.Wafer != 7 || fw.Lot != 42 || fw.Serial != 0xBEEF {
		t.Errorf("option fields %+v", fw)
	}
	if got := chip.Batches(); got != 2 {
		t.Errorf("identity transfers = %d, want 2", got)
	}
	text := f.dev.VersionText()
	for _, want := range []string{"fpc : 3", "wfr : 7", "serial : 0xBEEF", "product id : " + sim.ProductID} {
		if !strings.Contains(text, want) {
			t.Errorf("version text missing %q:\n%s", want, text)
		}
	}
}

func TestInitExtendedVersion(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	chip.SetReg(v.Regs.TcVersionExt, 0x0105)

	// The ext word is ignored until the version flags it.
	f := attach(t, chip, v)
	f.init(t)
	if fw := f.dev.State().Firmware; fw.Ext != 0 {
		t.Errorf("ext = %#x without flag", fw.Ext)
	}

	chip.SetReg(v.Regs.TcVersion, reg.Version{Minor: 1, Major: 1, Ext: true, Chip: 8, Protocol: 4}.Raw())
	f.init(t)
	if fw := f.dev.State().Firmware; fw.Ext != 0x0105 {
		t.Errorf("ext = %#x, want 0x0105", fw.Ext)
	}
	if text := f.dev.VersionText(); !strings.Contains(text, "version : 00000105") {
		t.Errorf("version text:\n%s", text)
	}
}

func TestVersionTextErased(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	chip.SetReg(v.Regs.InfoChipVersion, 0xFF)
	f := attach(t, chip, v)
	f.init(t)

	text := f.dev.VersionText()
	if !strings.Contains(text, "Flash Erased(0xFF)") || !strings.Contains(text, "v1.01") {
		t.Errorf("version text:\n%s", text)
	}
}

func TestInitWritesIMEState(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)

	if err := f.dev.Notify(EventIMEState, 1); err != nil {
		t.Fatal(err)
	}
	if len(f.chip.Writes(v.Regs.ImeState)) != 0 {
		t.Error("ime state written before init")
	}
	f.init(t)
	if got := f.chip.Reg(v.Regs.ImeState); got != 1 {
		t.Errorf("ime state = %d, want 1", got)
	}
}

func TestSelfTest(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)

	var out bytes.Buffer
	if err := f.dev.RunSelfTest(&out); err != nil {
		t.Fatalf("self test: %v\n%s", err, out.String())
	}
	if got := out.String(); strings.Count(got, "PASS") != 2 {
		t.Errorf("output:\n%s", got)
	}
	if got := f.chip.Reg(v.Regs.SprChipTest); got != reg.ChipTestPatterns[len(reg.ChipTestPatterns)-1] {
		t.Errorf("last pattern = %#x", got)
	}

	f.chip.ReadHook = func(addr uint16, size int) ([]byte, error) {
		if addr == v.Regs.SprChipTest {
			return []byte{1, 2, 3, 4}, nil
		}
		return nil, nil
	}
	out.Reset()
	if err := f.dev.RunSelfTest(&out); err == nil {
		t.Error("self test passed with a stuck register")
	}
	if !strings.Contains(out.String(), "ic bus r/w test: FAIL") {
		t.Errorf("output:\n%s", out.String())
	}
}

type stubTester struct{ called bool }

func (s *stubTester) RunSelfTest(w io.Writer) error {
	s.called = true
	_, err := io.WriteString(w, "custom\n")
	return err
}

func TestSelfTestOverride(t *testing.T) {
	st := &stubTester{}
	f := newFixture(t, reg.Variants[reg.LG4895], WithSelfTester(st))

	var out bytes.Buffer
	if err := f.dev.RunSelfTest(&out); err != nil {
		t.Fatal(err)
	}
	if !st.called || out.String() != "custom\n" {
		t.Errorf("installed tester not used: %q", out.String())
	}
	if len(f.chip.Frames()) != 0 {
		t.Error("built-in test touched the bus")
	}
}

func TestProbe(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)

	if err := f.dev.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	st := f.dev.State()
	if st.Firmware.ProductID != sim.ProductID {
		t.Errorf("product id = %q", st.Firmware.ProductID)
	}
	if st.Init != "need_init" {
		t.Error("probe ran init")
	}
	if f.dev.tciDebugType != 1 {
		t.Errorf("tci debug type = %d", f.dev.tciDebugType)
	}
}

func TestProbeProductIDUnstable(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	chip := sim.New(v)
	reads := 0
	chip.ReadHook = func(addr uint16, size int) ([]byte, error) {
		if addr != v.Regs.TcProductID1 {
			return nil, nil
		}
		reads++
		if reads == 1 {
			return []byte("AAAAAAAA"), nil
		}
		return nil, nil
	}
	f := attach(t, chip, v)

	err := f.dev.Probe()
	var mm *IdentityMismatchError
	if !errors.As(err, &mm) || mm.Field != "product id" {
		t.Fatalf("want product id mismatch, got %v", err)
	}
	if reads != 4 {
		t.Errorf("product id reads = %d, want 4", reads)
	}
}

func TestProbeChargerBoot(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v, WithBootMode(BootCharger))

	if err := f.dev.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	writes := f.chip.Writes(v.Regs.TcDriveCtl)
	if len(writes) != 2 {
		t.Fatalf("drive writes = %d, want 2", len(writes))
	}
	if w := reg.Words(writes[0])[0]; w&reg.DrivePartial == 0 {
		t.Errorf("first drive ctl = %#x, want partial", w)
	}
	if w := reg.Words(writes[1])[0]; w != reg.DriveStop {
		t.Errorf("last drive ctl = %#x, want stop", w)
	}
	if got := f.chip.Commands(); !bytes.Equal(got, []byte{reg.CmdEna, reg.CmdDis}) {
		t.Errorf("clock commands = % x", got)
	}

	if err := f.dev.Suspend(); !errors.Is(err, ErrNotReady) {
		t.Errorf("suspend in charger boot: %v", err)
	}
	if err := f.dev.Resume(); !errors.Is(err, ErrNotReady) {
		t.Errorf("resume in charger boot: %v", err)
	}
}

func TestSuspendResume(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)

	// Suspend before init schedules one.
	if err := f.dev.Suspend(); err != nil {
		t.Fatal(err)
	}
	f.dev.WaitIdle()
	st := f.dev.State()
	if st.Init != "done" || !st.Suspended {
		t.Fatalf("state after early suspend %+v", st)
	}

	if err := f.dev.Resume(); err != nil {
		t.Fatal(err)
	}
	f.dev.WaitIdle()
	if st := f.dev.State(); st.Suspended || st.Init != "done" {
		t.Errorf("state after resume %+v", st)
	}
}

func TestRemove(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)

	if err := f.dev.Remove(); err != nil {
		t.Fatal(err)
	}
	if f.pins.IRQEnabled() {
		t.Error("irq left enabled")
	}
	if f.pins.Count("vdd", false) != 1 || f.dev.State().Init != "need_init" {
		t.Error("chip not powered off")
	}
}

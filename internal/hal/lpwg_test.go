package hal

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"siwtouch/internal/reg"
)

func TestDrivingModeNotAllowed(t *testing.T) {
	tests := []struct {
		chip reg.Chip
		mode reg.LCDMode
	}{
		{reg.LG4894, reg.ModeU3Partial},
		{reg.LG4895, reg.ModeU3QuickCover},
		{reg.SW1828, reg.ModeU2Unblank},
		{reg.SW1828, reg.ModeU3Partial},
	}
	for _, tt := range tests {
		t.Run(string(tt.chip)+"/"+tt.mode.String(), func(t *testing.T) {
			v := reg.Variants[tt.chip]
			f := newFixture(t, v)
			f.init(t)
			before := f.dev.State().DrivingMode
			f.chip.ResetFrames()

			err := f.dev.SetDrivingMode(tt.mode)
			var na *ModeNotAllowedError
			if !errors.As(err, &na) || na.Mode != tt.mode {
				t.Fatalf("want *ModeNotAllowedError, got %v", err)
			}
			if got := f.dev.State().DrivingMode; got != before {
				t.Errorf("driving mode changed to %s", got)
			}
			if len(f.chip.Frames()) != 0 {
				t.Error("bus touched for a rejected mode")
			}
		})
	}
}

func TestDrivingControlWords(t *testing.T) {
	const u3 = reg.DriveDispU3 | reg.DriveMode6LHB | reg.DriveStart
	tests := []struct {
		mode  reg.LCDMode
		debug uint32
		want  uint32
	}{
		{reg.ModeU0, 0, reg.DriveStart},
		{reg.ModeU2, 0, reg.DriveDispU2 | reg.DriveStart},
		{reg.ModeU2Unblank, 0, reg.DriveDispU2 | reg.DriveStart},
		{reg.ModeU3, 0, u3},
		{reg.ModeU3, DebugOption1, reg.DriveDispU3 | reg.DriveStart},
		{reg.ModeU3Partial, 0, reg.DrivePartial | u3},
		{reg.ModeU3QuickCover, 0, reg.DriveQCover | u3},
		{reg.ModeStop, 0, reg.DriveStop},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			v := reg.Variants[reg.LG4946]
			f := newFixture(t, v, WithDebugOption(tt.debug))
			f.init(t)

			if err := f.dev.SetDrivingMode(tt.mode); err != nil {
				t.Fatal(err)
			}
			if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got != tt.want {
				t.Errorf("drive ctl = %#x, want %#x", got, tt.want)
			}
			if got := f.dev.State().DrivingMode; got != tt.mode.String() {
				t.Errorf("driving mode = %s", got)
			}
		})
	}
}

func TestDrivingSwipeArming(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)

	if err := f.dev.SetDrivingMode(reg.ModeU2); err != nil {
		t.Fatal(err)
	}
	w := f.lastWords(t, v.Regs.SwipeEnableW)
	if len(w) != 11 || w[0] != SwipeLeftBit|SwipeRightBit {
		t.Errorf("swipe block %v", w)
	}
	if w[1] != reg.Dup16(5) || w[6] != reg.Dup16(150) {
		t.Errorf("swipe distance/max time = %#x/%#x", w[1], w[6])
	}

	if err := f.dev.SetDrivingMode(reg.ModeU3); err != nil {
		t.Fatal(err)
	}
	if w := f.lastWords(t, v.Regs.SwipeEnableW); len(w) != 1 || w[0] != 0 {
		t.Errorf("swipe not disarmed: %v", w)
	}
}

func TestDrivingMissedCommandReinits(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)
	f.pins.Reset()

	misses := 1
	f.chip.ReadHook = func(addr uint16, size int) ([]byte, error) {
		if addr == v.Regs.TcStatus && misses > 0 {
			misses--
			return make([]byte, size), nil
		}
		return nil, nil
	}

	if err := f.dev.SetDrivingMode(reg.ModeU3); err != nil {
		t.Fatal(err)
	}
	if got := f.pins.Count("vdd", false); got != 1 {
		t.Errorf("power cycles = %d, want 1", got)
	}
	if f.dev.State().Init != "done" {
		t.Error("chip not reinitialized")
	}
	if !f.pins.IRQEnabled() {
		t.Error("irq left disabled")
	}
	if f.dev.recurChk {
		t.Error("recursion guard left set")
	}
}

func TestConfigureLPWGKnock(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)

	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{int(LPWGDoubleTap), 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	want := []uint32{
		0x01,
		reg.Pack16(2, 0),
		reg.Pack16(6, 6),
		reg.Pack16(70, 70),
		reg.Pack16(100, 100),
		reg.Pack16(10, 255),
		reg.Pack16(0, 20),
	}
	if got := f.lastWords(t, v.Regs.TciEnableW); !slices.Equal(got, want) {
		t.Errorf("tci block = %#x\nwant       %#x", got, want)
	}
	if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got&reg.DrivePartial == 0 {
		t.Errorf("drive ctl = %#x, want partial", got)
	}
	if st := f.dev.State(); st.LPWG.Mode != LPWGDoubleTap || st.LPWG.Screen {
		t.Errorf("lpwg state %+v", st.LPWG)
	}
}

func TestConfigureLPWGPassword(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)

	if err := f.dev.ConfigureLPWG(LPWGDoubleTapCheck, []int{1}); err != nil {
		t.Fatal(err)
	}
	if err := f.dev.ConfigureLPWG(LPWGTapCount, []int{4}); err != nil {
		t.Fatal(err)
	}
	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{int(LPWGPassword), 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	w := f.lastWords(t, v.Regs.TciEnableW)
	if w[0] != 0x01|0x01<<16 {
		t.Errorf("tci mode = %#x", w[0])
	}
	if w[1] != reg.Pack16(2, 4) {
		t.Errorf("tap counts = %#x", w[1])
	}
	if w[5] != reg.Pack16(7, 255) || w[6] != reg.Pack16(68, 20) {
		t.Errorf("distance/delay = %#x/%#x", w[5], w[6])
	}
}

func TestConfigureLPWGActiveArea(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v, WithLPWG(true, false, 5))
	f.init(t)

	if err := f.dev.ConfigureLPWG(LPWGActiveArea, []int{0, 1440, 0, 2560}); err != nil {
		t.Fatal(err)
	}
	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{int(LPWGDoubleTap), 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	want := map[uint16]uint32{
		v.Regs.ActAreaX1W: reg.Dup16(5),
		v.Regs.ActAreaY1W: reg.Dup16(5),
		v.Regs.ActAreaX2W: reg.Dup16(1435),
		v.Regs.ActAreaY2W: reg.Dup16(2555),
	}
	for addr, w := range want {
		if got := f.chip.Reg(addr); got != w {
			t.Errorf("area reg 0x%03X = %#x, want %#x", addr, got, w)
		}
	}
}

func TestConfigureLPWGResumePolicy(t *testing.T) {
	tests := []struct {
		name      string
		chip      reg.Chip
		values    []int
		wantKnock bool
		wantDrive uint32
	}{
		{"screen on", reg.LG4895, []int{1, 1, SensorFar, CoverOpen}, false, reg.DriveDispU3},
		{"knock", reg.LG4895, []int{1, 0, SensorFar, CoverOpen}, true, reg.DrivePartial},
		{"cover closed", reg.LG4895, []int{1, 0, SensorFar, CoverClose}, false, reg.DrivePartial},
		{"no gesture", reg.LG4895, []int{0, 0, SensorFar, CoverOpen}, false, reg.DriveStop},
		{"quick cover", reg.LG4946, []int{0, 1, SensorFar, CoverClose}, false, reg.DriveQCover},
		{"quick cover knock", reg.LG4946, []int{1, 0, SensorFar, CoverClose}, true, reg.DrivePartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := reg.Variants[tt.chip]
			f := newFixture(t, v)
			f.init(t)

			if err := f.dev.ConfigureLPWG(LPWGUpdateAll, tt.values); err != nil {
				t.Fatal(err)
			}
			knock := f.lastWords(t, v.Regs.TciEnableW)[0] != 0
			if knock != tt.wantKnock {
				t.Errorf("knock armed = %v, want %v", knock, tt.wantKnock)
			}
			if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got&tt.wantDrive != tt.wantDrive {
				t.Errorf("drive ctl = %#x, want bits %#x", got, tt.wantDrive)
			}
		})
	}
}

func TestConfigureLPWGNoPartial(t *testing.T) {
	v := reg.Variants[reg.LG4894]
	f := newFixture(t, v)
	f.init(t)
	f.chip.ResetFrames()

	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{1, 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	if len(f.chip.Writes(v.Regs.TciEnableW)) != 0 || len(f.chip.Writes(v.Regs.TcDriveCtl)) != 0 {
		t.Error("gesture armed on a chip without partial driving")
	}
}

func TestLPWGSuspendPolicy(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)
	f.chip.ResetFrames()

	// No gesture, screen on: the clock is simply kept running.
	if err := f.dev.Suspend(); err != nil {
		t.Fatal(err)
	}
	want := []byte{reg.CmdEna, reg.CmdOscOn, reg.CmdClkOn, reg.CmdDis}
	if got := f.chip.Commands(); !bytes.Equal(got, want) {
		t.Errorf("commands = % x, want % x", got, want)
	}

	update := func(values ...int) {
		t.Helper()
		f.chip.ResetFrames()
		if err := f.dev.ConfigureLPWG(LPWGUpdateAll, values); err != nil {
			t.Fatal(err)
		}
	}

	update(int(LPWGNone), 0, SensorFar, CoverOpen)
	if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got != reg.DriveStop {
		t.Errorf("deep sleep drive ctl = %#x", got)
	}

	update(int(LPWGDoubleTap), 0, SensorFar, CoverOpen)
	if got := f.lastWords(t, v.Regs.TciEnableW)[0]; got != 0x01 {
		t.Errorf("knock mode = %#x", got)
	}
	if got := f.lastWords(t, v.Regs.TcDriveCtl)[0]; got&reg.DriveDispU3 != reg.DriveDispU3 {
		t.Errorf("drive ctl = %#x, want U3", got)
	}

	update(int(LPWGDoubleTap), 0, SensorFar, CoverClose)
	if got := f.lastWords(t, v.Regs.TciEnableW); len(got) != 1 || got[0] != 0 {
		t.Errorf("knock not disarmed under cover: %v", got)
	}

	update(int(LPWGDoubleTap), 1, SensorFar, CoverOpen)
	if len(f.chip.Writes(v.Regs.TciEnableW)) != 0 {
		t.Error("gesture changed with the screen on")
	}

	f.dev.o.MFTS = true
	update(int(LPWGNone), 0, SensorFar, CoverOpen)
	if got := f.lastWords(t, v.Regs.TciEnableW)[0]; got != 0x01 {
		t.Errorf("mfts knock mode = %#x", got)
	}
}

func TestLPWGQuickCoverArea(t *testing.T) {
	v := reg.Variants[reg.LG4946]
	f := newFixture(t, v)
	f.init(t)
	f.dev.SetQuickCoverAreas(noArea, Area{X1: 10, Y1: 20, X2: 30, Y2: 40})
	if err := f.dev.Suspend(); err != nil {
		t.Fatal(err)
	}

	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{1, 0, SensorFar, CoverClose}); err != nil {
		t.Fatal(err)
	}
	if got := f.chip.Reg(v.Regs.ActAreaX1W); got != reg.Dup16(10) {
		t.Errorf("x1 = %#x", got)
	}
	if got := f.chip.Reg(v.Regs.ActAreaY2W); got != reg.Dup16(40) {
		t.Errorf("y2 = %#x", got)
	}

	// The open area is unset, so it leaves the registers alone.
	f.chip.ResetFrames()
	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{1, 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	if len(f.chip.Writes(v.Regs.ActAreaX1W)) != 0 {
		t.Error("unset open area written")
	}
}

func TestConfigureLPWGArguments(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)

	if err := f.dev.ConfigureLPWG(99, []int{1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown code: %v", err)
	}
	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{1, 0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short update: %v", err)
	}
	if err := f.dev.ConfigureLPWG(LPWGReply, nil); err != nil {
		t.Errorf("reply: %v", err)
	}

	off := newFixture(t, v, WithLPWG(false, false, 0))
	if err := off.dev.ConfigureLPWG(LPWGUpdateAll, []int{1, 0, 1, 0}); err != nil {
		t.Errorf("disabled lpwg: %v", err)
	}
	if len(off.chip.Frames()) != 0 {
		t.Error("disabled lpwg touched the bus")
	}
}

func TestLPWGDebugReason(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.init(t)
	f.dev.SetDebugTypes(1, 0)

	if err := f.dev.ConfigureLPWG(LPWGUpdateAll, []int{int(LPWGDoubleTap), 0, SensorFar, CoverOpen}); err != nil {
		t.Fatal(err)
	}
	w := f.lastWords(t, v.Regs.TciFailDebugW)
	if len(w) != 2 || w[0] != 1<<2 || w[1] != reg.TciDebugAll {
		t.Errorf("debug reason words %#x", w)
	}
}

func TestReadLPWGDebug(t *testing.T) {
	v := reg.Variants[reg.LG4895]
	f := newFixture(t, v)
	f.dev.SetDebugTypes(1, 1)

	tci := make([]byte, 36)
	copy(tci, reg.PutWords(reg.Pack16(2, 1)))
	tci[4], tci[5] = 1, 3
	tci[20] = 7
	f.chip.SetBytes(v.Regs.TciDebugR, tci)

	swipe := make([]byte, 20)
	copy(swipe, reg.PutWords(reg.Pack16(1, 0)))
	swipe[4] = 5
	f.chip.SetBytes(v.Regs.SwipeDebugR, swipe)

	dbg, err := f.dev.ReadLPWGDebug()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"DISTANCE_INTER_TAP", "TIMEOUT_INTER_TAP_LONG"}; !slices.Equal(dbg.TCI[0], want) {
		t.Errorf("tci1 = %v", dbg.TCI[0])
	}
	if want := []string{"PALM_STATE"}; !slices.Equal(dbg.TCI[1], want) {
		t.Errorf("tci2 = %v", dbg.TCI[1])
	}
	if want := []string{"OUT_OF_AREA"}; !slices.Equal(dbg.Swipe[SwipeR], want) || dbg.Swipe[SwipeL] != nil {
		t.Errorf("swipe = %v", dbg.Swipe)
	}

	f.dev.SetDebugTypes(0, 0)
	f.chip.ResetFrames()
	if _, err := f.dev.ReadLPWGDebug(); err != nil {
		t.Fatal(err)
	}
	if len(f.chip.Frames()) != 0 {
		t.Error("debug buffers read while disabled")
	}
}

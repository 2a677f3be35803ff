package hal

import (
	"encoding/binary"
	"fmt"
	"time"

	"siwtouch/internal/reg"
)

// UpgradeResult says whether an upgrade call changed the firmware.
type UpgradeResult int

const (
	NoChangeNeeded UpgradeResult = iota
	Upgraded
)

func (r UpgradeResult) String() string {
	if r == Upgraded {
		return "upgraded"
	}
	return "no_change_needed"
}

const (
	upgradeRetryMax = 2
	upgradeSettle   = 200 * time.Millisecond
)

type upgradeConfig struct {
	force  bool
	verify bool
}

// UpgradeOption tweaks a single upgrade call.
type UpgradeOption func(*upgradeConfig)

// Force downloads the image regardless of the running version.
func Force() UpgradeOption {
	return func(c *upgradeConfig) { c.force = true }
}

// Verify reads the code SRAM back after streaming and compares it with
// the image before the chip is released.
func Verify() UpgradeOption {
	return func(c *upgradeConfig) { c.verify = true }
}

func (d *Device) upgradeConfig(opts []UpgradeOption) upgradeConfig {
	c := upgradeConfig{force: d.o.ForceUpgrade, verify: d.o.VerifyUpgrade}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Upgrade compares image with the running firmware and downloads it when
// it is newer, or always when forced. The chip is not reset afterwards.
//
// Example:
//
//	res, err := dev.Upgrade(image, hal.Force())
//	if err == nil && res == hal.Upgraded {
//	    err = dev.Reset(hal.ResetHardSync)
//	}
func (d *Device) Upgrade(image []byte, opts ...UpgradeOption) (UpgradeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.upgradeConfig(opts)
	update, err := d.fwCompare(image, c.force)
	if err != nil || !update {
		return NoChangeNeeded, err
	}
	if err := d.fwUpgrade(image, c.verify, 0); err != nil {
		return NoChangeNeeded, err
	}
	return Upgraded, nil
}

// UpgradeWithRetry loads the named image from the firmware source, an
// empty name selecting the configured default, and downloads it with up
// to two attempts. A successful download is followed by a synchronous
// hardware reset.
func (d *Device) UpgradeWithRetry(name string, opts ...UpgradeOption) (UpgradeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fbSuspended {
		d.log.Warn("fw upgrade while suspended, skip")
		return NoChangeNeeded, fmt.Errorf("upgrade: display suspended: %w", ErrNotReady)
	}
	if d.o.Firmware == nil {
		return NoChangeNeeded, &ImageError{Reason: "no firmware source", Err: ErrInvalidArgument}
	}
	if name == "" {
		name = d.o.FirmwareName
	}

	image, err := d.o.Firmware.Get(name)
	if err != nil {
		return NoChangeNeeded, &ImageError{Reason: "load " + name, Err: err}
	}
	d.log.Info("fw image loaded", "name", name, "size", len(image))

	c := d.upgradeConfig(opts)
	update, err := d.fwCompare(image, c.force)
	if err != nil || !update {
		return NoChangeNeeded, err
	}

	d.delay(upgradeSettle)

	for i := range upgradeRetryMax {
		if err = d.fwUpgrade(image, c.verify, i); err == nil {
			break
		}
		d.log.Warn("fw upgrade attempt failed", "attempt", i, "err", err)
	}
	if err != nil {
		d.log.Error("fw upgrade failed", err, "name", name)
		return NoChangeNeeded, err
	}

	if err := d.reset(ResetHardSync); err != nil {
		return Upgraded, err
	}
	return Upgraded, nil
}

// imageVersion is the version block embedded in a firmware image.
type imageVersion struct {
	major, minor uint32
	ext          uint32
	pid          string
}

// fwCompare reports whether image should be downloaded.
func (d *Device) fwCompare(image []byte, force bool) (bool, error) {
	fwMax := d.v.FwSizeMax
	if err := d.checkImageSize(image); err != nil {
		return false, err
	}

	devExt := d.fw.Ext
	devMajor, devMinor := d.fw.Major, d.fw.Minor
	if devExt != 0 {
		devMajor, devMinor = reg.ExtMajor(devExt), reg.ExtMinor(devExt)
	}

	le := binary.LittleEndian
	verOff := le.Uint32(image[reg.BinVerOffsetPos:])
	extOff := le.Uint32(image[reg.BinVerExtOffsetPos:])
	pidOff := le.Uint32(image[reg.BinPIDOffsetPos:])

	if verOff == 0 {
		return false, &ImageError{Reason: "zero version offset", Err: ErrInvalidArgument}
	}
	if (devExt != 0) != (extOff != 0) && !force {
		d.log.Warn("fw compare: different version format, use force update", "dev_ext", devExt != 0)
		return false, &ImageError{Reason: "different version format", Err: ErrInvalidArgument}
	}
	if pidOff == 0 {
		return false, &ImageError{Reason: "zero pid offset", Err: ErrInvalidArgument}
	}
	limit := uint64(fwMax)
	if uint64(verOff)+4 > limit || (extOff != 0 && uint64(extOff)+4 > limit) || uint64(pidOff)+8 > limit {
		d.log.Warn("fw compare: invalid offset", "ver", verOff, "ver_ext", extOff, "pid", pidOff, "max", fwMax)
		return false, &ImageError{Reason: "offset beyond code area", Err: ErrInvalidArgument}
	}

	bv := reg.ParseVersion(le.Uint32(image[verOff:]))
	bin := imageVersion{
		major: uint32(bv.Major),
		minor: uint32(bv.Minor),
		pid:   reg.CString(image[pidOff : pidOff+8]),
	}
	if extOff != 0 {
		if !bv.Ext {
			return false, &ImageError{Reason: "no ext flag in binary", Err: ErrInvalidArgument}
		}
		bin.ext = le.Uint32(image[extOff:])
		if bin.ext == 0 {
			return false, &ImageError{Reason: "invalid extension in binary", Err: ErrInvalidArgument}
		}
		bin.major, bin.minor = reg.ExtMajor(bin.ext), reg.ExtMinor(bin.ext)
		d.log.Info("fw compare: bin", "version", fmt.Sprintf("%08X", bin.ext), "pid", bin.pid)
	} else {
		d.log.Info("fw compare: bin", "version", fmt.Sprintf("%d.%02d", bin.major, bin.minor), "pid", bin.pid)
	}
	d.log.Info("fw compare: dev", "version", fmt.Sprintf("%d.%02d", devMajor, devMinor), "pid", d.fw.ProductID)

	var update bool
	switch {
	case force:
		update = true
	case devMajor == 0 && devMinor == 0:
		d.log.Warn("fw can not be 0.0, check the panel connection")
	case bin.major > devMajor:
		update = true
	case bin.major == devMajor && bin.minor > devMinor:
		update = true
	}
	d.log.Info("fw compare", "update", update, "force", force)
	return update, nil
}

func (d *Device) checkImageSize(image []byte) error {
	fwMax := d.v.FwSizeMax
	if len(image) != fwMax && len(image) != fwMax+reg.FlashConfSize {
		return &ImageError{Reason: fmt.Sprintf("wrong size 0x%X, want 0x%X or 0x%X+0x%X",
			len(image), fwMax, fwMax, reg.FlashConfSize)}
	}
	return nil
}

// fwUpgrade streams the code area and, when appended, the config block.
func (d *Device) fwUpgrade(image []byte, verify bool, attempt int) error {
	d.log.Info("fw upgrade: start", "attempt", attempt)

	if err := d.checkImageSize(image); err != nil {
		return err
	}
	fwMax := d.v.FwSizeMax
	withConf := len(image) == fwMax+reg.FlashConfSize
	d.log.Info("fw upgrade", "size", len(image), "include_conf", withConf)

	start := time.Now()
	if err := d.fwDownloadCode(image[:fwMax], verify, start); err != nil {
		return err
	}
	if withConf {
		if err := d.fwDownloadConf(image[fwMax:]); err != nil {
			return err
		}
		d.progress("conf", reg.FlashConfSize, reg.FlashConfSize, start)
	}

	d.progress("complete", len(image), len(image), start)
	d.log.Info("fw upgrade: done", "attempt", attempt, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (d *Device) progress(phase string, written, total int, start time.Time) {
	if d.o.Progress == nil {
		return
	}
	pct := 100.0
	if total > 0 {
		pct = float64(written) * 100 / float64(total)
	}
	d.o.Progress(Progress{
		Phase:      phase,
		Written:    written,
		Total:      total,
		Percentage: pct,
		Elapsed:    time.Since(start),
	})
}

func (d *Device) fwDownloadCode(code []byte, verify bool, start time.Time) error {
	// Hold the core in reset and open the SRAM for writing.
	if err := d.e.WriteValue(d.regs.SprRstCtl, 2); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.SprSramCtl, 3); err != nil {
		return err
	}

	for pos := 0; pos < len(code); pos += reg.MaxRWSize {
		chunk := code[pos:min(pos+reg.MaxRWSize, len(code))]
		if err := d.e.WriteValue(d.regs.SprCodeOffset, uint32(pos>>2)); err != nil {
			return err
		}
		if err := d.e.Write(d.regs.CodeAccessAddr, chunk); err != nil {
			return err
		}
		d.progress("code", pos+len(chunk), len(code), start)
	}

	if verify {
		if err := d.fwVerify(code, start); err != nil {
			return err
		}
	}

	if err := d.e.WriteValue(d.regs.SprSramCtl, 0); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.SprRstCtl, 0); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.SprBootCtl, 1); err != nil {
		return err
	}

	if last, err := d.waitFor(d.regs.TcFlashDnStatus, d.v.BootReady, ^uint32(0), ms(10), 200); err != nil {
		d.log.Error("fw upgrade: boot check failed", err, "expect", hex32(d.v.BootReady), "last", hex32(last))
		return err
	}
	d.log.Info("fw upgrade: boot check done")

	if err := d.e.WriteValue(d.regs.TcFlashDnCtl, reg.FlashKeyCodeCmd<<16|1); err != nil {
		return err
	}
	d.delay(d.o.HwResetDelay)

	if last, err := d.waitFor(d.regs.TcFlashDnStatus, d.v.CodeDone, 0xFFFF, ms(30), 600); err != nil {
		d.log.Error("fw upgrade: code check failed", err, "expect", hex32(d.v.CodeDone), "last", hex32(last))
		return err
	}
	d.log.Info("fw upgrade: code check done")
	return nil
}

func (d *Device) fwVerify(code []byte, start time.Time) error {
	buf := make([]byte, reg.MaxRWSize)
	for pos := 0; pos < len(code); pos += reg.MaxRWSize {
		want := code[pos:min(pos+reg.MaxRWSize, len(code))]
		got := buf[:len(want)]
		if err := d.e.WriteValue(d.regs.SprCodeOffset, uint32(pos>>2)); err != nil {
			return err
		}
		if err := d.e.Read(d.regs.CodeAccessAddr, got); err != nil {
			return err
		}
		for i := range want {
			if got[i] != want[i] {
				return &VerifyError{Offset: pos + i, Want: want[i], Got: got[i]}
			}
		}
		d.progress("verify", pos+len(want), len(code), start)
	}
	d.log.Info("fw download verified")
	return nil
}

func (d *Device) fwDownloadConf(conf []byte) error {
	v, err := d.e.ReadValue(d.regs.TcConfdnBaseAddr)
	if err != nil {
		return err
	}
	base := (v >> 16) & 0xFFFF
	d.log.Debug("fw upgrade: conf base", "addr", fmt.Sprintf("%04Xh", base), "raw", hex32(v))
	if base < reg.FlashConfBaseMin || base >= reg.FlashConfBaseMax {
		return &ImageError{Reason: fmt.Sprintf("conf base 0x%04X out of range", base), Err: ErrRange}
	}

	if err := d.e.WriteValue(d.regs.SerialDataOffset, base); err != nil {
		return err
	}
	if err := d.e.Write(d.regs.DataI2cbaseAddr, conf); err != nil {
		return err
	}
	if err := d.e.WriteValue(d.regs.TcFlashDnCtl, reg.FlashKeyConfCmd<<16|2); err != nil {
		return err
	}

	if last, err := d.waitFor(d.regs.TcFlashDnStatus, d.v.ConfDone, 0xFFFF, ms(30), 600); err != nil {
		d.log.Error("fw upgrade: conf check failed", err, "expect", hex32(d.v.ConfDone), "last", hex32(last))
		return err
	}
	d.log.Info("fw upgrade: conf check done")
	return nil
}

package hal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"siwtouch/internal/reg"
)

const waferTypeMask = 0x07

// Boot status bits reported in SprBootStatus.
const (
	bootBusy     = 1 << 1
	bootDone     = 1 << 2
	bootCRCError = 1 << 3
)

// Init reads the chip identity, retrying with a power cycle between
// attempts, then starts the chip and re-applies the gesture policy.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initChip()
}

func (d *Device) initChip() error {
	var err error
	for i := range reg.InitRetryMax {
		if err = d.icInfo(); err == nil {
			break
		}
		d.log.Warn("retry getting ic info", "attempt", i+1, "err", err)

		d.pl.EnableIRQ(false)
		if perr := d.power(PowerOff); perr != nil {
			d.log.Warn("power off failed", "err", perr)
		}
		if perr := d.power(PowerOn); perr != nil {
			d.log.Warn("power on failed", "err", perr)
		}
		d.delay(d.o.HwResetDelay)
	}
	if err != nil {
		d.log.Error("init failed", err, "chip", d.v.Chip)
		return err
	}

	if err := d.initRegSet(); err != nil {
		d.log.Error("init reg set failed", err, "chip", d.v.Chip)
	}
	if err := d.o.Hooks.WatchRTCOn(); err != nil {
		d.log.Warn("watch rtc on failed", "err", err)
	}

	d.init = InitDone
	d.sleep = SleepNormal

	if err := d.lpwgMode(); err != nil {
		d.log.Error("lpwg control failed", err)
		return err
	}
	if err := d.o.Hooks.WatchCheck(); err != nil {
		d.log.Error("watch check failed", err)
		return err
	}

	d.log.Info("init done", "chip", d.v.Chip)
	return nil
}

func (d *Device) initRegSet() error {
	if err := d.e.WriteValue(d.regs.TcDeviceCtl, 1); err != nil {
		return fmt.Errorf("start chip: %w", err)
	}
	if err := d.e.WriteValue(d.regs.TcInterruptCtl, 1); err != nil {
		return fmt.Errorf("start chip irq: %w", err)
	}
	return d.e.WriteValue(d.regs.ImeState, d.ime)
}

// icInfo reads and checks the chip identity in one batched transfer, plus
// a second one for the option fields on chips that have them.
func (d *Device) icInfo() error {
	var (
		chipID   = make([]byte, 4)
		version  = make([]byte, 4)
		revision = make([]byte, 4)
		product  = make([]byte, 8)
		verExt   = make([]byte, 4)
		boot     = make([]byte, 4)
	)
	x := new(Xfer).
		AddRead(d.regs.SprChipID, chipID).
		AddRead(d.regs.TcVersion, version).
		AddRead(d.regs.InfoChipVersion, revision).
		AddRead(d.regs.TcProductID1, product).
		AddRead(d.regs.TcVersionExt, verExt).
		AddRead(d.regs.SprBootStatus, boot)
	if err := d.e.Xfer(x); err != nil {
		return fmt.Errorf("ic info: %w", err)
	}

	var opt [7][]byte
	if d.v.ExtInfo {
		x := new(Xfer)
		addrs := [7]uint16{
			d.regs.InfoFPCType, d.regs.InfoWfrType, d.regs.InfoCGType, d.regs.InfoLotNum,
			d.regs.InfoSerialNum, d.regs.InfoDate, d.regs.InfoTime,
		}
		for i, a := range addrs {
			opt[i] = make([]byte, 4)
			x.AddRead(a, opt[i])
		}
		if err := d.e.Xfer(x); err != nil {
			return fmt.Errorf("ic info option: %w", err)
		}
	}

	le := binary.LittleEndian
	ver := reg.ParseVersion(le.Uint32(version))
	fw := FirmwareInfo{
		ChipID:     reg.CString(chipID),
		Major:      uint32(ver.Major),
		Minor:      uint32(ver.Minor),
		Build:      uint32(ver.Build),
		Ext:        le.Uint32(verExt),
		Revision:   le.Uint32(revision),
		ProductID:  reg.CString(product),
		VChip:      uint32(ver.Chip),
		VProto:     uint32(ver.Protocol),
		BootStatus: le.Uint32(boot),
	}
	if !ver.Ext {
		fw.Ext = 0
	}
	if d.v.ExtInfo {
		fw.FPC = le.Uint32(opt[0])
		fw.Wafer = le.Uint32(opt[1]) & waferTypeMask
		fw.CG = le.Uint32(opt[2])
		fw.Lot = le.Uint32(opt[3])
		fw.Serial = le.Uint32(opt[4])
		fw.Date = le.Uint32(opt[5])
		fw.Time = le.Uint32(opt[6])
	}
	d.fw = fw
	d.chipRaw = le.Uint32(chipID)

	if fw.Ext != 0 {
		d.log.Info("ic info", "chip_id", fw.ChipID, "version", fmt.Sprintf("%08X(%d.%02d)", fw.Ext, fw.Major, fw.Minor),
			"revision", fw.Revision)
	} else {
		d.log.Info("ic info", "chip_id", fw.ChipID, "version", fmt.Sprintf("v%d.%02d", fw.Major, fw.Minor),
			"raw", hex32(ver.Raw()), "revision", fw.Revision)
	}
	d.log.Info("ic info", "product_id", fw.ProductID,
		"flash_boot", pick(fw.BootStatus&bootBusy != 0, "BUSY", "idle"),
		"boot", pick(fw.BootStatus&bootDone != 0, "done", "booting"),
		"crc", pick(fw.BootStatus&bootCRCError != 0, "ERROR", "ok"),
		"boot_status", hex32(fw.BootStatus))
	if d.v.ExtInfo {
		d.log.Info("ic info", "fpc", fw.FPC, "wfr", fw.Wafer, "cg", fw.CG, "lot", fw.Lot,
			"sn", fmt.Sprintf("%Xh", fw.Serial), "date", fwDate(fw.Date), "time", fwTime(fw.Time))
	}

	if fw.ChipID != d.v.ChipID {
		return &IdentityMismatchError{Field: "chip id", Want: d.v.ChipID, Got: fw.ChipID}
	}
	if fw.VChip != d.v.VChip || fw.VProto != d.v.VProto {
		d.log.Warn("ic info is abnormal", "chip", d.v.Chip, "vchip", fw.VChip, "vproto", fw.VProto)
		return &IdentityMismatchError{
			Field: "ic info",
			Want:  fmt.Sprintf("%d/%d", d.v.VChip, d.v.VProto),
			Got:   fmt.Sprintf("%d/%d", fw.VChip, fw.VProto),
		}
	}
	d.log.Debug("ic info is good", "chip", d.v.Chip, "vchip", fw.VChip, "vproto", fw.VProto)
	return nil
}

func fwDate(v uint32) string {
	return fmt.Sprintf("%04d.%02d.%02d", v&0xFFFF, (v>>16)&0xFF, (v>>24)&0xFF)
}

func fwTime(v uint32) string {
	return fmt.Sprintf("%02d:%02d:%02d site%d", v&0xFF, (v>>8)&0xFF, (v>>16)&0xFF, (v>>24)&0xFF)
}

// VersionText renders the identity last read from the chip.
func (d *Device) VersionText() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	fw := d.fw
	var b strings.Builder
	fmt.Fprintf(&b, "chip : %s\n", d.v.Chip)
	if fw.Ext != 0 {
		fmt.Fprintf(&b, "version : %08X\n", fw.Ext)
	} else {
		fmt.Fprintf(&b, "version : v%d.%02d, chip : %d, protocol : %d\n", fw.Major, fw.Minor, fw.VChip, fw.VProto)
	}
	if fw.Revision == 0xFF {
		b.WriteString("revision : Flash Erased(0xFF)\n")
	} else {
		fmt.Fprintf(&b, "revision : %d\n", fw.Revision)
	}
	fmt.Fprintf(&b, "product id : %s\n", fw.ProductID)
	if d.v.ExtInfo {
		fmt.Fprintf(&b, "fpc : %d, cg : %d, wfr : %d\n", fw.FPC, fw.CG, fw.Wafer)
		fmt.Fprintf(&b, "lot : %d\n", fw.Lot)
		fmt.Fprintf(&b, "serial : 0x%X\n", fw.Serial)
		fmt.Fprintf(&b, "date : %s %s\n", fwDate(fw.Date), fwTime(fw.Time))
	}
	return b.String()
}

// icTest writes each test pattern to SprChipTest and reads it back.
func (d *Device) icTest() error {
	for _, p := range reg.ChipTestPatterns {
		if err := d.e.WriteValue(d.regs.SprChipTest, p); err != nil {
			return fmt.Errorf("ic test write %08X: %w", p, err)
		}
		got, err := d.e.ReadValue(d.regs.SprChipTest)
		if err != nil {
			return fmt.Errorf("ic test read %08X: %w", p, err)
		}
		if got != p {
			return fmt.Errorf("ic test: wrote %08X, read %08X: %w", p, got, ErrRange)
		}
	}
	d.log.Debug("ic bus r/w test done")
	return nil
}

// productID reads the panel id four times. The first and last reads must
// be non-empty and equal.
func (d *Device) productID() error {
	var first, last [8]byte
	for i := range 4 {
		dst := last[:]
		if i == 0 {
			dst = first[:]
		}
		if err := d.e.Read(d.regs.TcProductID1, dst); err != nil {
			d.log.Error("failed to read product id", err, "attempt", i)
			return err
		}
	}

	switch {
	case first[0] == 0 || last[0] == 0:
		d.log.Warn("product id not valid", "first", reg.CString(first[:]), "last", reg.CString(last[:]))
		return &IdentityMismatchError{Field: "product id", Want: "non-empty", Got: reg.CString(last[:])}
	case !bytes.Equal(first[:], last[:]):
		d.log.Warn("product id not verified", "first", reg.CString(first[:]), "last", reg.CString(last[:]))
		return &IdentityMismatchError{Field: "product id", Want: reg.CString(first[:]), Got: reg.CString(last[:])}
	}

	d.fw.ProductID = reg.CString(first[:])
	d.log.Debug("product id", "id", d.fw.ProductID)
	return nil
}

func (d *Device) chipsetCheck() error {
	d.delay(d.o.HwResetDelay)
	if err := d.icTest(); err != nil {
		return err
	}
	return d.productID()
}

// StatusRegs is the register snapshot logged on a read-reg event.
type StatusRegs struct {
	ICStatus      uint32 `json:"ic_status"`
	Status        uint32 `json:"status"`
	SubdispStatus uint32 `json:"subdisp_status"`
	Version       uint32 `json:"version"`
	ChipID        uint32 `json:"chip_id"`
}

func (d *Device) readStatusRegs() (StatusRegs, error) {
	var raw [5][4]byte
	x := new(Xfer).
		AddRead(d.regs.TcICStatus, raw[0][:]).
		AddRead(d.regs.TcStatus, raw[1][:]).
		AddRead(d.regs.SprSubdispStatus, raw[2][:]).
		AddRead(d.regs.TcVersion, raw[3][:]).
		AddRead(d.regs.SprChipID, raw[4][:])
	if err := d.e.Xfer(x); err != nil {
		d.log.Error("read reg xfer failed", err)
		return StatusRegs{}, err
	}

	le := binary.LittleEndian
	r := StatusRegs{
		ICStatus:      le.Uint32(raw[0][:]),
		Status:        le.Uint32(raw[1][:]),
		SubdispStatus: le.Uint32(raw[2][:]),
		Version:       le.Uint32(raw[3][:]),
		ChipID:        le.Uint32(raw[4][:]),
	}
	d.log.Info("read reg",
		"ic_status", hex32(r.ICStatus), "status", hex32(r.Status),
		"subdisp", hex32(r.SubdispStatus), "version", hex32(r.Version),
		"chip_id", hex32(r.ChipID))
	d.log.Info("read reg", "version", fmt.Sprintf("v%d.%02d", (r.Version>>8)&0x0F, r.Version&0xFF))
	return r, nil
}

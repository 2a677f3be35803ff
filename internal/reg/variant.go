package reg

import (
	"fmt"
	"strings"
)

// Chip names one member of the SiW controller family.
type Chip string

const (
	LG4894 Chip = "LG4894"
	LG4895 Chip = "LG4895"
	LG4946 Chip = "LG4946"
	SW1828 Chip = "SW1828"
)

// LCDMode is the display power state the touch driving mode follows.
type LCDMode int

const (
	ModeU0 LCDMode = iota
	ModeU2Unblank
	ModeU2
	ModeU3
	ModeU3Partial
	ModeU3QuickCover
	ModeStop
)

var modeNames = [...]string{
	ModeU0:           "U0",
	ModeU2Unblank:    "U2_UNBLANK",
	ModeU2:           "U2",
	ModeU3:           "U3",
	ModeU3Partial:    "U3_PARTIAL",
	ModeU3QuickCover: "U3_QUICKCOVER",
	ModeStop:         "STOP",
}

func (m LCDMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("LCDMode(%d)", int(m))
}

// modeBit returns the allowed-mode mask bit for m.
func modeBit(m LCDMode) uint32 {
	return 1 << uint(m)
}

// Modes builds an allowed-mode mask.
func Modes(ms ...LCDMode) uint32 {
	var mask uint32
	for _, m := range ms {
		mask |= modeBit(m)
	}
	return mask
}

// StatusType selects the variant-specific interrupt status checks.
type StatusType int

const (
	StatusDefault StatusType = iota
	StatusType1
)

// CheckModeType selects how LCD mode changes re-arm the watch block.
type CheckModeType int

const (
	// CheckModeDriving compares the new LCD mode with the current driving
	// mode and re-arms the watch only when leaving U2_UNBLANK.
	CheckModeDriving CheckModeType = iota
	// CheckModePrevLCD compares against the previous LCD mode and re-arms
	// the watch on every U2 entry.
	CheckModePrevLCD
)

// Variant is the capability record of one chip. Every chip-dependent
// decision in the driver reads one of these fields.
type Variant struct {
	Chip Chip
	// ChipID is the four-character identity string reported in SprChipID.
	ChipID string
	// VChip and VProto are the identity fields expected in TcVersion.
	VChip  uint32
	VProto uint32

	// CmdReset selects the in-band command reset sequence for soft reset.
	CmdReset bool
	// CmdClock selects OSC/CLK command gating for deep sleep.
	CmdClock bool
	// ExtInfo enables the second identity read (fpc, wafer, lot, ...).
	ExtInfo bool
	// U2UnblankAsU2 folds U2_UNBLANK into U2 on LCD mode notification.
	U2UnblankAsU2 bool

	Status    StatusType
	CheckMode CheckModeType

	// AllowedModes is a mask of LCDMode bits the chip accepts.
	AllowedModes uint32

	FwSizeMax int
	// BootReady, CodeDone and ConfDone are the flash status values polled
	// during reset and firmware download.
	BootReady uint32
	CodeDone  uint32
	ConfDone  uint32

	Regs *Map
}

// Allowed reports whether the chip accepts driving mode m.
func (v Variant) Allowed(m LCDMode) bool {
	return v.AllowedModes&modeBit(m) != 0
}

// QuickCoverAllowed reports whether the quick cover driving mode exists.
func (v Variant) QuickCoverAllowed() bool {
	return v.Allowed(ModeU3QuickCover)
}

// PartialAllowed reports whether the partial driving mode exists.
func (v Variant) PartialAllowed() bool {
	return v.Allowed(ModeU3Partial)
}

const (
	flashBootReady = 0x0A0A0000
	flashCodeDone  = 0x42
	flashConfDone  = 0x84
)

var baseModes = Modes(ModeU0, ModeU2Unblank, ModeU2, ModeU3, ModeStop)

// Variants is the capability table for every supported chip.
var Variants = map[Chip]Variant{
	LG4894: {
		Chip:         LG4894,
		ChipID:       "4894",
		VChip:        4,
		VProto:       4,
		AllowedModes: baseModes,
		FwSizeMax:    0x10000,
		BootReady:    flashBootReady,
		CodeDone:     flashCodeDone,
		ConfDone:     flashConfDone,
		Regs:         &DefaultMap,
	},
	LG4895: {
		Chip:          LG4895,
		ChipID:        "4895",
		VChip:         8,
		VProto:        4,
		CmdReset:      true,
		CmdClock:      true,
		U2UnblankAsU2: true,
		Status:        StatusType1,
		AllowedModes:  baseModes | Modes(ModeU3Partial),
		FwSizeMax:     0x11000,
		BootReady:     flashBootReady,
		CodeDone:      flashCodeDone,
		ConfDone:      flashConfDone,
		Regs:          &DefaultMap,
	},
	LG4946: {
		Chip:         LG4946,
		ChipID:       "4946",
		VChip:        7,
		VProto:       4,
		CmdReset:     true,
		CmdClock:     true,
		ExtInfo:      true,
		Status:       StatusType1,
		CheckMode:    CheckModePrevLCD,
		AllowedModes: baseModes | Modes(ModeU3Partial, ModeU3QuickCover),
		FwSizeMax:    0x1C000,
		BootReady:    flashBootReady,
		CodeDone:     flashCodeDone,
		ConfDone:     flashConfDone,
		Regs:         &DefaultMap,
	},
	SW1828: {
		Chip:         SW1828,
		ChipID:       "1828",
		VChip:        9,
		VProto:       4,
		AllowedModes: Modes(ModeU0, ModeU2, ModeU3, ModeStop),
		FwSizeMax:    0x8000,
		BootReady:    flashBootReady,
		CodeDone:     flashCodeDone,
		ConfDone:     flashConfDone,
		Regs:         &DefaultMap,
	},
}

// Lookup returns the capability record for the named chip. Names are
// matched case-insensitively.
func Lookup(name string) (Variant, error) {
	v, ok := Variants[Chip(strings.ToUpper(strings.TrimSpace(name)))]
	if !ok {
		return Variant{}, fmt.Errorf("reg: unknown chip %q", name)
	}
	return v, nil
}

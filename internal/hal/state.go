package hal

import (
	"strings"

	"siwtouch/internal/reg"
)

// InitState tracks whether the chip has been through a successful init.
type InitState int

const (
	NeedInit InitState = iota
	InitDone
)

func (s InitState) String() string {
	if s == InitDone {
		return "done"
	}
	return "need_init"
}

// SleepState is the chip clock state.
type SleepState int

const (
	SleepNormal SleepState = iota
	SleepDeep
)

func (s SleepState) String() string {
	if s == SleepDeep {
		return "deep_sleep"
	}
	return "normal"
}

// BootMode changes probe and resume behaviour.
type BootMode int

const (
	BootNormal BootMode = iota
	// BootCharger parks the chip in deep sleep for charger-only boot.
	BootCharger
	// BootTCCheck skips the drive status check after mode changes.
	BootTCCheck
)

// ParseBootMode maps a config name to a BootMode; unknown names are normal.
func ParseBootMode(s string) BootMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "charger":
		return BootCharger
	case "tc_check":
		return BootTCCheck
	default:
		return BootNormal
	}
}

func (m BootMode) String() string {
	switch m {
	case BootCharger:
		return "charger"
	case BootTCCheck:
		return "tc_check"
	default:
		return "normal"
	}
}

// LPWGMode selects which wake gestures are armed while the display is off.
type LPWGMode int

const (
	LPWGNone LPWGMode = iota
	LPWGDoubleTap
	LPWGPassword
	LPWGSignature
	LPWGPasswordOnly
)

// Proximity sensor and cover states.
const (
	SensorNear = 0
	SensorFar  = 1

	CoverOpen  = 0
	CoverClose = 1
)

// LPWGState is the host-provided gesture policy input.
type LPWGState struct {
	Mode   LPWGMode `json:"mode"`
	Screen bool     `json:"screen"`
	Sensor int      `json:"sensor"`
	QCover int      `json:"qcover"`
}

// LPWGCtrl is one set of LPWG changes. Fields set to -1 are left alone.
type LPWGCtrl struct {
	Clk    int
	QCover int
	LPWG   int
	LCD    int
}

// NewLPWGCtrl returns a control record that changes nothing.
func NewLPWGCtrl() LPWGCtrl {
	return LPWGCtrl{Clk: -1, QCover: -1, LPWG: -1, LCD: -1}
}

// LPWG configuration codes accepted by ConfigureLPWG.
const (
	LPWGActiveArea = iota + 1
	LPWGTapCount
	LPWGDoubleTapCheck
	LPWGUpdateAll
	LPWGReply
)

// Area is an active-area rectangle. Values are either plain coordinates or
// dual-slot packed words, depending on where the area is used.
type Area struct {
	X1, Y1, X2, Y2 uint32
}

// TCIInfo holds the tap recognition parameters of one knock slot.
type TCIInfo struct {
	TapCount    uint16
	MinIntertap uint16
	MaxIntertap uint16
	TouchSlop   uint16
	TapDistance uint16
	IntrDelay   uint16
}

// TCI slots.
const (
	TCI1 = 0
	TCI2 = 1
)

// TCICtrl is the full knock configuration.
type TCICtrl struct {
	Mode           uint32
	Info           [2]TCIInfo
	Area           Area
	QCoverOpen     Area
	QCoverClose    Area
	DoubleTapCheck bool
}

// SwipeInfo holds the swipe recognition parameters of one direction.
type SwipeInfo struct {
	Distance    uint16
	RatioThres  uint16
	RatioDist   uint16
	RatioPeriod uint16
	MinTime     uint16
	MaxTime     uint16
	Area        [4]uint16
}

// Swipe directions.
const (
	SwipeR = 0
	SwipeL = 1

	SwipeRightBit = 1 << 0
	SwipeLeftBit  = 1 << 16
)

// SwipeCtrl is the full swipe configuration.
type SwipeCtrl struct {
	Mode uint32
	Info [2]SwipeInfo
}

// State is a snapshot of the device state for diagnostics.
type State struct {
	Chip        reg.Chip     `json:"chip"`
	Init        string       `json:"init"`
	Sleep       string       `json:"sleep"`
	LCDMode     string       `json:"lcd_mode"`
	PrevLCDMode string       `json:"prev_lcd_mode"`
	DrivingMode string       `json:"driving_mode"`
	Suspended   bool         `json:"suspended"`
	Palm        bool         `json:"palm"`
	Fingers     uint32       `json:"fingers"`
	LPWG        LPWGState    `json:"lpwg"`
	Firmware    FirmwareInfo `json:"firmware"`
}

// FirmwareInfo is the identity read back from the chip.
type FirmwareInfo struct {
	ChipID     string `json:"chip_id"`
	Major      uint32 `json:"major"`
	Minor      uint32 `json:"minor"`
	Build      uint32 `json:"build"`
	Ext        uint32 `json:"ext,omitempty"`
	Revision   uint32 `json:"revision"`
	ProductID  string `json:"product_id"`
	VChip      uint32 `json:"vchip"`
	VProto     uint32 `json:"vproto"`
	BootStatus uint32 `json:"boot_status"`

	// Option fields, read only on chips with extended identity.
	FPC    uint32 `json:"fpc,omitempty"`
	Wafer  uint32 `json:"wafer,omitempty"`
	CG     uint32 `json:"cg,omitempty"`
	Lot    uint32 `json:"lot,omitempty"`
	Serial uint32 `json:"serial,omitempty"`
	Date   uint32 `json:"date,omitempty"`
	Time   uint32 `json:"time,omitempty"`
}

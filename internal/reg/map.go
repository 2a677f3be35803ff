// Package reg holds the SiW register vocabulary: word addresses, protocol
// bit definitions, the per-chip variant capability table and helpers for
// the packed dual-slot register layout.
package reg

// Map is the table of named register word addresses for one chip variant.
// Addresses are 12-bit word offsets as carried in the two-byte bus header.
// A Map is never modified after construction.
type Map struct {
	SprChipID        uint16
	SprRstCtl        uint16
	SprBootCtl       uint16
	SprSramCtl       uint16
	SprBootStatus    uint16
	SprSubdispStatus uint16
	SprCodeOffset    uint16
	SprChipTest      uint16
	SprChargerStatus uint16

	TcICStatus        uint16
	TcStatus          uint16
	TcVersion         uint16
	TcVersionExt      uint16
	TcProductID1      uint16
	TcFlashDnStatus   uint16
	TcConfdnBaseAddr  uint16
	TcDeviceCtl       uint16
	TcInterruptCtl    uint16
	TcInterruptStatus uint16
	TcDriveCtl        uint16
	TcFlashDnCtl      uint16

	InfoChipVersion uint16
	InfoFPCType     uint16
	InfoWfrType     uint16
	InfoCGType      uint16
	InfoLotNum      uint16
	InfoSerialNum   uint16
	InfoDate        uint16
	InfoTime        uint16

	// TCI block: seven consecutive words starting at TciEnableW.
	TciEnableW    uint16
	TapCountW     uint16
	MinIntertapW  uint16
	MaxIntertapW  uint16
	TouchSlopW    uint16
	TapDistanceW  uint16
	IntDelayW     uint16
	ActAreaX1W    uint16
	ActAreaY1W    uint16
	ActAreaX2W    uint16
	ActAreaY2W    uint16
	TciFailDebugW uint16
	TciFailBitW   uint16
	TciDebugR     uint16

	// Swipe block: eleven consecutive words starting at SwipeEnableW.
	SwipeEnableW      uint16
	SwipeDistW        uint16
	SwipeRatioThrW    uint16
	SwipeRatioDistW   uint16
	SwipeRatioPeriodW uint16
	SwipeTimeMinW     uint16
	SwipeTimeMaxW     uint16
	SwipeActAreaX1W   uint16
	SwipeActAreaY1W   uint16
	SwipeActAreaX2W   uint16
	SwipeActAreaY2W   uint16
	SwipeFailDebugW   uint16
	SwipeDebugR       uint16

	MaxDelta  uint16
	TouchMaxW uint16
	TouchMaxR uint16
	CallState uint16
	ImeState  uint16

	CodeAccessAddr   uint16
	DataI2cbaseAddr  uint16
	SerialDataOffset uint16
}

// DefaultMap is the register layout shared by the LG489x/LG4946/SW1828
// families.
var DefaultMap = Map{
	SprChipID:        0x000,
	SprRstCtl:        0x006,
	SprBootCtl:       0x00F,
	SprSramCtl:       0x010,
	SprBootStatus:    0x011,
	SprSubdispStatus: 0x021,
	SprCodeOffset:    0x078,
	SprChipTest:      0x041,
	SprChargerStatus: 0xC50,

	TcICStatus:        0x200,
	TcStatus:          0x201,
	TcVersion:         0x242,
	TcVersionExt:      0x26E,
	TcProductID1:      0x244,
	TcFlashDnStatus:   0x247,
	TcConfdnBaseAddr:  0x2F9,
	TcDeviceCtl:       0xC00,
	TcInterruptCtl:    0xC01,
	TcInterruptStatus: 0xC02,
	TcDriveCtl:        0xC03,
	TcFlashDnCtl:      0xC05,

	InfoChipVersion: 0x001,
	InfoFPCType:     0x278,
	InfoWfrType:     0x27B,
	InfoCGType:      0x279,
	InfoLotNum:      0x27A,
	InfoSerialNum:   0x27C,
	InfoDate:        0x27D,
	InfoTime:        0x27E,

	TciEnableW:    0xC20,
	TapCountW:     0xC21,
	MinIntertapW:  0xC22,
	MaxIntertapW:  0xC23,
	TouchSlopW:    0xC24,
	TapDistanceW:  0xC25,
	IntDelayW:     0xC26,
	ActAreaX1W:    0xC27,
	ActAreaY1W:    0xC28,
	ActAreaX2W:    0xC29,
	ActAreaY2W:    0xC2A,
	TciFailDebugW: 0xC2C,
	TciFailBitW:   0xC2D,
	TciDebugR:     0x2AE,

	SwipeEnableW:      0xC30,
	SwipeDistW:        0xC31,
	SwipeRatioThrW:    0xC32,
	SwipeRatioDistW:   0xC33,
	SwipeRatioPeriodW: 0xC34,
	SwipeTimeMinW:     0xC35,
	SwipeTimeMaxW:     0xC36,
	SwipeActAreaX1W:   0xC37,
	SwipeActAreaY1W:   0xC38,
	SwipeActAreaX2W:   0xC39,
	SwipeActAreaY2W:   0xC3A,
	SwipeFailDebugW:   0xC3D,
	SwipeDebugR:       0x2B8,

	MaxDelta:  0x2A0,
	TouchMaxW: 0xC6D,
	TouchMaxR: 0x2A1,
	CallState: 0xC7D,
	ImeState:  0xC7C,

	CodeAccessAddr:   0xFD8,
	DataI2cbaseAddr:  0xFD1,
	SerialDataOffset: 0x07B,
}

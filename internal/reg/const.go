package reg

// Bus framing and buffer limits.
const (
	// MaxBufIdx is the number of round-robin scratch buffer slots.
	MaxBufIdx = 4
	// MaxXferCount bounds the sub-operations of one batched transfer.
	MaxXferCount = 8
	// DefaultBufSize is the scratch buffer size when none is configured.
	DefaultBufSize = 8 << 10
	// MaxRWSize is the chunk size used to stream firmware images.
	MaxRWSize = 1 << 10

	HdrReadShort  = 0x00
	HdrReadLong   = 0x20
	HdrWriteShort = 0x40
	HdrWriteLong  = 0x60
)

// In-band commands, sent as a bare two-byte frame {cmd, 0}.
const (
	CmdOscOff    = 0x80
	CmdOscOn     = 0x81
	CmdClkOff    = 0x82
	CmdClkOn     = 0x83
	CmdResetLow  = 0x84
	CmdResetHigh = 0x85
	CmdDis       = 0xAA
	CmdEna       = 0xAB
)

// Firmware download handshake.
const (
	FlashConfSize      = 1 << 10
	FlashKeyCodeCmd    = 0xDFC1
	FlashKeyConfCmd    = 0xE87B
	FlashConfBaseMin   = 0x8C0
	FlashConfBaseMax   = 0x1200
	BinVerOffsetPos    = 0xE8
	BinVerExtOffsetPos = 0xDC
	BinPIDOffsetPos    = 0xF0
)

// InitRetryMax bounds identity-read attempts during init.
const InitRetryMax = 5

// Drive control word bits written to TcDriveCtl.
const (
	DriveStart    = 1 << 0
	DriveStop     = 1 << 1
	DriveMode6LHB = 1 << 2
	DriveDispU2   = 2 << 7
	DriveDispU3   = 3 << 7
	DrivePartial  = 1 << 9
	DriveQCover   = 1 << 10
)

// Interrupt status groups, compared against the XOR of the status word and
// IntNormalMask.
const (
	IntResetClrBit       = 0x620
	IntLoggingClrBit     = 0x50A0C0
	IntNormalMask        = 0x5080E0
	IntICAbnormalStatus  = 0x09
	IntDevAbnormalStatus = 0x600
)

// Status word bits.
const (
	StatusDevCtl    = 1 << 5
	StatusCodeCRCOk = 1 << 6
	StatusCfgCRCOk  = 1 << 7
	StatusU3Fault   = 1 << 9
	StatusSysErr    = 1 << 10
	StatusTCDriving = 1 << 13
	StatusESDCheck  = 1 << 15
	StatusFwReady   = 1 << 20
	StatusDispReady = 1 << 22
)

// Driving status read back from TcStatus after a drive control write.
const (
	TcStatusMask     = 0x1F
	TcStatusIdle     = 0x00
	TcStatusNotReady = 0x10
	TcStatusUnknown  = 0x0F
)

// Touch payload.
const (
	PalmID         = 15
	TouchEntrySize = 12
	TouchMaxPoints = 10
	// TouchInfoSize covers ic status, device status, the wakeup word and
	// the touch entries.
	TouchInfoSize = 12 + TouchMaxPoints*TouchEntrySize
)

// Touch entry event codes.
const (
	TouchIdle = 0
	TouchDown = 1
	TouchMove = 2
	TouchUp   = 3
)

// Wakeup types reported in the touch info header.
const (
	WakeAbsMode      = 0
	WakeKnock1       = 1
	WakeKnock2       = 2
	WakeSwipeRight   = 3
	WakeSwipeLeft    = 4
	WakeCustomDebug  = 200
	WakeKnockOvertap = 201
)

// LPWG debug limits.
const (
	TciDebugAll      = 0x3FFF
	TciDebugMaxNum   = 16
	SwipeDebugMaxNum = 8
	TciMaxTapCode    = 12
)

// ChipTestPatterns are written to and read back from SprChipTest during
// the chipset check.
var ChipTestPatterns = []uint32{
	0x5A5A5A5A, 0xA5A5A5A5, 0xF0F0F0F0, 0x0F0F0F0F,
	0xFF00FF00, 0x00FF00FF, 0xFFFF0000, 0x0000FFFF,
	0xFFFFFFFF, 0x00000000,
}

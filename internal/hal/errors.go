package hal

import (
	"errors"
	"fmt"

	"siwtouch/internal/reg"
)

var (
	// ErrOverflow is returned when a transfer does not fit the scratch
	// buffer once the bus header is accounted for.
	ErrOverflow = errors.New("hal: transfer exceeds buffer")
	// ErrInvalidArgument covers empty payloads, malformed descriptors and
	// unknown wakeup types.
	ErrInvalidArgument = errors.New("hal: invalid argument")
	// ErrRange is returned for out-of-range touch counts and for status
	// words that only need logging.
	ErrRange = errors.New("hal: value out of range")
	// ErrRestart means the controller must be reset.
	ErrRestart = errors.New("hal: controller needs restart")
	// ErrNotReady is returned when an operation needs the display awake or
	// the device initialized.
	ErrNotReady = errors.New("hal: device not ready")
)

// IoError wraps a transport failure with the frame it was moving.
type IoError struct {
	Op   string
	Addr uint16
	Size int
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("hal: %s 0x%03X (%d bytes): %v", e.Op, e.Addr, e.Size, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a register poll runs out of attempts.
// Last holds the final value read, or zero when the last read failed.
type TimeoutError struct {
	Addr   uint16
	Expect uint32
	Mask   uint32
	Last   uint32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hal: wait 0x%03X timed out: expect 0x%08X mask 0x%08X last 0x%08X",
		e.Addr, e.Expect, e.Mask, e.Last)
}

// IdentityMismatchError is returned when the chip identity read during
// init does not match the configured variant.
type IdentityMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("hal: %s mismatch: want %s, got %s", e.Field, e.Want, e.Got)
}

// ModeNotAllowedError is returned when a driving mode is requested that
// the chip variant does not support.
type ModeNotAllowedError struct {
	Chip reg.Chip
	Mode reg.LCDMode
}

func (e *ModeNotAllowedError) Error() string {
	return fmt.Sprintf("hal: %s does not support %s", e.Chip, e.Mode)
}

// ImageError describes a firmware image that can't be used.
type ImageError struct {
	Reason string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hal: firmware image: %s: %v", e.Reason, e.Err)
	}
	return "hal: firmware image: " + e.Reason
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// VerifyError reports the first byte that differs after a download.
type VerifyError struct {
	Offset int
	Want   byte
	Got    byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("hal: verify failed at 0x%05X: want 0x%02X, got 0x%02X", e.Offset, e.Want, e.Got)
}

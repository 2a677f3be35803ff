// Package bus provides the raw byte transports the touch controller is
// reached over. Transports move already-framed bytes; protocol framing is
// the register engine's job.
package bus

import (
	"fmt"
	"strings"
)

// Kind identifies the physical bus behind a Transport. Write framing
// differs between SPI and the other buses.
type Kind int

const (
	KindSPI Kind = iota
	KindI2C
	KindSim
)

func (k Kind) String() string {
	switch k {
	case KindSPI:
		return "spi"
	case KindI2C:
		return "i2c"
	case KindSim:
		return "sim"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Msg is one frame of a batched transfer. A read frame carries both Tx
// (header) and Rx (receive window); a write frame has a nil Rx.
type Msg struct {
	Tx []byte
	Rx []byte
}

// IsRead reports whether m receives data.
func (m Msg) IsRead() bool {
	return m.Rx != nil
}

// Transport is the minimal capability every bus offers.
type Transport interface {
	Kind() Kind
	// Read sends tx and fills rx. On full-duplex buses the receive window
	// starts at the first clocked byte, so rx includes the header region.
	Read(tx, rx []byte) error
	// Write sends tx.
	Write(tx []byte) error
	Close() error
}

// Batcher is implemented by transports able to run several frames as one
// bus transaction.
type Batcher interface {
	Xfer(msgs []Msg) error
}

// HexDump renders b as rows of 16 hex bytes for error logs.
func HexDump(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := min(i+16, len(b))
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%3d~%3d]", i, end-1)
		for _, c := range b[i:end] {
			fmt.Fprintf(&sb, " %02X", c)
		}
	}
	return sb.String()
}

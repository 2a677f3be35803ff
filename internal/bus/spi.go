package bus

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPI is a full-duplex transport on a spidev port.
type SPI struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPI initializes periph, opens the named SPI port ("" for the first
// one) and connects at speedHz in the given mode, 8 bits per word.
func OpenSPI(name string, speedHz int64, mode int) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: periph host init failed: %w", err)
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to open SPI port %q: %w", name, err)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode(mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("bus: failed to connect SPI: %w", err)
	}

	return &SPI{port: port, conn: conn}, nil
}

func (s *SPI) Kind() Kind { return KindSPI }

func (s *SPI) Read(tx, rx []byte) error {
	w, r := duplex(tx, rx)
	if err := s.conn.Tx(w, r); err != nil {
		return fmt.Errorf("bus: spi read: %w", err)
	}
	copy(rx, r)
	return nil
}

func (s *SPI) Write(tx []byte) error {
	if err := s.conn.Tx(tx, nil); err != nil {
		return fmt.Errorf("bus: spi write: %w", err)
	}
	return nil
}

// Xfer runs every frame in one spidev message, toggling CS between frames.
func (s *SPI) Xfer(msgs []Msg) error {
	packets := make([]spi.Packet, len(msgs))
	reads := make([][]byte, len(msgs))
	for i, m := range msgs {
		if !m.IsRead() {
			packets[i] = spi.Packet{W: m.Tx, BitsPerWord: 8}
			continue
		}
		w, r := duplex(m.Tx, m.Rx)
		packets[i] = spi.Packet{W: w, R: r, BitsPerWord: 8}
		reads[i] = r
	}
	if err := s.conn.TxPackets(packets); err != nil {
		return fmt.Errorf("bus: spi xfer of %d frames: %w", len(msgs), err)
	}
	for i, m := range msgs {
		if m.IsRead() {
			copy(m.Rx, reads[i])
		}
	}
	return nil
}

func (s *SPI) Close() error {
	return s.port.Close()
}

// duplex returns equal-length write and read buffers for a full-duplex
// exchange of tx followed by len(rx) clocked bytes.
func duplex(tx, rx []byte) (w, r []byte) {
	n := max(len(tx), len(rx))
	w = make([]byte, n)
	copy(w, tx)
	return w, make([]byte, n)
}

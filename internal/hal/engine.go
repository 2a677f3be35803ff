package hal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"siwtouch/internal/bus"
	"siwtouch/internal/reg"
)

// Engine frames register reads and writes onto a bus.Transport. Every
// call holds the engine lock for the whole bus transaction.
type Engine struct {
	mu sync.Mutex

	t     bus.Transport
	batch bus.Batcher
	log   Logger

	bufSize int
	txHdr   int
	rxHdr   int
	rxDummy int

	tx  [reg.MaxBufIdx][]byte
	rx  [reg.MaxBufIdx][]byte
	idx int

	// Per-message buffers for batched transfers, allocated on first use.
	xtx [reg.MaxXferCount][]byte
	xrx [reg.MaxXferCount][]byte
}

// NewEngine returns an engine over t. Batching is used only when cfg
// allows it and t implements bus.Batcher.
func NewEngine(t bus.Transport, cfg EngineConfig, log Logger) *Engine {
	if cfg.BufSize <= 0 {
		cfg.BufSize = reg.DefaultBufSize
	}
	cfg.TxHdrSize = max(cfg.TxHdrSize, 2)
	cfg.RxHdrSize = max(cfg.RxHdrSize, 0)
	cfg.RxDummySize = max(cfg.RxDummySize, 0)
	e := &Engine{
		t:       t,
		log:     log,
		bufSize: cfg.BufSize,
		txHdr:   cfg.TxHdrSize,
		rxHdr:   cfg.RxHdrSize,
		rxDummy: cfg.RxDummySize,
	}
	if b, ok := t.(bus.Batcher); ok && cfg.XferAllowed {
		e.batch = b
	}
	for i := range e.tx {
		e.tx[i] = make([]byte, cfg.BufSize)
		e.rx[i] = make([]byte, cfg.BufSize)
	}
	return e
}

// Batched reports whether multi-op transfers go out as one bus transaction.
func (e *Engine) Batched() bool {
	return e.batch != nil
}

// Read fills p from consecutive registers starting at addr.
func (e *Engine) Read(addr uint16, p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read(addr, p)
}

// Write stores p to consecutive registers starting at addr.
func (e *Engine) Write(addr uint16, p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.write(addr, p)
}

// ReadValue reads one 32-bit little-endian register.
func (e *Engine) ReadValue(addr uint16) (uint32, error) {
	var b [4]byte
	if err := e.Read(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteValue writes one 32-bit little-endian register.
func (e *Engine) WriteValue(addr uint16, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return e.Write(addr, b[:])
}

// Command sends a bare in-band command frame.
func (e *Engine) Command(cmd byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.next()
	tx[0] = cmd
	tx[1] = 0
	if err := e.t.Write(tx[:2]); err != nil {
		e.dump("cmd", tx[:2])
		return &IoError{Op: "cmd", Addr: uint16(cmd), Err: err}
	}
	return nil
}

// next rotates the scratch slot and returns its tx buffer.
func (e *Engine) next() []byte {
	e.idx = (e.idx + 1) % reg.MaxBufIdx
	return e.tx[e.idx]
}

func readHeader(addr uint16, size int) byte {
	hdr := byte(reg.HdrReadShort)
	if size > 4 {
		hdr = reg.HdrReadLong
	}
	return hdr | byte(addr>>8)&0x0F
}

func (e *Engine) writeHeader(addr uint16, size int, batched bool) byte {
	hdr := byte(reg.HdrWriteShort)
	if batched || e.t.Kind() == bus.KindSPI || size > 4 {
		hdr = reg.HdrWriteLong
	}
	return hdr | byte(addr>>8)&0x0F
}

// frameRead lays a read header into tx and returns the tx and rx lengths.
func (e *Engine) frameRead(tx []byte, addr uint16, size int) (int, int) {
	tx[0] = readHeader(addr, size)
	tx[1] = byte(addr)
	clear(tx[2 : 2+e.rxDummy])
	return 2 + e.rxDummy, e.rxHdr + size
}

func (e *Engine) checkRead(size int) error {
	if size <= 0 {
		return ErrInvalidArgument
	}
	if size > e.bufSize-e.rxHdr || 2+e.rxDummy > e.bufSize {
		return fmt.Errorf("read %d bytes: %w", size, ErrOverflow)
	}
	return nil
}

func (e *Engine) checkWrite(size int) error {
	if size <= 0 {
		return ErrInvalidArgument
	}
	if size > e.bufSize-e.txHdr {
		return fmt.Errorf("write %d bytes: %w", size, ErrOverflow)
	}
	return nil
}

func (e *Engine) read(addr uint16, p []byte) error {
	if err := e.checkRead(len(p)); err != nil {
		return err
	}
	tx := e.next()
	rx := e.rx[e.idx]

	txLen, rxLen := e.frameRead(tx, addr, len(p))
	if err := e.t.Read(tx[:txLen], rx[:rxLen]); err != nil {
		e.dump("read", tx[:txLen])
		return &IoError{Op: "read", Addr: addr, Size: len(p), Err: err}
	}
	copy(p, rx[e.rxHdr:rxLen])
	return nil
}

func (e *Engine) write(addr uint16, p []byte) error {
	if err := e.checkWrite(len(p)); err != nil {
		return err
	}
	tx := e.next()

	tx[0] = e.writeHeader(addr, len(p), false)
	tx[1] = byte(addr)
	clear(tx[2:e.txHdr])
	n := copy(tx[e.txHdr:], p)
	if err := e.t.Write(tx[:e.txHdr+n]); err != nil {
		e.dump("write", tx[:e.txHdr+n])
		return &IoError{Op: "write", Addr: addr, Size: len(p), Err: err}
	}
	return nil
}

func (e *Engine) dump(op string, frame []byte) {
	if len(frame) > 32 {
		frame = frame[:32]
	}
	e.log.Debug("bus frame failed", "op", op, "frame", "\n"+bus.HexDump(frame))
}

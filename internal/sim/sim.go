// Package sim emulates the register side of a SiW touch controller behind a
// bus.Transport. It decodes the same two-byte frames the real chip sees,
// keeps a byte-addressed register file and models the flash download
// handshake, so the driver can run without hardware.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"siwtouch/internal/bus"
	"siwtouch/internal/reg"
)

// Op classifies one decoded frame.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpCmd
)

// Frame is the decoded record of one bus frame.
type Frame struct {
	Op   Op
	Hdr  byte
	Addr uint16
	Data []byte
	// Batch is the index of the Xfer call the frame belonged to, or -1.
	Batch int
}

// Chip is a simulated controller.
type Chip struct {
	mu sync.Mutex

	kind    bus.Kind
	rxHdr   int
	txHdr   int
	variant reg.Variant
	regs    *reg.Map

	mem  map[uint32]byte
	code map[uint32]byte
	conf []byte

	frames  []Frame
	batches int

	// busyPolls counts flash status reads still to answer with zero.
	busyPolls int

	// ReadHook, when set, runs before every read. A non-nil error fails
	// the frame; a non-nil payload replaces the register file contents.
	ReadHook func(addr uint16, size int) ([]byte, error)
	// WriteHook, when set, runs before every write; a non-nil error fails
	// the frame and the write is not applied.
	WriteHook func(addr uint16, data []byte) error
	// XferHook, when set, can fail a whole batched transfer up front.
	XferHook func(msgs []bus.Msg) error
}

// Option tweaks a Chip at construction.
type Option func(*Chip)

// WithKind sets the bus kind reported to the driver.
func WithKind(k bus.Kind) Option {
	return func(c *Chip) { c.kind = k }
}

// WithHeaders sets the tx header size and the receive window header size
// the chip uses.
func WithHeaders(tx, rx int) Option {
	return func(c *Chip) {
		c.txHdr = tx
		c.rxHdr = rx
	}
}

// WithBusyPolls makes the first n flash status reads after each download
// command return zero.
func WithBusyPolls(n int) Option {
	return func(c *Chip) { c.busyPolls = n }
}

// ProductID is the panel id the simulator reports.
const ProductID = "LA145WF1"

// New returns a simulated chip of variant v, seeded with a valid identity,
// firmware version 1.01 and a normal running status.
func New(v reg.Variant, opts ...Option) *Chip {
	c := &Chip{
		kind:    bus.KindSPI,
		txHdr:   2,
		rxHdr:   4,
		variant: v,
		regs:    v.Regs,
		mem:     make(map[uint32]byte),
		code:    make(map[uint32]byte),
	}
	for _, o := range opts {
		o(c)
	}

	id := make([]byte, 4)
	copy(id, v.ChipID)
	c.poke(c.regs.SprChipID, id)

	ver := reg.Version{Minor: 1, Major: 1, Chip: uint8(v.VChip), Protocol: uint8(v.VProto)}
	c.SetReg(c.regs.TcVersion, ver.Raw())
	c.SetReg(c.regs.InfoChipVersion, 0x01)
	c.poke(c.regs.TcProductID1, []byte(ProductID))
	c.SetReg(c.regs.SprBootStatus, 1<<2)
	c.SetReg(c.regs.TcStatus, reg.IntNormalMask|0x07)
	c.SetReg(c.regs.TcFlashDnStatus, v.BootReady)
	c.SetReg(c.regs.TcConfdnBaseAddr, 0x0900<<16)
	return c
}

// Narrow hides the batched transfer capability of t.
func Narrow(t bus.Transport) bus.Transport {
	return narrow{t}
}

type narrow struct{ bus.Transport }

func (c *Chip) Kind() bus.Kind { return c.kind }

func (c *Chip) Close() error { return nil }

func (c *Chip) Read(tx, rx []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(tx, rx, -1)
}

func (c *Chip) Write(tx []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(tx, -1)
}

// Xfer executes every frame in order. A failing frame aborts the batch.
func (c *Chip) Xfer(msgs []bus.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.batches
	c.batches++

	if c.XferHook != nil {
		if err := c.XferHook(msgs); err != nil {
			return err
		}
	}
	for _, m := range msgs {
		var err error
		if m.IsRead() {
			err = c.read(m.Tx, m.Rx, batch)
		} else {
			err = c.write(m.Tx, batch)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var errFrame = errors.New("sim: malformed frame")

func (c *Chip) read(tx, rx []byte, batch int) error {
	if len(tx) < 2 || len(rx) < c.rxHdr {
		return errFrame
	}
	if h := tx[0] & 0xF0; h != reg.HdrReadShort && h != reg.HdrReadLong {
		return fmt.Errorf("sim: bad read header 0x%02X", tx[0])
	}
	addr := uint16(tx[0]&0x0F)<<8 | uint16(tx[1])
	size := len(rx) - c.rxHdr

	var data []byte
	if c.ReadHook != nil {
		d, err := c.ReadHook(addr, size)
		if err != nil {
			return err
		}
		data = d
	}
	if data == nil {
		data = c.fetch(addr, size)
	}
	copy(rx[c.rxHdr:], data)

	c.frames = append(c.frames, Frame{Op: OpRead, Hdr: tx[0], Addr: addr, Data: append([]byte(nil), rx[c.rxHdr:]...), Batch: batch})
	return nil
}

func (c *Chip) write(tx []byte, batch int) error {
	if len(tx) == 2 && tx[0]&0x80 != 0 {
		c.frames = append(c.frames, Frame{Op: OpCmd, Hdr: tx[0], Batch: batch})
		return nil
	}
	if len(tx) < c.txHdr {
		return errFrame
	}
	if h := tx[0] & 0xF0; h != reg.HdrWriteShort && h != reg.HdrWriteLong {
		return fmt.Errorf("sim: bad write header 0x%02X", tx[0])
	}
	addr := uint16(tx[0]&0x0F)<<8 | uint16(tx[1])
	data := tx[c.txHdr:]

	if c.WriteHook != nil {
		if err := c.WriteHook(addr, data); err != nil {
			return err
		}
	}
	c.store(addr, data)

	c.frames = append(c.frames, Frame{Op: OpWrite, Hdr: tx[0], Addr: addr, Data: append([]byte(nil), data...), Batch: batch})
	return nil
}

func (c *Chip) fetch(addr uint16, size int) []byte {
	out := make([]byte, size)
	switch addr {
	case c.regs.CodeAccessAddr:
		base := c.word(c.regs.SprCodeOffset) * 4
		for i := range out {
			out[i] = c.code[base+uint32(i)]
		}
		return out
	case c.regs.TcFlashDnStatus:
		if c.busyPolls > 0 {
			c.busyPolls--
			return out
		}
	}
	base := uint32(addr) * 4
	for i := range out {
		out[i] = c.mem[base+uint32(i)]
	}
	return out
}

func (c *Chip) store(addr uint16, data []byte) {
	switch addr {
	case c.regs.CodeAccessAddr:
		base := c.word(c.regs.SprCodeOffset) * 4
		for i, b := range data {
			c.code[base+uint32(i)] = b
		}
		return
	case c.regs.DataI2cbaseAddr:
		c.conf = append(c.conf[:0], data...)
		return
	}

	c.poke(addr, data)

	v := c.word(addr)
	switch addr {
	case c.regs.SprBootCtl:
		if v == 1 {
			c.poke(c.regs.TcFlashDnStatus, le(c.variant.BootReady))
		}
	case c.regs.TcFlashDnCtl:
		switch v >> 16 {
		case reg.FlashKeyCodeCmd:
			c.poke(c.regs.TcFlashDnStatus, le(c.variant.CodeDone))
		case reg.FlashKeyConfCmd:
			c.poke(c.regs.TcFlashDnStatus, le(c.variant.ConfDone))
		}
	case c.regs.TcDriveCtl:
		st := c.word(c.regs.TcStatus) &^ reg.TcStatusMask
		if v&reg.DriveStart != 0 {
			st |= 0x07
		}
		c.poke(c.regs.TcStatus, le(st))
	}
}

func (c *Chip) poke(addr uint16, data []byte) {
	base := uint32(addr) * 4
	for i, b := range data {
		c.mem[base+uint32(i)] = b
	}
}

func (c *Chip) word(addr uint16) uint32 {
	base := uint32(addr) * 4
	return uint32(c.mem[base]) | uint32(c.mem[base+1])<<8 |
		uint32(c.mem[base+2])<<16 | uint32(c.mem[base+3])<<24
}

func le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// SetReg stores a 32-bit register value.
func (c *Chip) SetReg(addr uint16, v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poke(addr, le(v))
}

// SetBytes stores raw bytes starting at addr.
func (c *Chip) SetBytes(addr uint16, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poke(addr, b)
}

// Reg returns a 32-bit register value.
func (c *Chip) Reg(addr uint16) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.word(addr)
}

// Code returns n bytes of the code SRAM starting at byte offset off.
func (c *Chip) Code(off, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = c.code[uint32(off+i)]
	}
	return out
}

// Conf returns the last configuration block streamed to the chip.
func (c *Chip) Conf() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.conf...)
}

// Frames returns a copy of the decoded frame log.
func (c *Chip) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// ResetFrames clears the frame log.
func (c *Chip) ResetFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// Batches reports how many Xfer calls the chip has served.
func (c *Chip) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// Writes returns the payloads written to addr, oldest first.
func (c *Chip) Writes(addr uint16) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, f := range c.frames {
		if f.Op == OpWrite && f.Addr == addr {
			out = append(out, f.Data)
		}
	}
	return out
}

// Commands returns the in-band commands received, oldest first.
func (c *Chip) Commands() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, f := range c.frames {
		if f.Op == OpCmd {
			out = append(out, f.Hdr)
		}
	}
	return out
}

// SetTouchInfo lays out an interrupt payload at TcICStatus: the ic status
// word, the device status word, the wakeup word and the raw touch entries.
func (c *Chip) SetTouchInfo(icStatus, status, wakeup uint32, entries []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poke(c.regs.TcICStatus, le(icStatus))
	c.poke(c.regs.TcICStatus+1, le(status))
	c.poke(c.regs.TcICStatus+2, le(wakeup))
	block := make([]byte, reg.TouchMaxPoints*reg.TouchEntrySize)
	copy(block, entries)
	c.poke(c.regs.TcICStatus+3, block)
}

// TouchEntry encodes one touch payload entry.
func TouchEntry(toolType, event, id uint8, x, y uint16, pressure, angle uint8, wMajor, wMinor uint16) []byte {
	b := make([]byte, reg.TouchEntrySize)
	b[0] = toolType&0x0F | event<<4
	b[1] = id
	binary.LittleEndian.PutUint16(b[2:], x)
	binary.LittleEndian.PutUint16(b[4:], y)
	b[6] = pressure
	b[7] = angle
	binary.LittleEndian.PutUint16(b[8:], wMajor)
	binary.LittleEndian.PutUint16(b[10:], wMinor)
	return b
}

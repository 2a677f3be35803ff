package hal

import (
	"fmt"

	"siwtouch/internal/bus"
	"siwtouch/internal/reg"
)

// XferOp is one read or write inside a batched transfer.
type XferOp struct {
	Addr uint16
	// Data is the destination of a read or the source of a write.
	Data []byte
	Read bool
}

// Xfer is an ordered list of register operations run as one transaction.
type Xfer struct {
	Ops []XferOp
}

// AddRead appends a read of len(dst) bytes at addr.
func (x *Xfer) AddRead(addr uint16, dst []byte) *Xfer {
	x.Ops = append(x.Ops, XferOp{Addr: addr, Data: dst, Read: true})
	return x
}

// AddWrite appends a write of src at addr.
func (x *Xfer) AddWrite(addr uint16, src []byte) *Xfer {
	x.Ops = append(x.Ops, XferOp{Addr: addr, Data: src})
	return x
}

// Xfer runs every operation of x under one engine lock. When the
// transport can't batch, the operations are issued one by one in order.
func (e *Engine) Xfer(x *Xfer) error {
	if x == nil || len(x.Ops) == 0 {
		return ErrInvalidArgument
	}
	if len(x.Ops) > reg.MaxXferCount {
		return fmt.Errorf("xfer of %d ops: %w", len(x.Ops), ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.batch == nil {
		for _, op := range x.Ops {
			var err error
			if op.Read {
				err = e.read(op.Addr, op.Data)
			} else {
				err = e.write(op.Addr, op.Data)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	msgs := make([]bus.Msg, len(x.Ops))
	for i, op := range x.Ops {
		if e.xtx[i] == nil {
			e.xtx[i] = make([]byte, e.bufSize)
			e.xrx[i] = make([]byte, e.bufSize)
		}
		tx := e.xtx[i]

		if op.Read {
			if err := e.checkRead(len(op.Data)); err != nil {
				return err
			}
			txLen, rxLen := e.frameRead(tx, op.Addr, len(op.Data))
			msgs[i] = bus.Msg{Tx: tx[:txLen], Rx: e.xrx[i][:rxLen]}
			continue
		}

		if err := e.checkWrite(len(op.Data)); err != nil {
			return err
		}
		tx[0] = e.writeHeader(op.Addr, len(op.Data), true)
		tx[1] = byte(op.Addr)
		clear(tx[2:e.txHdr])
		n := copy(tx[e.txHdr:], op.Data)
		msgs[i] = bus.Msg{Tx: tx[:e.txHdr+n]}
	}

	if err := e.batch.Xfer(msgs); err != nil {
		e.dump("xfer", msgs[0].Tx)
		return &IoError{Op: "xfer", Addr: x.Ops[0].Addr, Size: len(x.Ops), Err: err}
	}

	for i, op := range x.Ops {
		if op.Read {
			copy(op.Data, msgs[i].Rx[e.rxHdr:])
		}
	}
	return nil
}

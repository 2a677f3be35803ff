package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2C is a transport on an I2C bus. It has no batched mode; the register
// engine issues each frame on its own.
type I2C struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// OpenI2C initializes periph and opens the named bus ("" for the default,
// typically /dev/i2c-1) with the controller at the 7-bit address addr.
func OpenI2C(name string, addr uint16) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: periph host init failed: %w", err)
	}

	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to open I2C bus %q: %w", name, err)
	}

	return &I2C{
		bus: b,
		dev: &i2c.Dev{Bus: b, Addr: addr},
	}, nil
}

func (c *I2C) Kind() Kind { return KindI2C }

func (c *I2C) Read(tx, rx []byte) error {
	if err := c.dev.Tx(tx, rx); err != nil {
		return fmt.Errorf("bus: i2c read at 0x%02X: %w", c.dev.Addr, err)
	}
	return nil
}

func (c *I2C) Write(tx []byte) error {
	if err := c.dev.Tx(tx, nil); err != nil {
		return fmt.Errorf("bus: i2c write at 0x%02X: %w", c.dev.Addr, err)
	}
	return nil
}

func (c *I2C) Close() error {
	return c.bus.Close()
}

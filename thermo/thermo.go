// Package thermo reads the MAX31855 thermocouple-to-digital converter
// that feeds swimproto.Protocol's READ_FPGA_TEMP response. It is the
// max31855 package adapted from the long-obsolete
// github.com/google/periph API to periph.io/x/conn/v3/spi, and from a
// (°C, °C, error) reading pair to the single pass-through byte
// Protocol.SetTemperature wants.
package thermo

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Dev represents a MAX31855 device reachable over SPI mode 0 at up to
// 1MHz, per its datasheet.
type Dev struct {
	conn spi.Conn
}

// New configures port for the MAX31855's SPI mode and connects to it.
func New(port spi.Port) (*Dev, error) {
	conn, err := port.Connect(1*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("thermo: connect: %w", err)
	}
	return &Dev{conn: conn}, nil
}

// Temperature returns the thermocouple junction temperature in
// millidegrees Celsius and the chip's internal (cold junction)
// temperature, in that order.
func (d *Dev) Temperature() (thermocoupleMilliC, internalMilliC int32, err error) {
	var wBuf, rBuf [4]byte
	if err := d.conn.Tx(wBuf[:], rBuf[:]); err != nil {
		return 0, 0, fmt.Errorf("thermo: txn error: %w", err)
	}

	if rBuf[3]&1 != 0 {
		return 0, 0, fmt.Errorf("thermo: thermocouple open circuit")
	}
	if rBuf[3]&2 != 0 {
		return 0, 0, fmt.Errorf("thermo: thermocouple shorted to ground")
	}
	if rBuf[3]&4 != 0 {
		return 0, 0, fmt.Errorf("thermo: thermocouple shorted to VCC")
	}

	intT := int32((int16(rBuf[2]) << 8) | int16(rBuf[3]&0xf0)) // sign-extension
	internalMilliC = (intT * 1000) >> 8

	thermT := int32((int16(rBuf[0]) << 8) | int16(rBuf[1]&0xfc))
	thermocoupleMilliC = (thermT * 1000) >> 4

	return thermocoupleMilliC, internalMilliC, nil
}

// ReadByte returns the thermocouple temperature clamped and scaled
// into the single byte swimproto's READ_FPGA_TEMP response carries:
// degrees Celsius plus 40, clamped to [0,255], so -40°C..215°C maps
// onto the full byte range. On any read error it returns 0, which
// swimproto.Protocol.SetTemperature documents as "unsupported".
func (d *Dev) ReadByte() uint8 {
	milliC, _, err := d.Temperature()
	if err != nil {
		return 0
	}
	c := milliC/1000 + 40
	switch {
	case c < 0:
		return 0
	case c > 255:
		return 255
	default:
		return uint8(c)
	}
}

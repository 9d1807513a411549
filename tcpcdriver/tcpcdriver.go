// Package tcpcdriver holds what USB Type-C port controller drivers share:
// the bus interface they talk through.
package tcpcdriver

// I2C is the minimum I2C interface a driver needs. It is satisfied by
// TinyGo's machine.I2C and by periph.io's i2c.Bus, so one driver works on
// microcontrollers and Linux hosts alike.
type I2C interface {

	// Tx writes w and then reads into r in a single transaction with the
	// device at addr. A nil w or r skips that half of the transfer. Tx must
	// be safe for concurrent use.
	Tx(addr uint16, w, r []byte) error
}

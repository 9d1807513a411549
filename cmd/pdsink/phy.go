package main

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// FUSB302 supports up to 1MHz.
const busSpeed = 1 * physic.MegaHertz

func openBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing host drivers: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %q: %w", name, err)
	}
	if err := b.SetSpeed(busSpeed); err != nil {
		b.Close()
		return nil, fmt.Errorf("setting i2c bus speed: %w", err)
	}
	return b, nil
}

// Package fusb302 implements a USB Type-C port controller driver for the
// ONSemi FUSB302 in sink mode.
package fusb302

import (
	"errors"
	"fmt"
	"time"

	pdsink "github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver"
)

// MPN is a manufacturer part number. Variants differ only by I2C address.
type MPN uint8

// I2CAddress returns the 7-bit I2C address of the part.
func (m MPN) I2CAddress() uint8 {
	return uint8(m)
}

// Manufacturer part numbers
const (
	FUSB302BUCX   MPN = 0b100010
	FUSB302BMPX   MPN = 0b100010
	FUSB302VMPX   MPN = 0b100010
	FUSB302B01MPX MPN = 0b100011
	FUSB302B10MPX MPN = 0b100100
	FUSB302B11MPX MPN = 0b100101
)

// ParseMPN returns the part with the given name, e.g. "FUSB302BMPX".
func ParseMPN(name string) (MPN, error) {
	switch name {
	case "FUSB302BUCX":
		return FUSB302BUCX, nil
	case "FUSB302BMPX":
		return FUSB302BMPX, nil
	case "FUSB302VMPX":
		return FUSB302VMPX, nil
	case "FUSB302B01MPX":
		return FUSB302B01MPX, nil
	case "FUSB302B10MPX":
		return FUSB302B10MPX, nil
	case "FUSB302B11MPX":
		return FUSB302B11MPX, nil
	}
	return 0, fmt.Errorf("fusb302: unknown part %q", name)
}

var (
	// ErrInvalidCCState is returned by Alert when toggling finished on a CC
	// state other than sink on CC1 or CC2.
	ErrInvalidCCState = errors.New("fusb302: invalid cc state")
)

// FUSB302 drives a FUSB302 port controller.
type FUSB302 struct {
	port tcpcdriver.I2C
	addr uint16

	intA uint8 // interrupt A bits seen outside of Alert

	// Received messages wait here until Rx. When the queue is full new
	// messages are dropped.
	msgs chan pdmsg.Message

	// Scratch buffer for register and FIFO transfers.
	buf [1 + fifoFrameBytes]byte
}

const (
	msgQueueSize = 10

	// Sync tokens, packet token, message, CRC and trailing tokens.
	fifoFrameBytes = 4 + 1 + pdmsg.MaxMessageBytes + 4 + 4
)

// New returns a driver for the part mpn on port. The bus must run at 1MHz
// or slower.
func New(port tcpcdriver.I2C, mpn MPN) *FUSB302 {
	return &FUSB302{
		port: port,
		addr: uint16(mpn.I2CAddress()),
		msgs: make(chan pdmsg.Message, msgQueueSize),
	}
}

func (f *FUSB302) write(r uint8, d byte) error {
	f.buf[0] = r
	f.buf[1] = d
	if err := f.port.Tx(f.addr, f.buf[:2], nil); err != nil {
		return fmt.Errorf("fusb302: write 0x%02x: %w", r, err)
	}
	return nil
}

func (f *FUSB302) read(r uint8) (byte, error) {
	f.buf[0] = r
	if err := f.port.Tx(f.addr, f.buf[:1], f.buf[1:2]); err != nil {
		return 0, fmt.Errorf("fusb302: read 0x%02x: %w", r, err)
	}
	return f.buf[1], nil
}

// readMany reads n consecutive bytes starting at r into f.buf[1:n+1].
func (f *FUSB302) readMany(r uint8, n int) ([]byte, error) {
	f.buf[0] = r
	if err := f.port.Tx(f.addr, f.buf[:1], f.buf[1:n+1]); err != nil {
		return nil, fmt.Errorf("fusb302: read 0x%02x: %w", r, err)
	}
	return f.buf[1 : n+1], nil
}

// Init resets the chip and configures it to toggle as a sink.
func (f *FUSB302) Init() error {
	steps := [...]struct{ reg, val uint8 }{
		{regReset, regResetSWReset},
		{regControl1, regControl1RxFlush},
		{regPower, regPowerPwrAll},
		{regControl2, regControl2SinkToggle},
		{regControl3, regControl3AutoRetry},
	}
	for i, s := range steps {
		if err := f.write(s.reg, s.val); err != nil {
			return err
		}
		if i == 1 {
			f.drainQueue()
		}
	}
	f.intA = 0
	return nil
}

func (f *FUSB302) drainQueue() {
	for {
		select {
		case <-f.msgs:
		default:
			return
		}
	}
}

// Tx transmits m and waits for GoodCRC.
func (f *FUSB302) Tx(m pdmsg.Message) error {
	if err := f.write(regControl0, regControl0TxFlush); err != nil {
		return err
	}

	b := f.buf[:]
	b[0] = regFIFOs
	copy(b[1:], []byte{fifoTokenSync1, fifoTokenSync1, fifoTokenSync1, fifoTokenSync2})
	n := m.ToBytes(b[6:])
	b[5] = fifoTokenPackSym | n
	copy(b[6+n:], []byte{fifoTokenJamCRC, fifoTokenEOP, fifoTokenTxOff, fifoTokenTxOn})
	if err := f.port.Tx(f.addr, b[:10+n], nil); err != nil {
		return fmt.Errorf("fusb302: write fifo: %w", err)
	}

	// Auto retry reports either success (GoodCRC received) or failure well
	// within 10ms.
	for i := 0; i < 10; i++ {
		r, err := f.read(regInterruptA)
		if err != nil {
			return err
		}
		f.intA |= r
		switch {
		case r&regInterruptATxSuccess != 0:
			return nil
		case r&regInterruptARetryFail != 0:
			return pdsink.ErrTxFailed
		}
		time.Sleep(time.Millisecond)
	}
	return pdsink.ErrTxFailed
}

// Rx returns the oldest queued message.
func (f *FUSB302) Rx() (pdmsg.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	default:
		return pdmsg.Message{}, pdsink.ErrRxEmpty
	}
}

// readFIFO reads one message out of the receive FIFO.
func (f *FUSB302) readFIFO(m *pdmsg.Message) error {
	s1, err := f.read(regStatus1)
	if err != nil {
		return err
	}
	if s1&regStatus1RxEmpty != 0 {
		return pdsink.ErrRxEmpty
	}

	// SOP token followed by the 2 byte header.
	b, err := f.readMany(regFIFOs, 3)
	if err != nil {
		return err
	}
	m.Header = uint16(b[2])<<8 | uint16(b[1])

	// Data objects followed by the CRC which is discarded.
	n := int(m.DataObjectCount()) * 4
	if b, err = f.readMany(regFIFOs, n+4); err != nil {
		return err
	}
	for i := 0; i < n/4; i++ {
		o := i * 4
		m.Data[i] = uint32(b[o]) | uint32(b[o+1])<<8 | uint32(b[o+2])<<16 | uint32(b[o+3])<<24
	}
	return nil
}

// SendReset sends hard reset signaling.
func (f *FUSB302) SendReset() error {
	r, err := f.read(regControl3)
	if err != nil {
		return err
	}
	if err := f.write(regControl3, r|regControl3SendHardReset); err != nil {
		return err
	}
	for i := 0; i < 5; i++ {
		intA, err := f.read(regInterruptA)
		if err != nil {
			return err
		}
		f.intA |= intA
		if intA&regInterruptAHardSent != 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return pdsink.ErrTxFailed
}

// Alert services pending interrupts and returns the resulting alerts.
func (f *FUSB302) Alert() (pdsink.Alert, error) {
	var a pdsink.Alert

	regs, err := f.readMany(regStatus0A, 7)
	if err != nil {
		return a, err
	}
	status0A, status1A, intA, status0, intT := regs[0], regs[1], regs[2], regs[4], regs[6]
	intA |= f.intA
	f.intA = 0

	if intA&regInterruptASoftReset != 0 && status0A&regStatus0ARxSoftReset != 0 {
		a.Add(pdsink.AlertResetReceived)
	}
	if intA&regInterruptAHardReset != 0 && status0A&regStatus0ARxHardReset != 0 {
		a.Add(pdsink.AlertResetReceived)
	}

	if intA&regInterruptATogDone != 0 {
		switch status0 & regStatus0BCLvlMask {
		case 1:
			a.Add(pdsink.AlertPower0A5)
		case 2:
			a.Add(pdsink.AlertPower1A5)
		case 3:
			a.Add(pdsink.AlertPower3A0)
		}
		if err := f.orient(status1A); err != nil {
			return a, err
		}
	}

	if intT&regInterruptVBusOK != 0 {
		if status0&regStatus0VBusOK == 0 {
			a.Add(pdsink.AlertDetached)
		} else {
			a.Add(pdsink.AlertAttached)
		}
	}

	if intT&regInterruptCRCChk != 0 {
		if err := f.drainFIFO(); err != nil {
			return a, err
		}
		a.Add(pdsink.AlertRx)
	}

	return a, nil
}

// orient stops toggling and enables PD on the CC line toggling settled on.
func (f *FUSB302) orient(status1A uint8) error {
	if err := f.write(regControl2, 0); err != nil {
		return err
	}
	var tx, meas uint8
	switch (status1A >> regStatus1ATogSSPos) & regStatus1ATogSSMask {
	case regStatus1ATogSSSnk1:
		tx, meas = regSwitches1TxCC1En, regSwitches0MeasCC1
	case regStatus1ATogSSSnk2:
		tx, meas = regSwitches1TxCC2En, regSwitches0MeasCC2
	default:
		return ErrInvalidCCState
	}
	if err := f.write(regSwitches1, regSwitches1SpecRev1|regSwitches1AutoGCRC|tx); err != nil {
		return err
	}
	return f.write(regSwitches0, meas|regSwitches0CC1PdEn|regSwitches0CC2PdEn)
}

// drainFIFO moves every received message into the queue.
func (f *FUSB302) drainFIFO() error {
	for {
		var m pdmsg.Message
		if err := f.readFIFO(&m); err != nil {
			if errors.Is(err, pdsink.ErrRxEmpty) {
				return nil
			}
			return err
		}
		if m.Is(pdmsg.TypeGoodCRC, false) {
			continue
		}
		select {
		case f.msgs <- m:
		default:
		}
	}
}

const (
	regSwitches0        = 0x02
	regSwitches0MeasCC2 = 1 << 3
	regSwitches0MeasCC1 = 1 << 2
	regSwitches0CC2PdEn = 1 << 1
	regSwitches0CC1PdEn = 1 << 0

	regSwitches1         = 0x03
	regSwitches1SpecRev1 = 1 << 6
	regSwitches1AutoGCRC = 1 << 2
	regSwitches1TxCC2En  = 1 << 1
	regSwitches1TxCC1En  = 1 << 0

	regControl0        = 0x06
	regControl0TxFlush = 0b01100100

	regControl1        = 0x07
	regControl1RxFlush = 1 << 2

	regControl2           = 0x08
	regControl2SinkToggle = 0b00000101

	regControl3              = 0x09
	regControl3AutoRetry     = 0b111
	regControl3SendHardReset = 1 << 6

	regPower       = 0x0B
	regPowerPwrAll = 0xF

	regReset        = 0x0C
	regResetSWReset = 1 << 0

	regStatus0A            = 0x3C
	regStatus0ARxSoftReset = 1 << 1
	regStatus0ARxHardReset = 1 << 0

	regStatus1A          = 0x3D
	regStatus1ATogSSSnk1 = 0b101
	regStatus1ATogSSSnk2 = 0b110
	regStatus1ATogSSPos  = 3
	regStatus1ATogSSMask = 0x7

	regInterruptA          = 0x3E
	regInterruptATogDone   = 1 << 6
	regInterruptARetryFail = 1 << 4
	regInterruptAHardSent  = 1 << 3
	regInterruptATxSuccess = 1 << 2
	regInterruptASoftReset = 1 << 1
	regInterruptAHardReset = 1 << 0

	regStatus0          = 0x40
	regStatus0VBusOK    = 1 << 7
	regStatus0BCLvlMask = 0b11

	regStatus1        = 0x41
	regStatus1RxEmpty = 1 << 5

	regInterrupt       = 0x42
	regInterruptVBusOK = 1 << 7
	regInterruptCRCChk = 1 << 4

	regFIFOs = 0x43

	fifoTokenTxOn    = 0xA1
	fifoTokenSync1   = 0x12
	fifoTokenSync2   = 0x13
	fifoTokenPackSym = 0x80
	fifoTokenJamCRC  = 0xFF
	fifoTokenEOP     = 0x14
	fifoTokenTxOff   = 0xFE
)

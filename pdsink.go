// Package pdsink defines the port controller interface beneath a USB Type-C
// power delivery sink, and the alerts a port controller reports.
//
// The rest of the stack is layered on top of it:
//
//   - pdmsg encodes and decodes PD messages and data objects.
//   - tcpcdriver/fusb302 drives a FUSB302 port controller over I2C.
//   - tcpe is the sink policy engine. It is stepped with Poll and emits
//     negotiation events.
//   - tcdpm is the device policy manager: the negotiation task that reacts
//     to engine events, selects a power profile and records the outcome in
//     a tcstatus.Store.
package pdsink

import (
	"errors"

	"github.com/oxplot/go-pdsink/pdmsg"
)

// Alert is a set of port alerts. Pop returns them in priority order.
type Alert uint16

// Pop returns the highest priority alert in the set and removes it.
func (a *Alert) Pop() Alert {
	if *a == AlertNone {
		return AlertNone
	}
	r := *a & -*a // lowest set bit
	*a &^= r
	return r
}

// Add adds the alerts v to the set.
func (a *Alert) Add(v Alert) {
	*a |= v
}

// Has reports whether any of the alerts v is in the set.
func (a Alert) Has(v Alert) bool {
	return a&v != 0
}

var alertNames = [...]string{
	"ResetReceived",
	"SendReset",
	"Power0A5",
	"Power1A5",
	"Power3A0",
	"Attached",
	"Detached",
	"Rx",
	"Request",
	"TimerTimeout",
}

func (a Alert) String() string {
	if a == AlertNone {
		return "None"
	}
	for i, n := range alertNames {
		if a == 1<<i {
			return n
		}
	}
	return "INVALID"
}

// AlertNone is the empty set.
const AlertNone Alert = 0

// Alerts in order of priority from highest to lowest. With multiple pending
// alerts, the highest priority one is attended to first.
const (
	AlertResetReceived Alert = 1 << iota // hard or soft reset received
	AlertSendReset                       // hard reset requested locally
	AlertPower0A5                        // 5V@0.5A non-PD source
	AlertPower1A5                        // 5V@1.5A non-PD source
	AlertPower3A0                        // 5V@3A non-PD source
	AlertAttached                        // VBUS detected
	AlertDetached                        // VBUS lost
	AlertRx                              // message received
	AlertRequest                         // power request submitted to the engine
	AlertTimerTimeout                    // active timer expired
)

// PortController operates a device, usually an IC such as FUSB302, as a USB
// Power Delivery sink. It owns the physical layer and the parts of the
// protocol layer listed below; message ID counters are kept by the policy
// engine.
//
// Sink port controllers must:
//
//   - Handle GoodCRC, CRCReceiveTimer and retries for each transmitted
//     message.
//   - Configure the port for sink operation on Init.
//   - Detect and set CC polarity on attachment.
//   - Report the Type-C current advertised by the source as AlertPower*.
//
// Implementations run on microcontrollers and should avoid heap
// allocation after Init.
type PortController interface {

	// Init (re-)initializes the controller to a known working state. It is
	// called before any other method and again after every reset.
	Init() error

	// Tx sends a message to the port partner and blocks until GoodCRC is
	// received or retries are exhausted, in which case ErrTxFailed is
	// returned.
	Tx(pdmsg.Message) error

	// Rx returns one received message, or ErrRxEmpty when none is left.
	// GoodCRC messages are discarded by the controller.
	Rx() (pdmsg.Message, error)

	// SendReset sends hard reset signaling and blocks until it is sent.
	SendReset() error

	// Alert is called periodically and after each Tx, Rx and SendReset so
	// the controller can service the hardware. Alerts raised outside of
	// Alert are cached until the next call.
	Alert() (Alert, error)
}

var (
	// ErrTxFailed is returned by Tx when all retries have failed.
	ErrTxFailed = errors.New("failed to send pd message")

	// ErrRxEmpty is returned by Rx when no messages are left to read.
	ErrRxEmpty = errors.New("no more messages to read")
)

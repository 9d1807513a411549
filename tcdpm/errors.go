package tcdpm

import (
	"errors"
	"fmt"

	"github.com/oxplot/go-pdsink/tcpe"
)

// Conditions under which negotiation cannot continue. They are returned
// wrapped in a *FatalError.
var (
	// ErrNoRequest means the engine reported accept or reject while no
	// request was outstanding.
	ErrNoRequest = errors.New("tcdpm: no request made")

	// ErrNotAccepted means the engine reported power ready while no request
	// was accepted.
	ErrNotAccepted = errors.New("tcdpm: no accepted request")

	// ErrNoCandidate means the source advertised no fixed supply profile
	// acceptable to the policy.
	ErrNoCandidate = errors.New("tcdpm: no acceptable fixed supply profile")

	// ErrUnhandledVDM means a structured VDM arrived with a command type
	// the sink does not handle.
	ErrUnhandledVDM = errors.New("tcdpm: unhandled VDM command type")
)

// FatalError is returned by Handle, Step and Run when an event violates the
// engine's contract or cannot be acted on. The negotiation status is no
// longer trustworthy; the caller is expected to reset the engine and the
// store, or to stop.
type FatalError struct {
	Event tcpe.Event
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%v (on %T)", e.Err, e.Event)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(ev tcpe.Event, err error) error {
	return &FatalError{Event: ev, Err: err}
}

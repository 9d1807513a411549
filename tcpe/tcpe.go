// Package tcpe provides a USB Type-C power delivery policy engine for sink
// devices.
//
// The engine is stepped by calling Poll, which services the port controller,
// advances the state machine and returns at most one Event. Power is
// requested by calling Request in response to SourceCapabilitiesChanged.
package tcpe

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	pdsink "github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/pdmsg"
)

var (
	maxTimerExpiry = time.Unix(1<<63-62135596801, 999999999) // https://stackoverflow.com/a/32620397

	// Requested when the device policy manager does not answer in time.
	defaultRDO = pdmsg.NewFixedRequestDO(1, 100)
)

const eventQueueSize = 8

// Sink is a sink policy engine. Poll and Request must be called from a
// single goroutine; Reset may be called from any.
type Sink struct {
	pc  pdsink.PortController
	log *slog.Logger

	cur      *state
	entering bool
	now      time.Time // time passed to the current Poll

	// Set to now plus the timer duration by states that start a timer.
	timerExpiry  time.Time
	sourceCapMsg pdmsg.Message   // last source capabilities
	requestDO    pdmsg.RequestDO // request to send, empty for default
	msgTpl       pdmsg.Message   // template for outgoing messages

	// true if a successful negotiation is in effect.
	explicitContract bool
	// true if the source answered Wait to the last request.
	waitingOnSource bool

	protocol Protocol
	revision pdmsg.Revision

	v5PDO pdmsg.FixedSupplyPDO // Type-C current advertised at 5V

	identity *Identity

	nextTxID uint8
	lastRxID uint8

	events []Event

	mu      sync.Mutex
	alerts  pdsink.Alert
	request *RequestPower
}

// New creates a sink policy engine on top of pc.
func New(pc pdsink.PortController) *Sink {
	m := pdmsg.Message{}
	m.SetPowerRole(pdmsg.PowerRoleSink)
	m.SetDataRole(pdmsg.DataRoleUFP)

	v5PDO := pdmsg.NewFixedSupplyPDO()
	v5PDO.SetVoltage(5000)

	return &Sink{
		pc:          pc,
		log:         slog.Default(),
		cur:         stateSinkStartup,
		entering:    true,
		timerExpiry: maxTimerExpiry,
		msgTpl:      m,
		v5PDO:       v5PDO,
		events:      make([]Event, 0, eventQueueSize),
	}
}

// SetLogger sets the logger for state transitions and errors. Passing nil
// restores slog.Default().
func (s *Sink) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	s.log = l
}

// SetIdentity sets the identity to answer Discover Identity requests with.
// With a nil identity, requests are reported as VDMReceived but not
// answered.
func (s *Sink) SetIdentity(id *Identity) {
	s.identity = id
}

// Reset requests a hard reset, which drops power and restarts negotiation.
// It is safe to call from any goroutine.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.alerts.Add(pdsink.AlertSendReset)
	s.mu.Unlock()
}

// Request submits a power request. It is only acted upon while the engine
// is waiting for one after SourceCapabilitiesChanged; otherwise it is
// discarded.
func (s *Sink) Request(r RequestPower) {
	s.mu.Lock()
	s.request = &r
	s.alerts.Add(pdsink.AlertRequest)
	s.mu.Unlock()
}

// Poll services the port controller once, advances the state machine and
// returns the oldest pending event, or nil if there is none. It never
// blocks beyond port controller I/O.
func (s *Sink) Poll(now time.Time) Event {
	s.now = now
	s.step()
	return s.popEvent()
}

func (s *Sink) step() {
	var next *state
	var err error

	if s.entering {
		s.timerExpiry = maxTimerExpiry
		s.entering = false
		if s.cur.Enter != nil {
			next, err = s.cur.Enter(s)
		}
	} else {
		next, err = s.service()
	}

	if err != nil {
		s.log.Warn("policy engine error", "state", s.cur.Name, "err", err)
		next = stateSinkHardReset
	}

	if next != nil {
		if s.cur.Exit != nil {
			if err := s.cur.Exit(s); err != nil {
				s.log.Warn("policy engine error", "state", s.cur.Name, "err", err)
				next = stateSinkHardReset
			}
		}
		s.log.Debug("policy engine transition", "from", s.cur.Name, "to", next.Name)
		s.cur = next
		s.entering = true
	}
}

// service handles the highest priority pending alert.
func (s *Sink) service() (*state, error) {
	a, err := s.pc.Alert()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.alerts.Add(a)
	a = s.alerts.Pop()
	s.mu.Unlock()

	switch a {
	case pdsink.AlertNone:
		if s.now.After(s.timerExpiry) {
			s.timerExpiry = maxTimerExpiry // fire once
			return s.process(pdmsg.Message{}, pdsink.AlertTimerTimeout)
		}
		return nil, nil
	case pdsink.AlertPower0A5:
		s.v5PDO.SetMaxCurrent(500)
	case pdsink.AlertPower1A5:
		s.v5PDO.SetMaxCurrent(1500)
	case pdsink.AlertPower3A0:
		s.v5PDO.SetMaxCurrent(3000)
	case pdsink.AlertDetached, pdsink.AlertResetReceived:
		s.dropEvents()
		return stateSinkStartup, nil
	case pdsink.AlertSendReset:
		s.dropEvents()
		return stateSinkHardReset, nil
	case pdsink.AlertRx:
		m, err := s.rx()
		if errors.Is(err, pdsink.ErrRxEmpty) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.alerts.Add(pdsink.AlertRx) // more messages may be waiting
		s.mu.Unlock()
		if m.Is(pdmsg.TypeVendorDefined, true) {
			return nil, s.handleVDM(m)
		}
		return s.process(m, pdsink.AlertRx)
	default:
		return s.process(pdmsg.Message{}, a)
	}
	return nil, nil
}

func (s *Sink) process(m pdmsg.Message, a pdsink.Alert) (*state, error) {
	if s.cur.Process == nil {
		return nil, nil
	}
	return s.cur.Process(s, m, a)
}

func (s *Sink) emit(e Event) {
	if len(s.events) == cap(s.events) {
		s.log.Warn("event queue full, dropping event", "event", e)
		return
	}
	s.events = append(s.events, e)
}

// dropEvents discards undelivered events. Nothing from before a reset is
// reported after it.
func (s *Sink) dropEvents() {
	clear(s.events)
	s.events = s.events[:0]
}

func (s *Sink) popEvent() Event {
	if len(s.events) == 0 {
		return nil
	}
	e := s.events[0]
	n := copy(s.events, s.events[1:])
	s.events[n] = nil
	s.events = s.events[:n]
	return e
}

func (s *Sink) setProtocol(p Protocol, r pdmsg.Revision) {
	if p == s.protocol && (p != ProtocolPD || r == s.revision) {
		return
	}
	s.protocol, s.revision = p, r
	s.emit(ProtocolChanged{Protocol: p, Revision: r})
}

// takeRequest returns the pending request, if any, and clears it.
func (s *Sink) takeRequest() (RequestPower, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return RequestPower{}, false
	}
	r := *s.request
	s.request = nil
	return r, true
}

func (s *Sink) tx(m pdmsg.Message) error {
	m.SetID(s.nextTxID)
	s.nextTxID = (s.nextTxID + 1) % 8
	return s.pc.Tx(m)
}

func (s *Sink) rx() (pdmsg.Message, error) {
	for {
		m, err := s.pc.Rx()
		if err != nil {
			return pdmsg.Message{}, err
		}
		if m.ID() != s.lastRxID { // retransmission otherwise
			s.lastRxID = m.ID()
			return m, nil
		}
	}
}

func (s *Sink) startTimer(d time.Duration) {
	s.timerExpiry = s.now.Add(d)
}

func (s *Sink) sendRDO(rdo pdmsg.RequestDO) error {
	m := s.msgTpl
	m.SetType(pdmsg.TypeRequest)
	m.SetDataObjectCount(1)
	m.Data[0] = uint32(rdo)
	return s.tx(m)
}

// capPDOs returns a copy of the PDOs in the last source capabilities.
func (s *Sink) capPDOs() []pdmsg.PDO {
	objs := s.sourceCapMsg.Objects()
	pdos := make([]pdmsg.PDO, len(objs))
	for i, d := range objs {
		pdos[i] = pdmsg.PDO(d)
	}
	return pdos
}

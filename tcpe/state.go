package tcpe

import (
	"time"

	pdsink "github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/pdmsg"
)

// state represents a policy engine state.
type state struct {
	Name string

	// Enter runs on entering the state and may be nil. A non-nil next state
	// is transitioned to right away. The timer is cleared before each call.
	Enter func(*Sink) (next *state, err error)

	// Process is called for each received message, alert and timer timeout
	// while in this state. Return values are treated as for Enter. Process
	// may only be nil if Enter always returns a next state.
	Process func(s *Sink, m pdmsg.Message, a pdsink.Alert) (next *state, err error)

	// Exit is called on leaving the state and may be nil.
	Exit func(*Sink) error
}

// The state names follow those of the PD spec.
var (
	stateNoPD                     *state
	stateSinkStartup              *state
	stateSinkDiscovery            *state
	stateSinkWaitForCapabilities  *state
	stateSinkEvaluateCapabilities *state
	stateSinkSelectCapabilities   *state
	stateSinkTransitionSink       *state
	stateSinkReady                *state
	stateSinkHardReset            *state
)

func init() {

	// Assigned here since states refer to each other, which package level
	// initialization does not allow.

	// Pseudo-state for sources that only advertise Type-C current. The 5V
	// profile is offered to the device policy manager as if the source had
	// advertised it, so PD and non-PD sources look alike above the engine.
	stateNoPD = &state{
		Name: "no-pd",
		Enter: func(s *Sink) (*state, error) {
			s.setProtocol(ProtocolTypeC, 0)
			s.emit(SourceCapabilitiesChanged{PDOs: []pdmsg.PDO{pdmsg.PDO(s.v5PDO)}})
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a != pdsink.AlertRequest {
				return nil, nil
			}
			r, ok := s.takeRequest()
			if !ok {
				return nil, nil
			}
			if r.Index != 0 || r.Current > s.v5PDO.MaxCurrent() {
				s.emit(PowerRejected{})
				return nil, nil
			}
			s.emit(PowerAccepted{})
			s.emit(PowerReady{})
			return nil, nil
		},
	}

	stateSinkStartup = &state{
		Name: "sink-startup",
		Enter: func(s *Sink) (*state, error) {
			s.dropEvents()
			s.nextTxID = 0
			s.lastRxID = 8 // no message received yet
			s.explicitContract = false
			s.waitingOnSource = false
			s.v5PDO.SetMaxCurrent(0)
			s.setProtocol(ProtocolNone, 0)
			return stateSinkDiscovery, s.pc.Init()
		},
	}

	stateSinkDiscovery = &state{
		Name: "sink-discovery",
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a == pdsink.AlertAttached {
				return stateSinkWaitForCapabilities, nil
			}
			return nil, nil
		},
	}

	stateSinkWaitForCapabilities = &state{
		Name: "sink-wait-for-cap",
		Enter: func(s *Sink) (*state, error) {
			s.sourceCapMsg = pdmsg.Message{}
			s.startTimer(timerSinkWaitCap)
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a == pdsink.AlertTimerTimeout {
				if s.v5PDO.MaxCurrent() > 0 {
					return stateNoPD, nil
				}
				return stateSinkHardReset, nil
			}
			if a == pdsink.AlertRx && m.Is(pdmsg.TypeSourceCap, true) {
				s.acceptSourceCap(m)
				return stateSinkEvaluateCapabilities, nil
			}
			return nil, nil
		},
	}

	stateSinkEvaluateCapabilities = &state{
		Name: "sink-eval-cap",
		Enter: func(s *Sink) (*state, error) {
			s.takeRequest() // discard anything stale
			s.requestDO = pdmsg.EmptyRequestDO
			s.emit(SourceCapabilitiesChanged{PDOs: s.capPDOs()})
			s.startTimer(timerSinkEvaluate)
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			switch {
			case a == pdsink.AlertTimerTimeout:
				s.log.Warn("no power request in time, requesting vSafe5V")
				return stateSinkSelectCapabilities, nil
			case a == pdsink.AlertRequest:
				r, ok := s.takeRequest()
				if !ok {
					return nil, nil
				}
				if r.Index < 0 || r.Index >= int(s.sourceCapMsg.DataObjectCount()) {
					s.log.Warn("power request out of range, requesting vSafe5V", "index", r.Index)
				} else {
					s.requestDO = pdmsg.NewFixedRequestDO(uint8(r.Index)+1, r.Current)
				}
				return stateSinkSelectCapabilities, nil
			case a == pdsink.AlertRx && m.Is(pdmsg.TypeSourceCap, true):
				s.acceptSourceCap(m)
				return stateSinkEvaluateCapabilities, nil
			}
			return nil, nil
		},
	}

	stateSinkSelectCapabilities = &state{
		Name: "sink-select-cap",
		Enter: func(s *Sink) (*state, error) {
			rdo := s.requestDO
			if rdo == pdmsg.EmptyRequestDO {
				rdo = defaultRDO
			}
			if err := s.sendRDO(rdo); err != nil {
				return nil, err
			}
			s.startTimer(timerSenderResponse)
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a == pdsink.AlertTimerTimeout {
				return stateSinkHardReset, nil
			}
			if a != pdsink.AlertRx || m.IsData() {
				return nil, nil
			}
			switch m.Type() {
			case pdmsg.TypeAccept:
				s.emit(PowerAccepted{})
				s.waitingOnSource = false
				s.explicitContract = true
				return stateSinkTransitionSink, nil
			case pdmsg.TypeReject:
				s.emit(PowerRejected{})
				if s.explicitContract {
					return stateSinkReady, nil
				}
				return stateSinkWaitForCapabilities, nil
			case pdmsg.TypeWait:
				s.waitingOnSource = true
				if s.explicitContract {
					return stateSinkReady, nil
				}
				return stateSinkWaitForCapabilities, nil
			}
			return nil, nil
		},
	}

	stateSinkTransitionSink = &state{
		Name: "sink-transition-sink",
		Enter: func(s *Sink) (*state, error) {
			s.startTimer(timerPSTransition)
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a == pdsink.AlertTimerTimeout {
				return stateSinkHardReset, nil
			}
			if a == pdsink.AlertRx && m.Is(pdmsg.TypePSReady, false) {
				s.emit(PowerReady{})
				return stateSinkReady, nil
			}
			return nil, nil
		},
	}

	stateSinkReady = &state{
		Name: "sink-ready",
		Enter: func(s *Sink) (*state, error) {
			if s.waitingOnSource {
				s.startTimer(timerSinkRequest)
			}
			return nil, nil
		},
		Process: func(s *Sink, m pdmsg.Message, a pdsink.Alert) (*state, error) {
			if a == pdsink.AlertTimerTimeout {
				return stateSinkSelectCapabilities, nil
			}
			if a == pdsink.AlertRx && m.Is(pdmsg.TypeSourceCap, true) {
				s.acceptSourceCap(m)
				return stateSinkEvaluateCapabilities, nil
			}
			return nil, nil
		},
	}

	stateSinkHardReset = &state{
		Name: "sink-hard-reset",
		Enter: func(s *Sink) (*state, error) {
			return stateSinkStartup, s.pc.SendReset()
		},
	}

}

// acceptSourceCap records a Source_Capabilities message and adopts its
// revision, capped at 3.0.
func (s *Sink) acceptSourceCap(m pdmsg.Message) {
	s.sourceCapMsg = m
	r := m.Revision()
	if r > pdmsg.Revision30 {
		r = pdmsg.Revision30
	}
	s.msgTpl.SetRevision(r)
	s.setProtocol(ProtocolPD, r)
}

// Max value for timers used (based on PD standard).
const (
	timerPSTransition   = 550 * time.Millisecond
	timerSenderResponse = 32 * time.Millisecond
	timerSinkRequest    = 100 * time.Millisecond
	timerSinkWaitCap    = 620 * time.Millisecond

	// How long the device policy manager has to answer
	// SourceCapabilitiesChanged. The source expects the request within
	// its own sender response timer.
	timerSinkEvaluate = 20 * time.Millisecond
)

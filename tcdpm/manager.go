// Package tcdpm implements the device policy manager of a USB PD sink: the
// negotiation task that reacts to policy engine events, picks the power
// profile to request and records the negotiation status in a
// tcstatus.Store.
package tcdpm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpe"
	"github.com/oxplot/go-pdsink/tcstatus"
)

// DefaultPollInterval is how long Run yields between polls.
const DefaultPollInterval = 100 * time.Microsecond

// Engine is the policy engine as driven by the Manager. *tcpe.Sink
// implements it.
type Engine interface {
	// Poll advances the engine and returns at most one event, nil if none.
	Poll(now time.Time) tcpe.Event

	// Request asks for the given power profile.
	Request(tcpe.RequestPower)
}

// Manager is the negotiation task. It is the only writer of its store.
type Manager struct {
	engine Engine
	store  *tcstatus.Store
	policy Policy
	log    *slog.Logger

	pollInterval time.Duration
	now          func() time.Time
}

// NewManager returns a manager driving engine and recording into store. A
// nil policy means HighestVoltage and a nil logger slog.Default().
func NewManager(engine Engine, store *tcstatus.Store, policy Policy, log *slog.Logger) *Manager {
	if policy == nil {
		policy = HighestVoltage
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		engine:       engine,
		store:        store,
		policy:       policy,
		log:          log,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
}

// SetPollInterval sets how long Run sleeps between polls.
func (m *Manager) SetPollInterval(d time.Duration) {
	m.pollInterval = d
}

// Run polls the engine and handles its events until ctx is done, in which
// case ctx.Err() is returned, or until a *FatalError occurs.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := m.Step(m.now()); err != nil {
			return err
		}
		time.Sleep(m.pollInterval)
	}
}

// Step polls the engine once and handles the event it returns, if any.
func (m *Manager) Step(now time.Time) error {
	ev := m.engine.Poll(now)
	if ev == nil {
		return nil
	}
	return m.Handle(ev)
}

// Handle reacts to a single engine event.
func (m *Manager) Handle(ev tcpe.Event) error {
	switch ev := ev.(type) {
	case tcpe.ProtocolChanged:
		if ev.Protocol == tcpe.ProtocolPD {
			m.log.Info("protocol changed", "protocol", ev.Protocol, "revision", ev.Revision)
		} else {
			m.log.Info("protocol changed", "protocol", ev.Protocol)
		}
		return nil

	case tcpe.SourceCapabilitiesChanged:
		return m.sourceCapabilitiesChanged(ev)

	case tcpe.PowerAccepted:
		m.log.Info("power accepted")
		return m.transition(ev, (*tcstatus.Status).Accept, ErrNoRequest)

	case tcpe.PowerRejected:
		m.log.Info("power rejected")
		return m.transition(ev, (*tcstatus.Status).Reject, ErrNoRequest)

	case tcpe.PowerReady:
		m.log.Info("power ready")
		return m.transition(ev, (*tcstatus.Status).MarkReady, ErrNotAccepted)

	case tcpe.VDMReceived:
		return m.vdmReceived(ev)

	default:
		panic(fmt.Sprintf("tcdpm: unknown event %T", ev))
	}
}

// transition applies f to the status and turns a failed precondition into a
// fatal error.
func (m *Manager) transition(ev tcpe.Event, f func(*tcstatus.Status) bool, err error) error {
	var ok bool
	m.store.Update(func(s *tcstatus.Status) {
		ok = f(s)
	})
	if !ok {
		return fatal(ev, err)
	}
	return nil
}

func (m *Manager) sourceCapabilitiesChanged(ev tcpe.SourceCapabilitiesChanged) error {
	m.log.Info("source capabilities changed", "count", len(ev.PDOs))

	var cat tcstatus.Catalog
	for i, p := range ev.PDOs {
		if p.Type() != pdmsg.PDOTypeFixedSupply {
			m.log.Warn("skipping profile", "index", i, "pdo", p)
			continue
		}
		fs := pdmsg.FixedSupplyPDO(p)
		m.log.Debug("supply", "index", i, "mV", fs.Voltage(), "mA", fs.MaxCurrent())
		if !cat.Push(p) {
			m.log.Debug("profile catalog full, dropping", "index", i)
		}
	}

	index, ok := m.policy.Select(ev.PDOs)
	ok = ok && index >= 0 && index < len(ev.PDOs) &&
		ev.PDOs[index].Type() == pdmsg.PDOTypeFixedSupply

	m.store.Update(func(s *tcstatus.Status) {
		s.Reset()
		s.Profiles = cat
		if ok {
			s.Requested = tcstatus.Index(index)
		}
	})
	if !ok {
		return fatal(ev, ErrNoCandidate)
	}

	fs := pdmsg.FixedSupplyPDO(ev.PDOs[index])
	m.log.Info("requesting power", "index", index, "mV", fs.Voltage(), "mA", fs.MaxCurrent())
	m.engine.Request(tcpe.RequestPower{Index: index, Current: fs.MaxCurrent()})
	return nil
}

func (m *Manager) vdmReceived(ev tcpe.VDMReceived) error {
	if !ev.Header.IsStructured() {
		h := pdmsg.UnstructuredVDMHeader(ev.Header)
		m.log.Info("vdm unstructured", "vid", fmt.Sprintf("0x%04x", h.VID()), "header_data", fmt.Sprintf("0x%04x", h.Data()), "data", words(ev.Data))
		return nil
	}

	h := pdmsg.StructuredVDMHeader(ev.Header)
	m.log.Info("vdm structured",
		"command", h.Command(),
		"command_type", h.CommandType(),
		"position", h.ObjectPosition(),
		"data", words(ev.Data),
	)
	if h.CommandType() != pdmsg.VDMCommandTypeREQ {
		return fatal(ev, fmt.Errorf("%w %s", ErrUnhandledVDM, h.CommandType()))
	}

	switch h.Command() {
	case pdmsg.VDMCommandDiscoverIdentity:
		m.log.Info("vdm discover identity")
	case pdmsg.VDMCommandDiscoverSVIDs,
		pdmsg.VDMCommandDiscoverModes,
		pdmsg.VDMCommandEnterMode,
		pdmsg.VDMCommandExitMode,
		pdmsg.VDMCommandAttention,
		pdmsg.VDMCommandDisplayPortStatus,
		pdmsg.VDMCommandDisplayPortConfig:
	default:
		m.log.Debug("vdm unrecognized command", "command", h.Command())
	}
	return nil
}

// words formats VDM data objects as hex when logged.
type words []uint32

func (w words) LogValue() slog.Value {
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range w {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%08X", d)
	}
	b.WriteByte(']')
	return slog.StringValue(b.String())
}

package tcpe

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdsink "github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/pdmsg"
)

// fakePort is a scripted port controller.
type fakePort struct {
	pending pdsink.Alert
	rxq     []pdmsg.Message
	sent    []pdmsg.Message
	inits   int
	resets  int
}

func (p *fakePort) Init() error {
	p.inits++
	p.rxq = nil
	return nil
}

func (p *fakePort) Tx(m pdmsg.Message) error {
	p.sent = append(p.sent, m)
	return nil
}

func (p *fakePort) Rx() (pdmsg.Message, error) {
	if len(p.rxq) == 0 {
		return pdmsg.Message{}, pdsink.ErrRxEmpty
	}
	m := p.rxq[0]
	p.rxq = p.rxq[1:]
	return m, nil
}

func (p *fakePort) SendReset() error {
	p.resets++
	return nil
}

func (p *fakePort) Alert() (pdsink.Alert, error) {
	a := p.pending
	p.pending = pdsink.AlertNone
	return a, nil
}

func (p *fakePort) raise(a pdsink.Alert) {
	p.pending.Add(a)
}

func (p *fakePort) receive(m pdmsg.Message) {
	p.rxq = append(p.rxq, m)
	p.pending.Add(pdsink.AlertRx)
}

type harness struct {
	t     *testing.T
	port  *fakePort
	sink  *Sink
	now   time.Time
	srcID uint8
}

func newHarness(t *testing.T) *harness {
	port := &fakePort{}
	s := New(port)
	s.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &harness{t: t, port: port, sink: s, now: time.Unix(1000, 0)}
}

// poll polls n times without advancing time and returns the events.
func (h *harness) poll(n int) []Event {
	var evs []Event
	for i := 0; i < n; i++ {
		if ev := h.sink.Poll(h.now); ev != nil {
			evs = append(evs, ev)
		}
	}
	return evs
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) state() string {
	return h.sink.cur.Name
}

// control sends a control message from the source.
func (h *harness) control(t pdmsg.Type) {
	h.port.receive(h.message(t))
}

func (h *harness) message(t pdmsg.Type, objs ...uint32) pdmsg.Message {
	var m pdmsg.Message
	m.SetType(t)
	m.SetPowerRole(pdmsg.PowerRoleSource)
	m.SetDataRole(pdmsg.DataRoleDFP)
	m.SetRevision(pdmsg.Revision30)
	m.SetID(h.srcID)
	h.srcID = (h.srcID + 1) % 8
	m.SetDataObjectCount(uint8(len(objs)))
	copy(m.Data[:], objs)
	return m
}

func fixedPDO(mv, ma uint16) pdmsg.PDO {
	p := pdmsg.NewFixedSupplyPDO()
	p.SetVoltage(mv)
	p.SetMaxCurrent(ma)
	return pdmsg.PDO(p)
}

var advert = []pdmsg.PDO{fixedPDO(5000, 3000), fixedPDO(9000, 3000), fixedPDO(15000, 2000)}

// attach brings the engine to the point of having reported advert.
func (h *harness) attach() {
	h.t.Helper()
	h.poll(3)
	require.Equal(h.t, "sink-discovery", h.state())
	h.port.raise(pdsink.AlertAttached)
	h.poll(2)
	require.Equal(h.t, "sink-wait-for-cap", h.state())

	objs := make([]uint32, len(advert))
	for i, p := range advert {
		objs[i] = uint32(p)
	}
	h.port.receive(h.message(pdmsg.TypeSourceCap, objs...))
	evs := h.poll(3)
	require.Equal(h.t, []Event{
		ProtocolChanged{Protocol: ProtocolPD, Revision: pdmsg.Revision30},
		SourceCapabilitiesChanged{PDOs: advert},
	}, evs)
	require.Equal(h.t, "sink-eval-cap", h.state())
}

// contract negotiates advert[1].
func (h *harness) contract() {
	h.t.Helper()
	h.attach()
	h.sink.Request(RequestPower{Index: 1, Current: 3000})
	h.poll(2)
	require.Equal(h.t, "sink-select-cap", h.state())
	h.control(pdmsg.TypeAccept)
	require.Equal(h.t, []Event{PowerAccepted{}}, h.poll(3))
	h.control(pdmsg.TypePSReady)
	require.Equal(h.t, []Event{PowerReady{}}, h.poll(3))
	require.Equal(h.t, "sink-ready", h.state())
}

func TestNegotiation(t *testing.T) {
	h := newHarness(t)
	h.contract()

	require.Len(t, h.port.sent, 1)
	m := h.port.sent[0]
	assert.True(t, m.Is(pdmsg.TypeRequest, true))
	assert.Equal(t, pdmsg.Revision30, m.Revision())
	assert.Equal(t, pdmsg.PowerRoleSink, m.PowerRole())
	assert.Equal(t, uint8(0), m.ID())
	rdo := pdmsg.RequestDO(m.Data[0])
	assert.Equal(t, uint8(2), rdo.SelectedObjectPosition(), "object positions start at 1")
	assert.Equal(t, uint16(3000), rdo.FixedOperatingCurrent())
	assert.Equal(t, uint16(3000), rdo.FixedMaxOperatingCurrent())
	assert.Equal(t, 1, h.port.inits)
	assert.Zero(t, h.port.resets)
}

func TestRequestTimeoutFallsBackToSafe5V(t *testing.T) {
	h := newHarness(t)
	h.attach()

	h.advance(timerSinkEvaluate + time.Millisecond)
	h.poll(2)

	require.Len(t, h.port.sent, 1)
	rdo := pdmsg.RequestDO(h.port.sent[0].Data[0])
	assert.Equal(t, defaultRDO, rdo)
	assert.Equal(t, uint8(1), rdo.SelectedObjectPosition())
}

func TestRequestOutOfRange(t *testing.T) {
	h := newHarness(t)
	h.attach()

	h.sink.Request(RequestPower{Index: len(advert), Current: 1000})
	h.poll(2)

	require.Len(t, h.port.sent, 1)
	assert.Equal(t, defaultRDO, pdmsg.RequestDO(h.port.sent[0].Data[0]))
}

func TestStaleRequestIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.sink.Request(RequestPower{Index: 2, Current: 2000})
	h.attach()

	h.poll(3)
	assert.Empty(t, h.port.sent)
	assert.Equal(t, "sink-eval-cap", h.state())
}

func TestRejectWithoutContract(t *testing.T) {
	h := newHarness(t)
	h.attach()
	h.sink.Request(RequestPower{Index: 2, Current: 2000})
	h.poll(2)

	h.control(pdmsg.TypeReject)
	assert.Equal(t, []Event{PowerRejected{}}, h.poll(3))
	assert.Equal(t, "sink-wait-for-cap", h.state())
}

func TestRejectWithContractKeepsIt(t *testing.T) {
	h := newHarness(t)
	h.contract()

	// Source sends new capabilities; the sink asks for more than offered.
	objs := []uint32{uint32(advert[0]), uint32(advert[1])}
	h.port.receive(h.message(pdmsg.TypeSourceCap, objs...))
	evs := h.poll(3)
	require.Equal(t, []Event{SourceCapabilitiesChanged{PDOs: advert[:2]}}, evs)
	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	h.poll(2)

	h.control(pdmsg.TypeReject)
	assert.Equal(t, []Event{PowerRejected{}}, h.poll(3))
	assert.Equal(t, "sink-ready", h.state())
}

func TestWaitRetriesRequest(t *testing.T) {
	h := newHarness(t)
	h.contract()

	h.port.receive(h.message(pdmsg.TypeSourceCap, uint32(advert[0])))
	h.poll(3)
	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	h.poll(2)
	h.control(pdmsg.TypeWait)
	assert.Empty(t, h.poll(3))
	assert.Equal(t, "sink-ready", h.state())

	h.advance(timerSinkRequest + time.Millisecond)
	h.poll(2)
	assert.Equal(t, "sink-select-cap", h.state())
	require.Len(t, h.port.sent, 3)
	assert.Equal(t, pdmsg.TypeRequest, h.port.sent[2].Type())
}

func TestTransitionTimeoutResets(t *testing.T) {
	h := newHarness(t)
	h.attach()
	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	h.poll(2)
	h.control(pdmsg.TypeAccept)
	h.poll(3)
	require.Equal(t, "sink-transition-sink", h.state())

	h.advance(timerPSTransition + time.Millisecond)
	evs := h.poll(4)

	assert.Equal(t, 1, h.port.resets)
	assert.Equal(t, 2, h.port.inits)
	assert.Contains(t, evs, Event(ProtocolChanged{Protocol: ProtocolNone}))
	assert.Equal(t, "sink-discovery", h.state())
}

func TestTypeCOnlySource(t *testing.T) {
	h := newHarness(t)
	h.poll(3)
	h.port.raise(pdsink.AlertAttached | pdsink.AlertPower1A5)
	h.poll(3)
	require.Equal(t, "sink-wait-for-cap", h.state())

	h.advance(timerSinkWaitCap + time.Millisecond)
	evs := h.poll(3)
	require.Equal(t, "no-pd", h.state())
	v5 := []pdmsg.PDO{fixedPDO(5000, 1500)}
	require.Equal(t, []Event{
		ProtocolChanged{Protocol: ProtocolTypeC},
		SourceCapabilitiesChanged{PDOs: v5},
	}, evs)

	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	assert.Equal(t, []Event{PowerRejected{}}, h.poll(2))

	h.sink.Request(RequestPower{Index: 1, Current: 100})
	assert.Equal(t, []Event{PowerRejected{}}, h.poll(2))

	h.sink.Request(RequestPower{Index: 0, Current: 1500})
	assert.Equal(t, []Event{PowerAccepted{}, PowerReady{}}, h.poll(3))
	assert.Empty(t, h.port.sent)
}

func TestNoSourceResets(t *testing.T) {
	h := newHarness(t)
	h.poll(3)
	h.port.raise(pdsink.AlertAttached)
	h.poll(2)

	h.advance(timerSinkWaitCap + time.Millisecond)
	h.poll(3)

	assert.Equal(t, 1, h.port.resets)
	assert.Equal(t, 2, h.port.inits)
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	h.contract()

	h.sink.Reset()
	evs := h.poll(4)

	assert.Equal(t, 1, h.port.resets)
	assert.Equal(t, 2, h.port.inits)
	assert.Equal(t, []Event{ProtocolChanged{Protocol: ProtocolNone}}, evs)
	assert.Equal(t, "sink-discovery", h.state())
}

func TestDetach(t *testing.T) {
	h := newHarness(t)
	h.contract()

	h.port.raise(pdsink.AlertDetached)
	evs := h.poll(3)

	assert.Zero(t, h.port.resets)
	assert.Equal(t, 2, h.port.inits)
	assert.Equal(t, []Event{ProtocolChanged{Protocol: ProtocolNone}}, evs)
}

func TestRetransmissionIgnored(t *testing.T) {
	h := newHarness(t)
	h.attach()
	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	h.poll(2)

	m := h.message(pdmsg.TypeAccept)
	h.port.receive(m)
	h.port.receive(m)
	assert.Equal(t, []Event{PowerAccepted{}}, h.poll(4))
}

func discoverIdentity(h *harness) pdmsg.Message {
	req := pdmsg.NewStructuredVDMHeader(pdmsg.PDSID, pdmsg.VDMCommandDiscoverIdentity, pdmsg.VDMCommandTypeREQ)
	return h.message(pdmsg.TypeVendorDefined, uint32(req))
}

func TestVDMReported(t *testing.T) {
	h := newHarness(t)
	h.contract()

	m := h.message(pdmsg.TypeVendorDefined, 0xff008001, 0x12345678)
	h.port.receive(m)
	evs := h.poll(2)

	assert.Equal(t, []Event{VDMReceived{Header: 0xff008001, Data: []uint32{0x12345678}}}, evs)
	assert.Len(t, h.port.sent, 1, "no identity set, nothing answered")
	assert.Equal(t, "sink-ready", h.state())
}

func TestDiscoverIdentityAnswered(t *testing.T) {
	h := newHarness(t)
	h.sink.SetIdentity(&Identity{VID: 0xc0ed, PID: 0xc0ed, BCDDevice: 0x0100, XID: 0x55aaaa55})
	h.contract()

	h.port.receive(discoverIdentity(h))
	evs := h.poll(2)
	require.Len(t, evs, 1)
	assert.IsType(t, VDMReceived{}, evs[0])

	require.Len(t, h.port.sent, 2)
	ack := h.port.sent[1]
	assert.True(t, ack.Is(pdmsg.TypeVendorDefined, true))
	assert.Equal(t, uint8(1), ack.ID())
	objs := ack.Objects()
	require.Len(t, objs, 5)

	hdr := pdmsg.StructuredVDMHeader(objs[0])
	assert.Equal(t, pdmsg.PDSID, hdr.SVID())
	assert.Equal(t, pdmsg.VDMCommandDiscoverIdentity, hdr.Command())
	assert.Equal(t, pdmsg.VDMCommandTypeACK, hdr.CommandType())

	id := pdmsg.IDHeaderVDO(objs[1])
	assert.True(t, id.USBDevice())
	assert.False(t, id.USBHost())
	assert.Equal(t, pdmsg.UFPPDUSBPeriph, id.UFPProductType())
	assert.Equal(t, pdmsg.DFPNotDFP, id.DFPProductType())
	assert.Equal(t, uint16(0xc0ed), id.VID())
	assert.Equal(t, uint32(0x55aaaa55), objs[2])
	assert.Equal(t, pdmsg.NewProductVDO(0xc0ed, 0x0100), pdmsg.ProductVDO(objs[3]))
	assert.Equal(t, pdmsg.USB20Only, pdmsg.UFPVDO(objs[4]).HighestSpeed())
}

func TestDiscoverIdentityNeedsContract(t *testing.T) {
	h := newHarness(t)
	h.sink.SetIdentity(&Identity{VID: 0xc0ed})
	h.attach()

	h.port.receive(discoverIdentity(h))
	evs := h.poll(2)

	assert.Len(t, evs, 1)
	assert.Empty(t, h.port.sent)
}

func TestEventQueueBounded(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < eventQueueSize+3; i++ {
		h.sink.emit(PowerReady{})
	}
	assert.Len(t, h.sink.events, eventQueueSize)
}

func TestResetDropsUndeliveredEvents(t *testing.T) {
	h := newHarness(t)
	h.contract()
	h.sink.emit(PowerAccepted{})
	h.sink.emit(PowerReady{})

	h.sink.Reset()
	evs := h.poll(4)

	assert.Equal(t, []Event{ProtocolChanged{Protocol: ProtocolNone}}, evs)
}

func TestDetachDropsUndeliveredEvents(t *testing.T) {
	h := newHarness(t)
	h.contract()
	h.sink.emit(PowerRejected{})

	h.port.raise(pdsink.AlertDetached)
	evs := h.poll(3)

	assert.Equal(t, []Event{ProtocolChanged{Protocol: ProtocolNone}}, evs)
}

func TestDiscoverIdentityNotAnsweredDuringRenegotiation(t *testing.T) {
	h := newHarness(t)
	h.sink.SetIdentity(&Identity{VID: 0xc0ed})
	h.contract()

	h.port.receive(h.message(pdmsg.TypeSourceCap, uint32(advert[0])))
	h.poll(3)
	h.sink.Request(RequestPower{Index: 0, Current: 3000})
	h.poll(2)
	require.Equal(t, "sink-select-cap", h.state())
	require.Len(t, h.port.sent, 2)

	h.port.receive(discoverIdentity(h))
	evs := h.poll(2)

	assert.Len(t, evs, 1)
	assert.Len(t, h.port.sent, 2, "only the two requests are sent")
	assert.Equal(t, "sink-select-cap", h.state())

	h.control(pdmsg.TypeAccept)
	h.poll(3)
	h.control(pdmsg.TypePSReady)
	h.poll(3)
	require.Equal(t, "sink-ready", h.state())

	h.port.receive(discoverIdentity(h))
	h.poll(2)
	require.Len(t, h.port.sent, 3)
	assert.True(t, h.port.sent[2].Is(pdmsg.TypeVendorDefined, true))
}

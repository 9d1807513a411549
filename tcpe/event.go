package tcpe

import "github.com/oxplot/go-pdsink/pdmsg"

// Event is a negotiation event returned by Sink.Poll. It is one of
// ProtocolChanged, SourceCapabilitiesChanged, PowerAccepted, PowerRejected,
// PowerReady or VDMReceived.
type Event interface {
	isEvent()
}

// Protocol is the kind of power contract available on the port.
type Protocol uint8

// Protocols
const (
	ProtocolNone  Protocol = iota // detached or not yet known
	ProtocolTypeC                 // Type-C current only, source does not speak PD
	ProtocolPD                    // USB Power Delivery
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case ProtocolTypeC:
		return "type-c"
	case ProtocolPD:
		return "pd"
	default:
		return "INVALID"
	}
}

// ProtocolChanged is emitted when the port moves between protocols, or when
// the negotiated PD revision changes.
type ProtocolChanged struct {
	Protocol Protocol
	Revision pdmsg.Revision // only meaningful for ProtocolPD
}

// SourceCapabilitiesChanged is emitted when the source advertises its power
// profiles. The engine then waits briefly for a call to Request before
// falling back to vSafe5V.
type SourceCapabilitiesChanged struct {
	PDOs []pdmsg.PDO
}

// PowerAccepted is emitted when the source accepts the last request.
type PowerAccepted struct{}

// PowerRejected is emitted when the source rejects the last request.
type PowerRejected struct{}

// PowerReady is emitted when the accepted contract is electrically in
// effect.
type PowerReady struct{}

// VDMReceived is emitted for every Vendor_Defined message received.
type VDMReceived struct {
	Header pdmsg.VDMHeader
	Data   []uint32 // data objects following the header
}

func (ProtocolChanged) isEvent()           {}
func (SourceCapabilitiesChanged) isEvent() {}
func (PowerAccepted) isEvent()             {}
func (PowerRejected) isEvent()             {}
func (PowerReady) isEvent()                {}
func (VDMReceived) isEvent()               {}

// RequestPower asks the source for the fixed supply at Index (0-based,
// into the last SourceCapabilitiesChanged.PDOs) at Current milliamps.
type RequestPower struct {
	Index   int
	Current uint16
}

// Package pdmsg defines types to encode and decode USB-C Power Delivery
// messages and the data objects they carry: power data objects, request
// data objects and vendor defined objects.
//
// All types are plain integers with accessor methods so they can be passed
// around and stored without heap allocation.
package pdmsg

const (
	// MaxDataObjects is the maximum number of data objects a non-extended
	// message can carry.
	MaxDataObjects = 7

	// MaxMessageBytes is the size of the largest message: a 2 byte header
	// followed by MaxDataObjects 32 bit data objects.
	MaxMessageBytes = 2 + 4*MaxDataObjects
)

// Message represents a power delivery message. Extended messages are not
// decoded.
type Message struct {
	Header uint16

	// Data holds the data objects of data messages. Its size is fixed to the
	// largest message so that no heap allocation is needed; only the first
	// DataObjectCount elements are meaningful.
	Data [MaxDataObjects]uint32
}

// Objects returns the used part of Data.
func (m *Message) Objects() []uint32 {
	return m.Data[:m.DataObjectCount()]
}

// ToBytes serializes the message into b in little endian order and returns
// the number of bytes written. b must be at least MaxMessageBytes long.
func (m Message) ToBytes(b []byte) uint8 {
	b[0] = byte(m.Header)
	b[1] = byte(m.Header >> 8)
	n := m.DataObjectCount()
	for i, d := range m.Data[:n] {
		o := 2 + i*4
		b[o] = byte(d)
		b[o+1] = byte(d >> 8)
		b[o+2] = byte(d >> 16)
		b[o+3] = byte(d >> 24)
	}
	return 2 + n*4
}

// FromBytes decodes a header and as many data objects as the header
// declares from b. It returns false if b is too short.
func (m *Message) FromBytes(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	m.Header = uint16(b[1])<<8 | uint16(b[0])
	n := int(m.DataObjectCount())
	if len(b) < 2+n*4 {
		return false
	}
	for i := 0; i < n; i++ {
		o := 2 + i*4
		m.Data[i] = uint32(b[o]) | uint32(b[o+1])<<8 | uint32(b[o+2])<<16 | uint32(b[o+3])<<24
	}
	return true
}

func (m *Message) setField(shift, width uint, v uint16) {
	mask := uint16(1)<<width - 1
	m.Header = m.Header&^(mask<<shift) | (v&mask)<<shift
}

// IsExtended reports whether the extended flag is set.
func (m Message) IsExtended() bool {
	return m.Header&(1<<15) != 0
}

// SetExtended sets the extended flag.
func (m *Message) SetExtended(e bool) {
	var b uint16
	if e {
		b = 1
	}
	m.setField(15, 1, b)
}

// ID returns the message ID.
func (m Message) ID() uint8 {
	return uint8(m.Header>>9) & 0b111
}

// SetID sets the message ID.
func (m *Message) SetID(id uint8) {
	m.setField(9, 3, uint16(id))
}

// DataObjectCount returns the number of data objects in the message.
func (m Message) DataObjectCount() uint8 {
	return uint8(m.Header>>12) & 0b111
}

// SetDataObjectCount sets the number of data objects in the message.
func (m *Message) SetDataObjectCount(n uint8) {
	m.setField(12, 3, uint16(n))
}

// IsData reports whether this is a data message. Otherwise it is a control
// message.
func (m Message) IsData() bool {
	return m.DataObjectCount() > 0
}

// Type returns the message type. Control and data messages share some type
// values, so IsData must be consulted as well.
func (m Message) Type() Type {
	return Type(m.Header & 0b11111)
}

// SetType sets the message type.
func (m *Message) SetType(t Type) {
	m.setField(0, 5, uint16(t))
}

// Is reports whether the message is a data message (data true) or a control
// message (data false) of type t.
func (m Message) Is(t Type, data bool) bool {
	return m.IsData() == data && m.Type() == t
}

// Type represents the PD message type. The numeric values match the PD
// specification for both control and data messages.
type Type uint8

// Control message types
const (
	TypeGoodCRC      Type = 0b00001
	TypeAccept       Type = 0b00011
	TypeReject       Type = 0b00100
	TypePing         Type = 0b00101
	TypePSReady      Type = 0b00110
	TypeGetSourceCap Type = 0b00111
	TypeGetSinkCap   Type = 0b01000
	TypeWait         Type = 0b01100
	TypeSoftReset    Type = 0b01101
	TypeNotSupported Type = 0b10000
)

// Data message types
const (
	TypeSourceCap     Type = 0b00001
	TypeRequest       Type = 0b00010
	TypeSinkCap       Type = 0b00100
	TypeVendorDefined Type = 0b01111
)

// Revision returns the power delivery revision of the message.
func (m Message) Revision() Revision {
	return Revision(m.Header>>6) & 0b11
}

// SetRevision sets the power delivery revision of the message.
func (m *Message) SetRevision(r Revision) {
	m.setField(6, 2, uint16(r))
}

// Revision represents the power delivery revision of a message.
type Revision uint8

// Power delivery revisions.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10
)

func (r Revision) String() string {
	switch r {
	case Revision10:
		return "1.0"
	case Revision20:
		return "2.0"
	case Revision30:
		return "3.0"
	default:
		return "reserved"
	}
}

// PowerRole returns the power role of the sender.
func (m Message) PowerRole() PowerRole {
	return PowerRole(m.Header>>8) & 1
}

// SetPowerRole sets the power role of the sender.
func (m *Message) SetPowerRole(r PowerRole) {
	m.setField(8, 1, uint16(r))
}

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

// DataRole returns the data role of the sender.
func (m Message) DataRole() DataRole {
	return DataRole(m.Header>>5) & 1
}

// SetDataRole sets the data role of the sender.
func (m *Message) SetDataRole(r DataRole) {
	m.setField(5, 1, uint16(r))
}

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles.
const (
	DataRoleUFP DataRole = 0
	DataRoleDFP DataRole = 1
)

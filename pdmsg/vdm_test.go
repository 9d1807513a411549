package pdmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredVDMHeader(t *testing.T) {
	h := NewStructuredVDMHeader(PDSID, VDMCommandDiscoverIdentity, VDMCommandTypeREQ)
	assert.Equal(t, StructuredVDMHeader(0xff00a001), h)
	assert.True(t, VDMHeader(h).IsStructured())
	assert.Equal(t, PDSID, VDMHeader(h).SVID())

	major, minor := h.Version()
	assert.Equal(t, uint8(1), major)
	assert.Equal(t, uint8(0), minor)
	assert.Equal(t, uint8(0), h.ObjectPosition())

	h.SetCommandType(VDMCommandTypeACK)
	h.SetObjectPosition(3)
	h.SetCommand(VDMCommandEnterMode)
	assert.Equal(t, VDMCommandTypeACK, h.CommandType())
	assert.Equal(t, uint8(3), h.ObjectPosition())
	assert.Equal(t, VDMCommandEnterMode, h.Command())
	assert.Equal(t, PDSID, h.SVID())
}

func TestUnstructuredVDMHeader(t *testing.T) {
	h := VDMHeader(0x05ac1234)
	assert.False(t, h.IsStructured())
	u := UnstructuredVDMHeader(h)
	assert.Equal(t, uint16(0x05ac), u.VID())
	assert.Equal(t, uint16(0x1234), u.Data())
}

func TestVDMStrings(t *testing.T) {
	assert.Equal(t, "InitiatorREQ", VDMCommandTypeREQ.String())
	assert.Equal(t, "ResponderBUSY", VDMCommandTypeBUSY.String())
	assert.Equal(t, "DiscoverIdentity", VDMCommandDiscoverIdentity.String())
	assert.Equal(t, "DisplayPortConfig", VDMCommandDisplayPortConfig.String())
	assert.Equal(t, "VDMCommand(9)", VDMCommand(9).String())
}

func TestIdentityVDOs(t *testing.T) {
	id := NewIDHeaderVDO(0xc0ed, UFPPDUSBPeriph, DFPNotDFP)
	assert.Equal(t, IDHeaderVDO(0x5000c0ed), id)
	assert.True(t, id.USBDevice())
	assert.False(t, id.USBHost())
	assert.Equal(t, UFPPDUSBPeriph, id.UFPProductType())
	assert.Equal(t, DFPNotDFP, id.DFPProductType())

	p := NewProductVDO(0xc0ed, 0x0100)
	assert.Equal(t, ProductVDO(0xc0ed0100), p)
	assert.Equal(t, uint16(0xc0ed), p.PID())
	assert.Equal(t, uint16(0x0100), p.BCDDevice())

	u := NewUFPVDO(0b0001, USB20Only)
	assert.Equal(t, UFPVDO(0x61000000), u)
	assert.Equal(t, uint8(1), u.DeviceCapability())
	assert.Equal(t, USB20Only, u.HighestSpeed())
}

package pdmsg

import "fmt"

// VDMHeader is the first data object of a Vendor_Defined message. Depending
// on IsStructured, convert it to StructuredVDMHeader or
// UnstructuredVDMHeader to read its fields.
type VDMHeader uint32

// IsStructured reports whether the header describes a structured VDM.
func (h VDMHeader) IsStructured() bool {
	return h&(1<<15) != 0
}

// SVID returns the standard or vendor ID in the upper 16 bits. For
// unstructured VDMs this is the vendor ID.
func (h VDMHeader) SVID() uint16 {
	return uint16(h >> 16)
}

// PDSID is the standard ID used by Discover Identity, Discover SVIDs and
// other commands not specific to an alternate mode.
const PDSID uint16 = 0xff00

// StructuredVDMHeader represents the header of a structured VDM.
type StructuredVDMHeader uint32

// NewStructuredVDMHeader returns a structured VDM header for svid at
// version 2.0 with the given command and command type.
func NewStructuredVDMHeader(svid uint16, cmd VDMCommand, ct VDMCommandType) StructuredVDMHeader {
	h := StructuredVDMHeader(svid)<<16 | 1<<15
	h.SetVersion(1, 0)
	h.SetCommand(cmd)
	h.SetCommandType(ct)
	return h
}

// SVID returns the standard or vendor ID.
func (h StructuredVDMHeader) SVID() uint16 {
	return uint16(h >> 16)
}

// Version returns the major and minor structured VDM version fields as
// encoded (0 means 1.x/x.0, 1 means 2.x/x.1).
func (h StructuredVDMHeader) Version() (major, minor uint8) {
	return uint8(h>>13) & 0b11, uint8(h>>11) & 0b11
}

// SetVersion sets the encoded structured VDM version fields.
func (h *StructuredVDMHeader) SetVersion(major, minor uint8) {
	*h = *h&^(0b1111<<11) | StructuredVDMHeader(major&0b11)<<13 | StructuredVDMHeader(minor&0b11)<<11
}

// ObjectPosition returns the object position field, used by mode related
// commands. Zero for Discover commands.
func (h StructuredVDMHeader) ObjectPosition() uint8 {
	return uint8(h>>8) & 0b111
}

// SetObjectPosition sets the object position field.
func (h *StructuredVDMHeader) SetObjectPosition(p uint8) {
	*h = *h&^(0b111<<8) | StructuredVDMHeader(p&0b111)<<8
}

// CommandType returns the command type.
func (h StructuredVDMHeader) CommandType() VDMCommandType {
	return VDMCommandType(h>>6) & 0b11
}

// SetCommandType sets the command type.
func (h *StructuredVDMHeader) SetCommandType(t VDMCommandType) {
	*h = *h&^(0b11<<6) | StructuredVDMHeader(t&0b11)<<6
}

// Command returns the command.
func (h StructuredVDMHeader) Command() VDMCommand {
	return VDMCommand(h & 0b11111)
}

// SetCommand sets the command.
func (h *StructuredVDMHeader) SetCommand(c VDMCommand) {
	*h = *h&^0b11111 | StructuredVDMHeader(c&0b11111)
}

// UnstructuredVDMHeader represents the header of an unstructured VDM.
type UnstructuredVDMHeader uint32

// VID returns the vendor ID.
func (h UnstructuredVDMHeader) VID() uint16 {
	return uint16(h >> 16)
}

// Data returns the 15 bits available for vendor use.
func (h UnstructuredVDMHeader) Data() uint16 {
	return uint16(h) & (1<<15 - 1)
}

// VDMCommandType is the command type of a structured VDM.
type VDMCommandType uint8

// Structured VDM command types.
const (
	VDMCommandTypeREQ  VDMCommandType = 0b00 // initiator request
	VDMCommandTypeACK  VDMCommandType = 0b01 // responder ACK
	VDMCommandTypeNAK  VDMCommandType = 0b10 // responder NAK
	VDMCommandTypeBUSY VDMCommandType = 0b11 // responder busy
)

func (t VDMCommandType) String() string {
	switch t {
	case VDMCommandTypeREQ:
		return "InitiatorREQ"
	case VDMCommandTypeACK:
		return "ResponderACK"
	case VDMCommandTypeNAK:
		return "ResponderNAK"
	case VDMCommandTypeBUSY:
		return "ResponderBUSY"
	default:
		return fmt.Sprintf("VDMCommandType(%d)", uint8(t))
	}
}

// VDMCommand is the command of a structured VDM.
type VDMCommand uint8

// Structured VDM commands. Values from 16 are SVID specific; the
// DisplayPort ones are listed.
const (
	VDMCommandDiscoverIdentity  VDMCommand = 1
	VDMCommandDiscoverSVIDs     VDMCommand = 2
	VDMCommandDiscoverModes     VDMCommand = 3
	VDMCommandEnterMode         VDMCommand = 4
	VDMCommandExitMode          VDMCommand = 5
	VDMCommandAttention         VDMCommand = 6
	VDMCommandDisplayPortStatus VDMCommand = 16
	VDMCommandDisplayPortConfig VDMCommand = 17
)

func (c VDMCommand) String() string {
	switch c {
	case VDMCommandDiscoverIdentity:
		return "DiscoverIdentity"
	case VDMCommandDiscoverSVIDs:
		return "DiscoverSVIDs"
	case VDMCommandDiscoverModes:
		return "DiscoverModes"
	case VDMCommandEnterMode:
		return "EnterMode"
	case VDMCommandExitMode:
		return "ExitMode"
	case VDMCommandAttention:
		return "Attention"
	case VDMCommandDisplayPortStatus:
		return "DisplayPortStatus"
	case VDMCommandDisplayPortConfig:
		return "DisplayPortConfig"
	default:
		return fmt.Sprintf("VDMCommand(%d)", uint8(c))
	}
}

// IDHeaderVDO is the ID Header VDO returned in a Discover Identity ACK.
type IDHeaderVDO uint32

// NewIDHeaderVDO returns an ID header for a USB device (not host) with
// the given vendor ID and product types.
func NewIDHeaderVDO(vid uint16, ufp UFPProductType, dfp DFPProductType) IDHeaderVDO {
	return IDHeaderVDO(1)<<30 | IDHeaderVDO(ufp&0b111)<<27 | IDHeaderVDO(dfp&0b111)<<23 | IDHeaderVDO(vid)
}

// USBHost reports whether the port is capable of USB host operation.
func (o IDHeaderVDO) USBHost() bool { return o&(1<<31) != 0 }

// USBDevice reports whether the port is capable of USB device operation.
func (o IDHeaderVDO) USBDevice() bool { return o&(1<<30) != 0 }

// UFPProductType returns the SOP product type as an upstream facing port.
func (o IDHeaderVDO) UFPProductType() UFPProductType { return UFPProductType(o>>27) & 0b111 }

// DFPProductType returns the SOP product type as a downstream facing port.
func (o IDHeaderVDO) DFPProductType() DFPProductType { return DFPProductType(o>>23) & 0b111 }

// VID returns the USB vendor ID.
func (o IDHeaderVDO) VID() uint16 { return uint16(o) }

// UFPProductType is the SOP product type of an upstream facing port.
type UFPProductType uint8

// UFP product types.
const (
	UFPNotUFP        UFPProductType = 0b000
	UFPPDUSBHub      UFPProductType = 0b001
	UFPPDUSBPeriph   UFPProductType = 0b010
	UFPPSDOnly       UFPProductType = 0b011
	UFPAlternateMode UFPProductType = 0b101
)

// DFPProductType is the SOP product type of a downstream facing port.
type DFPProductType uint8

// DFP product types.
const (
	DFPNotDFP     DFPProductType = 0b000
	DFPPDUSBHub   DFPProductType = 0b001
	DFPPDUSBHost  DFPProductType = 0b010
	DFPPowerBrick DFPProductType = 0b011
)

// CertStatVDO carries the XID assigned by USB-IF.
type CertStatVDO uint32

// ProductVDO carries the USB product ID and device release number.
type ProductVDO uint32

// NewProductVDO returns a product VDO.
func NewProductVDO(pid, bcdDevice uint16) ProductVDO {
	return ProductVDO(pid)<<16 | ProductVDO(bcdDevice)
}

// PID returns the USB product ID.
func (o ProductVDO) PID() uint16 { return uint16(o >> 16) }

// BCDDevice returns the device release number.
func (o ProductVDO) BCDDevice() uint16 { return uint16(o) }

// UFPVDO describes the capabilities of an upstream facing port.
type UFPVDO uint32

// USB highest speed values of a UFP VDO.
const (
	USB20Only uint8 = 0b000
	USB32Gen1 uint8 = 0b001
)

// NewUFPVDO returns a version 1.3 UFP VDO with the given device capability
// bits and highest USB speed.
func NewUFPVDO(deviceCapability, highestSpeed uint8) UFPVDO {
	const version13 = 0b011
	return UFPVDO(version13)<<29 | UFPVDO(deviceCapability&0b1111)<<24 | UFPVDO(highestSpeed&0b111)
}

// DeviceCapability returns the device capability bits.
func (o UFPVDO) DeviceCapability() uint8 { return uint8(o>>24) & 0b1111 }

// HighestSpeed returns the highest USB signaling speed.
func (o UFPVDO) HighestSpeed() uint8 { return uint8(o) & 0b111 }

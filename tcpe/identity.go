package tcpe

import (
	"fmt"

	"github.com/oxplot/go-pdsink/pdmsg"
)

// Identity is what the sink reports in response to Discover Identity.
type Identity struct {
	VID       uint16 // USB vendor ID
	PID       uint16 // USB product ID
	BCDDevice uint16 // device release number
	XID       uint32 // USB-IF assigned XID, zero if none
}

// vdos returns the Discover Identity ACK data objects following the VDM
// header. The UFP VDO only exists from PD 3.0 on.
func (id *Identity) vdos(rev pdmsg.Revision, buf []uint32) []uint32 {
	buf = append(buf,
		uint32(pdmsg.NewIDHeaderVDO(id.VID, pdmsg.UFPPDUSBPeriph, pdmsg.DFPNotDFP)),
		uint32(pdmsg.CertStatVDO(id.XID)),
		uint32(pdmsg.NewProductVDO(id.PID, id.BCDDevice)),
	)
	if rev >= pdmsg.Revision30 {
		buf = append(buf, uint32(pdmsg.NewUFPVDO(0b0001, pdmsg.USB20Only)))
	}
	return buf
}

// handleVDM reports a Vendor_Defined message and answers Discover Identity
// when an identity is set and the sink is ready. Replying at any other
// time would interrupt a power negotiation.
func (s *Sink) handleVDM(m pdmsg.Message) error {
	objs := m.Objects()
	hdr := pdmsg.VDMHeader(objs[0])
	s.emit(VDMReceived{Header: hdr, Data: append([]uint32(nil), objs[1:]...)})

	if !hdr.IsStructured() || s.identity == nil || s.cur != stateSinkReady {
		return nil
	}
	req := pdmsg.StructuredVDMHeader(hdr)
	if req.SVID() != pdmsg.PDSID || req.CommandType() != pdmsg.VDMCommandTypeREQ || req.Command() != pdmsg.VDMCommandDiscoverIdentity {
		return nil
	}

	ack := pdmsg.NewStructuredVDMHeader(pdmsg.PDSID, pdmsg.VDMCommandDiscoverIdentity, pdmsg.VDMCommandTypeACK)
	ack.SetVersion(req.Version())

	var buf [pdmsg.MaxDataObjects]uint32
	data := s.identity.vdos(s.revision, append(buf[:0], uint32(ack)))

	r := s.msgTpl
	r.SetType(pdmsg.TypeVendorDefined)
	r.SetDataObjectCount(uint8(len(data)))
	copy(r.Data[:], data)
	s.log.Debug("answering discover identity", "vid", fmt.Sprintf("0x%04x", s.identity.VID), "pid", fmt.Sprintf("0x%04x", s.identity.PID))
	return s.tx(r)
}

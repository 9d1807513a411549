package pdmsg

// RequestDO represents a Request Data Object.
type RequestDO uint32

// EmptyRequestDO is the zero request, selecting no profile.
const EmptyRequestDO RequestDO = 0

// NewFixedRequestDO returns a request for the fixed supply at the 1-based
// object position pos, operating at current milliamps.
func NewFixedRequestDO(pos uint8, current uint16) RequestDO {
	var r RequestDO
	r.SetSelectedObjectPosition(pos)
	r.SetFixedOperatingCurrent(current)
	r.SetFixedMaxOperatingCurrent(current)
	return r
}

// SelectedObjectPosition returns the position of the requested PDO in the
// source capabilities message, starting at 1.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8(o>>28) & 0b1111
}

// SetSelectedObjectPosition sets the position of the requested PDO,
// starting at 1.
func (o *RequestDO) SetSelectedObjectPosition(p uint8) {
	*o = *o&^(0b1111<<28) | RequestDO(p&0b1111)<<28
}

// CapabilityMismatch reports whether the capability mismatch flag is set.
func (o RequestDO) CapabilityMismatch() bool {
	return o&(1<<26) != 0
}

// SetCapabilityMismatch sets the capability mismatch flag.
func (o *RequestDO) SetCapabilityMismatch(m bool) {
	*o &^= 1 << 26
	if m {
		*o |= 1 << 26
	}
}

// FixedOperatingCurrent returns the operating current in milliamps of a
// fixed request.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16((o>>10)&(1<<10-1)) * 10
}

// SetFixedOperatingCurrent sets the operating current in milliamps, rounded
// down to 10mA.
func (o *RequestDO) SetFixedOperatingCurrent(c uint16) {
	*o = *o&^((1<<10-1)<<10) | (RequestDO(c/10)&(1<<10-1))<<10
}

// FixedMaxOperatingCurrent returns the maximum operating current in
// milliamps of a fixed request without GiveBack support.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16(o&(1<<10-1)) * 10
}

// SetFixedMaxOperatingCurrent sets the maximum operating current in
// milliamps, rounded down to 10mA.
func (o *RequestDO) SetFixedMaxOperatingCurrent(c uint16) {
	*o = *o&^(1<<10-1) | RequestDO(c/10)&(1<<10-1)
}

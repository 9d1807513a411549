package pdmsg

import "fmt"

// PDO is a generic Power Data Object. Convert it to the type-specific PDO
// matching Type() to read its fields.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() PDOType {
	h := (o >> 30) & 0b11
	if h == 0b11 {
		return PDOType((((o >> 28) & 0b11) << 3) | 0b100 | h)
	}
	return PDOType(h)
}

// String describes the profile in human units, e.g. "fixed 9.0V 3.00A".
func (o PDO) String() string {
	switch o.Type() {
	case PDOTypeFixedSupply:
		fs := FixedSupplyPDO(o)
		return fmt.Sprintf("fixed %s %s", volts(fs.Voltage()), amps(fs.MaxCurrent()))
	case PDOTypeVariableSupply:
		vs := VariableSupplyPDO(o)
		return fmt.Sprintf("variable %s-%s %s", volts(vs.MinVoltage()), volts(vs.MaxVoltage()), amps(vs.MaxCurrent()))
	case PDOTypeBattery:
		b := BatteryPDO(o)
		return fmt.Sprintf("battery %s-%s %.2fW", volts(b.MinVoltage()), volts(b.MaxVoltage()), float32(b.MaxPower())/1000)
	case PDOTypePPS:
		pps := PPSPDO(o)
		s := fmt.Sprintf("pps %s-%s %s", volts(pps.MinVoltage()), volts(pps.MaxVoltage()), amps(pps.MaxCurrent()))
		if pps.IsPowerLimited() {
			s += " (power limited)"
		}
		return s
	case PDOTypeEPRAVS:
		return fmt.Sprintf("epr-avs 0x%08x", uint32(o))
	default:
		return fmt.Sprintf("invalid 0x%08x", uint32(o))
	}
}

func volts(mv uint16) string { return fmt.Sprintf("%.1fV", float32(mv)/1000) }
func amps(ma uint16) string  { return fmt.Sprintf("%.2fA", float32(ma)/1000) }

// PDOType represents the type of a power data object.
type PDOType uint8

// Power data object types.
const (
	PDOTypeFixedSupply    PDOType = 0b00
	PDOTypeBattery        PDOType = 0b01
	PDOTypeVariableSupply PDOType = 0b10
	PDOTypePPS            PDOType = 0b00111 // augmented PDO, value specific to this package
	PDOTypeEPRAVS         PDOType = 0b01111 // augmented PDO, value specific to this package
)

func (t PDOType) String() string {
	switch t {
	case PDOTypeFixedSupply:
		return "fixed"
	case PDOTypeBattery:
		return "battery"
	case PDOTypeVariableSupply:
		return "variable"
	case PDOTypePPS:
		return "pps"
	case PDOTypeEPRAVS:
		return "epr-avs"
	default:
		return "invalid"
	}
}

// FixedSupplyPDO represents a Fixed Supply Power Data Object. Voltage is
// encoded in 50mV units and maximum current in 10mA units.
type FixedSupplyPDO uint32

// NewFixedSupplyPDO returns a blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// Voltage returns the voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16((o>>10)&(1<<10-1)) * 50
}

// SetVoltage sets the voltage in millivolts, rounded down to 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = *o&^((1<<10-1)<<10) | (FixedSupplyPDO(v/50)&(1<<10-1))<<10
}

// MaxCurrent returns the maximum current in milliamps.
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16(o&(1<<10-1)) * 10
}

// SetMaxCurrent sets the maximum current in milliamps, rounded down to
// 10mA.
func (o *FixedSupplyPDO) SetMaxCurrent(c uint16) {
	*o = *o&^(1<<10-1) | FixedSupplyPDO(c/10)&(1<<10-1)
}

// VariableSupplyPDO represents a Variable Supply (non-battery) Power Data
// Object.
type VariableSupplyPDO uint32

// MaxVoltage returns the maximum voltage in millivolts.
func (o VariableSupplyPDO) MaxVoltage() uint16 {
	return uint16((o>>20)&(1<<10-1)) * 50
}

// MinVoltage returns the minimum voltage in millivolts.
func (o VariableSupplyPDO) MinVoltage() uint16 {
	return uint16((o>>10)&(1<<10-1)) * 50
}

// MaxCurrent returns the maximum current in milliamps.
func (o VariableSupplyPDO) MaxCurrent() uint16 {
	return uint16(o&(1<<10-1)) * 10
}

// BatteryPDO represents a Battery Supply Power Data Object.
type BatteryPDO uint32

// MaxVoltage returns the maximum voltage in millivolts.
func (o BatteryPDO) MaxVoltage() uint16 {
	return uint16((o>>20)&(1<<10-1)) * 50
}

// MinVoltage returns the minimum voltage in millivolts.
func (o BatteryPDO) MinVoltage() uint16 {
	return uint16((o>>10)&(1<<10-1)) * 50
}

// MaxPower returns the maximum allowable power in milliwatts.
func (o BatteryPDO) MaxPower() uint32 {
	return uint32(o&(1<<10-1)) * 250
}

// PPSPDO represents a Programmable Power Supply Augmented Power Data Object.
type PPSPDO uint32

// NewPPSPDO returns a blank programmable power supply PDO.
func NewPPSPDO() PPSPDO {
	return PPSPDO(0b11) << 30
}

// MinVoltage returns the minimum voltage in millivolts.
func (o PPSPDO) MinVoltage() uint16 {
	return uint16((o>>8)&(1<<8-1)) * 100
}

// SetMinVoltage sets the minimum voltage in millivolts, rounded down to
// 100mV.
func (o *PPSPDO) SetMinVoltage(v uint16) {
	*o = *o&^((1<<8-1)<<8) | (PPSPDO(v/100)&(1<<8-1))<<8
}

// MaxVoltage returns the maximum voltage in millivolts.
func (o PPSPDO) MaxVoltage() uint16 {
	return uint16((o>>17)&(1<<8-1)) * 100
}

// SetMaxVoltage sets the maximum voltage in millivolts, rounded down to
// 100mV.
func (o *PPSPDO) SetMaxVoltage(v uint16) {
	*o = *o&^((1<<8-1)<<17) | (PPSPDO(v/100)&(1<<8-1))<<17
}

// MaxCurrent returns the maximum current in milliamps.
func (o PPSPDO) MaxCurrent() uint16 {
	return uint16(o&(1<<7-1)) * 50
}

// SetMaxCurrent sets the maximum current in milliamps, rounded down to
// 50mA.
func (o *PPSPDO) SetMaxCurrent(c uint16) {
	*o = *o&^(1<<7-1) | PPSPDO(c/50)&(1<<7-1)
}

// IsPowerLimited reports whether the source may limit output power below
// MaxVoltage times MaxCurrent.
func (o PPSPDO) IsPowerLimited() bool {
	return o&(1<<27) != 0
}

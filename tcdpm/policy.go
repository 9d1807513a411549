package tcdpm

import (
	"errors"

	"github.com/oxplot/go-pdsink/pdmsg"
)

// Policy chooses which advertised power profile to request.
type Policy interface {
	// Validate returns an error if the policy parameters are invalid.
	Validate() error

	// Select returns the index into pdos of the profile to request, or
	// false if none is acceptable. Only fixed supply profiles are
	// candidates. Select must be deterministic.
	Select(pdos []pdmsg.PDO) (index int, ok bool)
}

// FixedPolicy selects a fixed supply profile within a voltage window that
// can deliver at least MinCurrent. Among candidates, the highest voltage
// wins, or the lowest with PreferLowerVoltage. Ties go to the profile
// advertised first.
type FixedPolicy struct {

	// Minimum accepted voltage in millivolts.
	MinVoltage uint16

	// Maximum accepted voltage in millivolts.
	MaxVoltage uint16

	// Minimum current in milliamps the profile must be able to supply.
	MinCurrent uint16

	// Prefer the lowest voltage in the window rather than the highest.
	PreferLowerVoltage bool
}

var (
	// HighestVoltage requests the highest voltage fixed supply on offer.
	HighestVoltage = FixedPolicy{MaxVoltage: maxVoltage}

	// LowestVoltage requests the lowest voltage fixed supply on offer.
	LowestVoltage = FixedPolicy{MaxVoltage: maxVoltage, PreferLowerVoltage: true}
)

const (
	maxVoltage = 51150 // largest voltage a fixed supply PDO can encode
	maxCurrent = 5000
)

var (
	errBadCurrent            = errors.New("tcdpm: current must be <= 5000mA")
	errMaxVoltageLessThanMin = errors.New("tcdpm: max voltage must be >= min voltage")
)

// Validate returns an error if the policy parameters are invalid.
func (p FixedPolicy) Validate() error {
	if p.MinCurrent > maxCurrent {
		return errBadCurrent
	}
	if p.MinVoltage > p.MaxVoltage {
		return errMaxVoltageLessThanMin
	}
	return nil
}

// Select implements Policy.
func (p FixedPolicy) Select(pdos []pdmsg.PDO) (int, bool) {
	best := -1
	var bestVoltage uint16
	for i, o := range pdos {
		if o.Type() != pdmsg.PDOTypeFixedSupply {
			continue
		}
		fs := pdmsg.FixedSupplyPDO(o)
		v := fs.Voltage()
		if v < p.MinVoltage || v > p.MaxVoltage || fs.MaxCurrent() < p.MinCurrent {
			continue
		}
		if best < 0 || (p.PreferLowerVoltage && v < bestVoltage) || (!p.PreferLowerVoltage && v > bestVoltage) {
			best, bestVoltage = i, v
		}
	}
	return best, best >= 0
}

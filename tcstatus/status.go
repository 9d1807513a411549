// Package tcstatus holds the outcome of power negotiation: the profiles the
// source last advertised and which of them was requested, accepted, made
// ready or rejected.
//
// A Store is written by the negotiation task only and read by any number
// of observers. Every read sees a complete snapshot; there is no way to
// observe half of an update.
package tcstatus

import (
	"fmt"
	"strconv"

	"github.com/oxplot/go-pdsink/pdmsg"
)

// Capacity is the maximum number of profiles a Catalog holds.
const Capacity = 8

// Index is a position in the advertised profile list, or None. A source
// advertises at most 7 profiles, so int8 always suffices.
type Index int8

// None marks an unset Index.
const None Index = -1

// Valid reports whether i is set.
func (i Index) Valid() bool {
	return i >= 0
}

func (i Index) String() string {
	if !i.Valid() {
		return "none"
	}
	return strconv.Itoa(int(i))
}

// Catalog is a bounded list of power profiles in advertisement order.
type Catalog struct {
	pdos [Capacity]pdmsg.PDO
	n    uint8
}

// Push appends p. It returns false and drops p if the catalog is full.
func (c *Catalog) Push(p pdmsg.PDO) bool {
	if int(c.n) == Capacity {
		return false
	}
	c.pdos[c.n] = p
	c.n++
	return true
}

// Len returns the number of profiles.
func (c Catalog) Len() int {
	return int(c.n)
}

// At returns the i-th profile.
func (c Catalog) At(i int) pdmsg.PDO {
	if i < 0 || i >= int(c.n) {
		panic(fmt.Sprintf("tcstatus: catalog index %d out of range [0:%d]", i, c.n))
	}
	return c.pdos[i]
}

// PDOs returns a copy of the profiles.
func (c Catalog) PDOs() []pdmsg.PDO {
	return append([]pdmsg.PDO(nil), c.pdos[:c.n]...)
}

// Clear empties the catalog.
func (c *Catalog) Clear() {
	*c = Catalog{}
}

// Status is the negotiation status. Indices refer to positions in the
// source's advertisement, not in Profiles.
type Status struct {
	Profiles Catalog

	Requested Index // awaiting accept or reject
	Accepted  Index // contract established
	Ready     Index // contract electrically in effect, equal to Accepted
	Rejected  Index // request refused
}

// Reset abandons any negotiation in flight: all indices are unset and the
// catalog is emptied.
func (s *Status) Reset() {
	s.Profiles.Clear()
	s.Requested, s.Accepted, s.Ready, s.Rejected = None, None, None, None
}

// Accept moves Requested to Accepted and clears the rest. It returns false
// without changes if nothing was requested.
func (s *Status) Accept() bool {
	if !s.Requested.Valid() {
		return false
	}
	s.Accepted = s.Requested
	s.Requested, s.Rejected, s.Ready = None, None, None
	return true
}

// Reject moves Requested to Rejected and clears the rest. It returns false
// without changes if nothing was requested.
func (s *Status) Reject() bool {
	if !s.Requested.Valid() {
		return false
	}
	s.Rejected = s.Requested
	s.Requested, s.Accepted, s.Ready = None, None, None
	return true
}

// MarkReady sets Ready to Accepted. It returns false without changes if
// nothing was accepted.
func (s *Status) MarkReady() bool {
	if !s.Accepted.Valid() {
		return false
	}
	s.Ready = s.Accepted
	return true
}

// Equal reports whether s and o hold the same indices and profiles.
func (s Status) Equal(o Status) bool {
	return s == o
}

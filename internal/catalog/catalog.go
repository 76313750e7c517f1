// Package catalog provides the static CPDLC message-type metadata table
// consumed by the wire codec and the thread engine.
//
// The full enumeration of CPDLC message types and their human-readable
// formatting is, per the system specification, an external collaborator:
// a production deployment plugs in the complete FANS-1/A catalog. This
// package supplies the reference Lookup implementation and populates it
// with the message types the router and the thread engine themselves
// depend on for their control-flow decisions (standby, accept, reject,
// roger, error, disregard, link management, and the downlink-request
// ranges used by the reply-timeout machinery).
package catalog

import "fmt"

// Code identifies a CPDLC message type. Downlink codes (DMn) occupy
// 0..999; uplink codes (UMn) are offset by 1000 so a single integer space
// can index both families without collision.
type Code int

const umBase Code = 1000

// DMCode returns the Code for downlink message type n (DMn).
func DMCode(n int) Code { return Code(n) }

// UMCode returns the Code for uplink message type n (UMn).
func UMCode(n int) Code { return umBase + Code(n) }

// IsUplink reports whether a Code belongs to the uplink (ground->aircraft)
// family.
func (c Code) IsUplink() bool { return c >= umBase }

func (c Code) String() string {
	if c.IsUplink() {
		return fmt.Sprintf("UM%d", int(c-umBase))
	}
	return fmt.Sprintf("DM%d", int(c))
}

// Named constants for the message types the core's control flow inspects
// directly. See cpdlc_msglist.c in the original implementation for the
// equivalent DMn/UMn numbering this mirrors.
var (
	DM0  = DMCode(0)  // WILCO
	DM1  = DMCode(1)  // UNABLE
	DM2  = DMCode(2)  // STANDBY
	DM3  = DMCode(3)  // ROGER
	DM4  = DMCode(4)  // AFFIRM
	DM5  = DMCode(5)  // NEGATIVE
	DM62 = DMCode(62) // ERROR
	DM70 = DMCode(70) // REQUEST HEADING
	DM71 = DMCode(71) // REQUEST GROUND TRACK

	UM0   = UMCode(0)   // UNABLE
	UM1   = UMCode(1)   // STANDBY
	UM3   = UMCode(3)   // ROGER
	UM4   = UMCode(4)   // AFFIRM
	UM5   = UMCode(5)   // NEGATIVE
	UM20  = UMCode(20)  // MAINTAIN FLIGHT LEVEL (illustrative reply-required uplink)
	UM74  = UMCode(74)  // WHEN READY (illustrative reply-required uplink)
	UM159 = UMCode(159) // ERROR
	UM160 = UMCode(160) // NEXT DATA AUTHORITY
	UM161 = UMCode(161) // END SERVICE
	UM168 = UMCode(168) // DISREGARD
)

// ResponseClass classifies what kind of reply a message expects.
type ResponseClass int

const (
	// RCNone marks a message that does not itself expect a reply.
	RCNone ResponseClass = iota
	// RCY marks a message for which a reply is required (generic "yes").
	RCY
	// RCWU marks a message that expects WILCO/UNABLE.
	RCWU
	// RCAN marks a message that expects AFFIRM/NEGATIVE.
	RCAN
	// RCNE marks a message for which no reply is expected, but receipt
	// should be acknowledged.
	RCNE
)

func (rc ResponseClass) String() string {
	switch rc {
	case RCNone:
		return "NONE"
	case RCY:
		return "Y"
	case RCWU:
		return "WU"
	case RCAN:
		return "AN"
	case RCNE:
		return "NE"
	default:
		return "UNKNOWN"
	}
}

// Entry is the metadata a segment's message-type code carries.
type Entry struct {
	IsDownlink     bool
	ResponseClass  ResponseClass
	TimeoutSeconds int
}

// table holds the explicit per-code entries.
var table = map[Code]Entry{
	DM0:  {IsDownlink: true, ResponseClass: RCNone},
	DM1:  {IsDownlink: true, ResponseClass: RCNone},
	DM2:  {IsDownlink: true, ResponseClass: RCNone},
	DM3:  {IsDownlink: true, ResponseClass: RCNone},
	DM4:  {IsDownlink: true, ResponseClass: RCNone},
	DM5:  {IsDownlink: true, ResponseClass: RCNone},
	DM62: {IsDownlink: true, ResponseClass: RCNone},
	DM70: {IsDownlink: true, ResponseClass: RCY, TimeoutSeconds: 120},
	DM71: {IsDownlink: true, ResponseClass: RCY, TimeoutSeconds: 120},

	UM0:   {IsDownlink: false, ResponseClass: RCNone},
	UM1:   {IsDownlink: false, ResponseClass: RCNone},
	UM3:   {IsDownlink: false, ResponseClass: RCNone},
	UM4:   {IsDownlink: false, ResponseClass: RCNone},
	UM5:   {IsDownlink: false, ResponseClass: RCNone},
	UM20:  {IsDownlink: false, ResponseClass: RCWU, TimeoutSeconds: 60},
	UM74:  {IsDownlink: false, ResponseClass: RCAN, TimeoutSeconds: 60},
	UM159: {IsDownlink: false, ResponseClass: RCNone},
	UM160: {IsDownlink: false, ResponseClass: RCNone},
	UM161: {IsDownlink: false, ResponseClass: RCNone},
	UM168: {IsDownlink: false, ResponseClass: RCNone},
}

func init() {
	for n := 6; n <= 27; n++ {
		table[DMCode(n)] = Entry{IsDownlink: true, ResponseClass: RCY, TimeoutSeconds: 120}
	}
	for n := 49; n <= 54; n++ {
		table[DMCode(n)] = Entry{IsDownlink: true, ResponseClass: RCY, TimeoutSeconds: 120}
	}
}

// Lookup returns the metadata for a message-type code and whether the
// code is known to the catalog.
func Lookup(c Code) (Entry, bool) {
	e, ok := table[c]
	return e, ok
}

// IsDownlinkRequest reports whether code lies in the downlink "request"
// ranges (DM6-DM27, DM49-DM54) or is DM70/DM71, per the status
// recomputation rule's request predicate.
func IsDownlinkRequest(c Code) bool {
	n := int(c)
	if c.IsUplink() {
		return false
	}
	if n >= 6 && n <= 27 {
		return true
	}
	if n >= 49 && n <= 54 {
		return true
	}
	return c == DM70 || c == DM71
}

// IsStandby reports whether code is DM2 or UM1.
func IsStandby(c Code) bool { return c == DM2 || c == UM1 }

// IsAccept reports whether code is DM0 WILCO, DM4 AFFIRM, or UM4 AFFIRM.
func IsAccept(c Code) bool { return c == DM0 || c == DM4 || c == UM4 }

// IsReject reports whether code is one of DM1, DM5, DM62, UM0, UM5, UM159.
func IsReject(c Code) bool {
	switch c {
	case DM1, DM5, DM62, UM0, UM5, UM159:
		return true
	default:
		return false
	}
}

// IsRogerOrLinkManagement reports whether code is ROGER (DM3/UM3) or a
// link-management uplink (UM160, UM161).
func IsRogerOrLinkManagement(c Code) bool {
	switch c {
	case DM3, UM3, UM160, UM161:
		return true
	default:
		return false
	}
}

// IsDisregard reports whether code is UM168 DISREGARD.
func IsDisregard(c Code) bool { return c == UM168 }

// IsErrorSegment reports whether code is an error-class segment.
func IsErrorSegment(c Code) bool { return c == DM62 || c == UM159 }

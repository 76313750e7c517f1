// Package wire implements the shared textual codec for CPDLC message
// frames (spec section 6.1): a single line of printable 7-bit ASCII,
// newline-delimited, shared verbatim by the router daemon and the
// client-side thread engine.
package wire

import "github.com/cpdlc/cpdlcd/internal/catalog"

// InvalidSeqNr is the sentinel MIN/MRN value meaning "absent". It mirrors
// CPDLC_INVALID_MSG_SEQ_NR in the original implementation.
const InvalidSeqNr uint32 = 0xFFFFFFFF

// MaxCallsignLen is the maximum length, in bytes, of a FROM/TO callsign.
const MaxCallsignLen = 15

// Direction is the direction a message travels.
type Direction int

const (
	Downlink Direction = iota // aircraft -> ground
	Uplink                    // ground -> aircraft
)

func (d Direction) String() string {
	if d == Uplink {
		return "uplink"
	}
	return "downlink"
}

// Segment is one (message_type_code, argument_vector) tuple within a
// message.
type Segment struct {
	Type catalog.Code
	Args []string
}

// Message is a single CPDLC message: a logon exchange or a set of
// segments addressed between two callsigns.
type Message struct {
	MIN uint32
	MRN uint32 // InvalidSeqNr when absent

	From string
	To   string

	IsLogon   bool
	LogonData string

	Segments []Segment
}

// HasMRN reports whether the message carries a reply reference.
func (m *Message) HasMRN() bool { return m.MRN != InvalidSeqNr }

// Direction returns the direction shared by all of the message's
// segments, derived from the catalog. A message with no segments (a bare
// logon) has no meaningful direction and returns Downlink, false.
func (m *Message) Direction() (Direction, bool) {
	if len(m.Segments) == 0 {
		return Downlink, false
	}
	entry, ok := catalog.Lookup(m.Segments[0].Type)
	if !ok {
		return Downlink, false
	}
	if entry.IsDownlink {
		return Downlink, true
	}
	return Uplink, true
}

// Clone returns a deep copy of the message, safe to mutate independently.
func (m *Message) Clone() *Message {
	out := *m
	out.Segments = make([]Segment, len(m.Segments))
	for i, s := range m.Segments {
		args := make([]string, len(s.Args))
		copy(args, s.Args)
		out.Segments[i] = Segment{Type: s.Type, Args: args}
	}
	return &out
}

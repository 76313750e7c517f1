package wire

import "github.com/cpdlc/cpdlcd/internal/catalog"

// NewErrorMessage synthesizes a CPDLC error reply for a protocol-level
// failure (spec section 4.1 "Error reporting", section 7). If the
// offending message was a downlink or is unknown (offending == nil), the
// reply carries a UM159 ERROR segment; if the offending message was an
// uplink, it carries a DM62 ERROR segment. The offending message's MIN
// is mirrored onto the reply's own MIN when available, per spec
// wording; the reply's MRN is left absent.
func NewErrorMessage(from, to string, offending *Message, desc string) *Message {
	code := catalog.UM159
	var min uint32

	if offending != nil {
		min = offending.MIN
		if dir, ok := offending.Direction(); ok && dir == Uplink {
			code = catalog.DM62
		}
	}

	return &Message{
		MIN:      min,
		MRN:      InvalidSeqNr,
		From:     from,
		To:       to,
		Segments: []Segment{{Type: code, Args: []string{desc}}},
	}
}

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cpdlc/cpdlcd/internal/catalog"
)

// ErrNonASCII is returned by Validate when the buffer contains a byte
// outside the printable 7-bit ASCII range (value 0 or > 127), a fatal
// protocol error per spec section 6.1.
var ErrNonASCII = errors.New("wire: non-ASCII byte in input stream")

// ErrMalformed is returned by Decode when a complete, newline-terminated
// frame could not be parsed into a Message.
var ErrMalformed = errors.New("wire: malformed frame")

const fieldSep = "/"

// Validate scans buf for bytes forbidden anywhere in the CPDLC byte
// stream: value 0 or greater than 127. It does not require the buffer to
// contain a complete frame.
func Validate(buf []byte) error {
	for _, b := range buf {
		if b == 0 || b > 127 {
			return ErrNonASCII
		}
	}
	return nil
}

// Encode serializes a Message into a single newline-terminated frame.
func Encode(m *Message) []byte {
	var parts []string

	parts = append(parts, "FROM="+m.From)
	if m.To != "" {
		parts = append(parts, "TO="+m.To)
	}
	parts = append(parts, "MIN="+strconv.FormatUint(uint64(m.MIN), 10))
	if m.HasMRN() {
		parts = append(parts, "MRN="+strconv.FormatUint(uint64(m.MRN), 10))
	}
	if m.IsLogon {
		parts = append(parts, "LOGON="+m.LogonData)
	}
	for _, seg := range m.Segments {
		tok := "MSG=" + strconv.Itoa(int(seg.Type))
		if len(seg.Args) > 0 {
			tok += ":" + strings.Join(seg.Args, ",")
		}
		parts = append(parts, tok)
	}

	line := strings.Join(parts, fieldSep)
	out := make([]byte, 0, len(line)+1)
	out = append(out, []byte(line)...)
	out = append(out, '\n')
	return out
}

// Decode attempts to parse a single frame from the head of buf.
//
// If buf does not yet contain a full newline-terminated frame, Decode
// returns (nil, 0, nil): the caller should wait for more bytes. If a full
// frame is present but cannot be parsed, Decode returns (nil, n,
// ErrMalformed) where n is the number of bytes (including the newline)
// that made up the offending frame, so the caller can still account for
// them before closing the connection. On success it returns the decoded
// Message and the number of bytes consumed.
func Decode(buf []byte) (*Message, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, 0, nil
	}
	consumed := idx + 1
	line := string(buf[:idx])
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		return nil, consumed, ErrMalformed
	}

	m := &Message{MRN: InvalidSeqNr}
	haveFrom := false

	for _, tok := range strings.Split(line, fieldSep) {
		switch {
		case strings.HasPrefix(tok, "FROM="):
			m.From = tok[len("FROM="):]
			haveFrom = true
		case strings.HasPrefix(tok, "TO="):
			m.To = tok[len("TO="):]
		case strings.HasPrefix(tok, "MIN="):
			n, err := strconv.ParseUint(tok[len("MIN="):], 10, 32)
			if err != nil {
				return nil, consumed, fmt.Errorf("%w: bad MIN: %v", ErrMalformed, err)
			}
			m.MIN = uint32(n)
		case strings.HasPrefix(tok, "MRN="):
			n, err := strconv.ParseUint(tok[len("MRN="):], 10, 32)
			if err != nil {
				return nil, consumed, fmt.Errorf("%w: bad MRN: %v", ErrMalformed, err)
			}
			m.MRN = uint32(n)
		case strings.HasPrefix(tok, "LOGON="):
			m.IsLogon = true
			m.LogonData = tok[len("LOGON="):]
		case tok == "LOGON":
			m.IsLogon = true
		case strings.HasPrefix(tok, "MSG="):
			seg, err := decodeSegment(tok[len("MSG="):])
			if err != nil {
				return nil, consumed, err
			}
			m.Segments = append(m.Segments, seg)
		default:
			return nil, consumed, fmt.Errorf("%w: unrecognized field %q", ErrMalformed, tok)
		}
	}

	if !haveFrom {
		return nil, consumed, fmt.Errorf("%w: missing FROM=", ErrMalformed)
	}
	if len(m.From) > MaxCallsignLen || len(m.To) > MaxCallsignLen {
		return nil, consumed, fmt.Errorf("%w: callsign too long", ErrMalformed)
	}

	return m, consumed, nil
}

func decodeSegment(s string) (Segment, error) {
	codeStr, argStr := s, ""
	if i := strings.IndexByte(s, ':'); i >= 0 {
		codeStr, argStr = s[:i], s[i+1:]
	}
	n, err := strconv.Atoi(codeStr)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: bad segment type %q: %v", ErrMalformed, codeStr, err)
	}
	var args []string
	if argStr != "" {
		args = strings.Split(argStr, ",")
	}
	return Segment{Type: segCode(n), Args: args}, nil
}

func segCode(n int) catalog.Code { return catalog.Code(n) }

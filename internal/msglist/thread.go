// Package msglist implements the client-side thread engine (spec
// section 4.2): it groups messages into conversational threads,
// assigns MIN/MRN on send, correlates incoming replies by MRN chain,
// and drives each thread's status state machine including reply-timeout
// handling.
package msglist

import (
	"time"

	"github.com/cpdlc/cpdlcd/internal/transport"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

// Status is a thread's current state.
type Status int

const (
	Open Status = iota
	Pending
	Standby
	Accepted
	Rejected
	TimedOut
	Disregard
	ErrorStatus
	Closed
	Failed
	ConnEnded
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Pending:
		return "PENDING"
	case Standby:
		return "STANDBY"
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case TimedOut:
		return "TIMEDOUT"
	case Disregard:
		return "DISREGARD"
	case ErrorStatus:
		return "ERROR"
	case Closed:
		return "CLOSED"
	case Failed:
		return "FAILED"
	case ConnEnded:
		return "CONN_ENDED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal reports whether a status is terminal: the engine must never
// overwrite it via the normal recomputation path.
func (s Status) IsFinal() bool {
	switch s {
	case Closed, Accepted, Rejected, TimedOut, Disregard, Failed, ErrorStatus, ConnEnded:
		return true
	default:
		return false
	}
}

// ThreadID identifies a thread, unique within one engine.
type ThreadID uint64

// NewThread is the sentinel passed to Send to request a new thread
// rather than appending to an existing one.
const NewThread ThreadID = 0

// Bucket is one message within a thread, plus local bookkeeping.
type Bucket struct {
	Msg       *wire.Message
	Token     transport.Token
	Sent      bool // true: we sent it. false: peer sent it.
	Timestamp time.Time
	Hour      int
	Min       int
}

// Thread groups the messages exchanged about one topic.
type Thread struct {
	ID      ThreadID
	Buckets []Bucket
	Status  Status
	Dirty   bool
}

func (t *Thread) head() *Bucket {
	if len(t.Buckets) == 0 {
		return nil
	}
	return &t.Buckets[0]
}

func (t *Thread) tail() *Bucket {
	if len(t.Buckets) == 0 {
		return nil
	}
	return &t.Buckets[len(t.Buckets)-1]
}

// minTimeout returns the smallest non-zero timeout_seconds across every
// segment in every bucket of the thread, or 0 if none carry a timeout.
func (t *Thread) minTimeout(lookup func(seg wire.Segment) (timeoutSeconds int, ok bool)) int {
	best := 0
	for _, b := range t.Buckets {
		for _, seg := range b.Msg.Segments {
			secs, ok := lookup(seg)
			if !ok || secs == 0 {
				continue
			}
			if best == 0 || secs < best {
				best = secs
			}
		}
	}
	return best
}

package msglist

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/catalog"
	"github.com/cpdlc/cpdlcd/internal/transport"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

// recomputeStatusLocked implements the status-recomputation rule (spec
// section 4.2). Callers must hold e.mu.
func (e *Engine) recomputeStatusLocked(t *Thread) {
	if t.Status.IsFinal() {
		return
	}

	h, l := t.head(), t.tail()
	if l == nil {
		t.Status = Open
		return
	}

	timeout := t.minTimeout(catalogLookup)
	lastSeg := catalog.Code(0)
	haveSeg := len(l.Msg.Segments) > 0
	if haveSeg {
		lastSeg = l.Msg.Segments[0].Type
	}
	lastEntry, haveEntry := catalog.Lookup(lastSeg)

	switch {
	case h == l && l.Sent && haveEntry && lastEntry.ResponseClass == catalog.RCNone:
		t.Status = Closed

	case l.Sent && haveSeg && catalog.IsDownlinkRequest(lastSeg):
		switch e.transport.Status(l.Token) {
		case transport.Sending:
			t.Status = Pending
		case transport.SendFailed:
			t.Status = Failed
		default:
			t.Status = Open
		}

	case haveSeg && catalog.IsStandby(lastSeg):
		t.Status = Standby

	case haveSeg && catalog.IsAccept(lastSeg):
		t.Status = Accepted

	case haveSeg && catalog.IsReject(lastSeg):
		t.Status = Rejected

	case haveSeg && catalog.IsRogerOrLinkManagement(lastSeg):
		t.Status = Closed

	case isUplink(l.Msg) && haveEntry && isReplyRequired(lastEntry.ResponseClass) &&
		t.Status != Standby && timeout > 0 &&
		time.Since(l.Timestamp) > time.Duration(timeout)*time.Second:
		e.sendTimeoutErrorLocked(t, l)
		t.Status = TimedOut

	case haveSeg && catalog.IsDisregard(lastSeg):
		t.Status = Disregard

	case haveSeg && catalog.IsErrorSegment(lastSeg):
		t.Status = ErrorStatus

	case e.transport.LogonStatus() == transport.LogonNone:
		t.Dirty = false
		t.Status = ConnEnded

	default:
		t.Status = Open
	}
}

func isUplink(m *wire.Message) bool {
	dir, ok := m.Direction()
	return ok && dir == wire.Uplink
}

func isReplyRequired(rc catalog.ResponseClass) bool {
	switch rc {
	case catalog.RCWU, catalog.RCAN, catalog.RCNE:
		return true
	default:
		return false
	}
}

// sendTimeoutErrorLocked synthesizes the DM62 ERROR("TIMEDOUT") reply to
// an unanswered uplink and sends it through the normal send path, which
// appends its own bucket to t. Callers must hold e.mu.
func (e *Engine) sendTimeoutErrorLocked(t *Thread, l *Bucket) {
	errMsg := &wire.Message{
		From: l.Msg.To,
		To:   l.Msg.From,
		Segments: []wire.Segment{
			{Type: catalog.DM62, Args: []string{"TIMEDOUT"}},
		},
	}
	errMsg.MRN = l.Msg.MIN

	if err := e.sendLocked(t, errMsg); err != nil {
		log.WithFields(log.Fields{
			"thread": t.ID,
			"error":  err,
		}).Warn("msglist: failed to send reply-timeout error")
	}
}

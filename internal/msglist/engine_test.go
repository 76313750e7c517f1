package msglist

import (
	"testing"
	"time"

	"github.com/cpdlc/cpdlcd/internal/catalog"
	"github.com/cpdlc/cpdlcd/internal/transport"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

func fixedTime() (int, int) { return 12, 0 }

func downlinkMsg(code catalog.Code, args ...string) *wire.Message {
	return &wire.Message{
		From:     "B1234",
		To:       "ATC1",
		MRN:      wire.InvalidSeqNr,
		Segments: []wire.Segment{{Type: code, Args: args}},
	}
}

func uplinkMsg(code catalog.Code, args ...string) *wire.Message {
	return &wire.Message{
		From:     "ATC1",
		To:       "B1234",
		MRN:      wire.InvalidSeqNr,
		Segments: []wire.Segment{{Type: code, Args: args}},
	}
}

func TestReplyCorrelation(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	m1 := downlinkMsg(catalog.DMCode(6))
	thrID, err := e.Send(m1, NewThread)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	firstMIN := m1.MIN

	reply := uplinkMsg(catalog.UM4)
	reply.MRN = firstMIN
	reply.MIN = 999
	tr.Deliver(reply)

	ids := e.GetThrIDs(false)
	if len(ids) != 1 || ids[0] != thrID {
		t.Fatalf("expected the uplink to join the existing thread, got ids %v", ids)
	}

	m2 := downlinkMsg(catalog.DMCode(7))
	thrID2, err := e.Send(m2, thrID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if thrID2 != thrID {
		t.Fatalf("expected second send to stay in thread %d, got %d", thrID, thrID2)
	}
	if m2.MRN != reply.MIN {
		t.Fatalf("expected m2.MRN == %d, got %d", reply.MIN, m2.MRN)
	}
	if m2.MIN != firstMIN+1 {
		t.Fatalf("expected MIN to increase monotonically: first=%d second=%d", firstMIN, m2.MIN)
	}
}

func TestTimeoutProducesErrorAndIsIdempotent(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	uplink := uplinkMsg(catalog.UM20) // WU, timeout 60s
	tr.Deliver(uplink)

	ids := e.GetThrIDs(false)
	if len(ids) != 1 {
		t.Fatalf("expected exactly one thread, got %v", ids)
	}
	thrID := ids[0]

	// Force the bucket's timestamp into the past so the timeout fires.
	e.mu.Lock()
	th := e.findByID(thrID)
	th.Buckets[0].Timestamp = time.Now().Add(-61 * time.Second)
	e.mu.Unlock()

	e.Update()

	status, _, err := e.GetThrStatus(thrID)
	if err != nil {
		t.Fatalf("GetThrStatus: %v", err)
	}
	if status != TimedOut {
		t.Fatalf("expected TIMEDOUT, got %v", status)
	}

	count, _ := e.GetThrMsgCount(thrID)
	if count != 2 {
		t.Fatalf("expected the synthesized ERROR to be appended, got %d buckets", count)
	}
	last, _ := e.GetThrMsg(thrID, 1)
	if last.Msg.Segments[0].Type != catalog.DM62 {
		t.Fatalf("expected synthesized DM62 ERROR, got %v", last.Msg.Segments[0].Type)
	}
	if last.Msg.MRN != uplink.MIN {
		t.Fatalf("expected synthesized error's MRN to mirror the uplink's MIN")
	}

	// A second Update must not append another ERROR: TIMEDOUT is final.
	e.Update()
	count2, _ := e.GetThrMsgCount(thrID)
	if count2 != count {
		t.Fatalf("expected no further buckets after reaching TIMEDOUT, got %d (was %d)", count2, count)
	}
}

func TestClosedThreadForcesNewThread(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	m1 := downlinkMsg(catalog.DMCode(6))
	thrID, _ := e.Send(m1, NewThread)

	if err := e.ThrClose(thrID); err != nil {
		t.Fatalf("ThrClose: %v", err)
	}
	status, _, _ := e.GetThrStatus(thrID)
	if status != Closed {
		t.Fatalf("expected CLOSED after ThrClose, got %v", status)
	}

	reply := uplinkMsg(catalog.UM4)
	reply.MRN = m1.MIN
	tr.Deliver(reply)

	ids := e.GetThrIDs(false)
	if len(ids) != 2 {
		t.Fatalf("expected a new thread to be created, got ids %v", ids)
	}
}

func TestFinalStatusNeverOverwritten(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	m1 := downlinkMsg(catalog.DMCode(6))
	thrID, _ := e.Send(m1, NewThread)

	reply := uplinkMsg(catalog.UM0) // UNABLE -> REJECTED (final)
	reply.MRN = m1.MIN
	tr.Deliver(reply)

	status, _, _ := e.GetThrStatus(thrID)
	if status != Rejected {
		t.Fatalf("expected REJECTED, got %v", status)
	}

	e.Update()
	e.Update()

	status2, _, _ := e.GetThrStatus(thrID)
	if status2 != Rejected {
		t.Fatalf("expected status to remain REJECTED after further updates, got %v", status2)
	}
}

func TestMINsAreUniqueAndIncreasing(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	seen := map[uint32]bool{}
	var last uint32
	for i := 0; i < 5; i++ {
		m := downlinkMsg(catalog.DMCode(6 + i%20))
		e.Send(m, NewThread)
		if seen[m.MIN] {
			t.Fatalf("duplicate MIN %d", m.MIN)
		}
		seen[m.MIN] = true
		if i > 0 && m.MIN <= last {
			t.Fatalf("MIN did not increase: %d -> %d", last, m.MIN)
		}
		last = m.MIN
	}
}

func TestBucketOrderContiguous(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	m1 := downlinkMsg(catalog.DMCode(6))
	thrID, _ := e.Send(m1, NewThread)
	reply := uplinkMsg(catalog.UM1) // STANDBY, not final
	reply.MRN = m1.MIN
	tr.Deliver(reply)

	count, _ := e.GetThrMsgCount(thrID)
	if count != 2 {
		t.Fatalf("expected 2 buckets, got %d", count)
	}
	for i := 0; i < count; i++ {
		if _, err := e.GetThrMsg(thrID, i); err != nil {
			t.Fatalf("bucket %d missing: %v", i, err)
		}
	}
}

func TestConnEndedWhenLoggedOff(t *testing.T) {
	tr := transport.NewMemory()
	e := New(tr, fixedTime)

	// An unrecognized code so none of the downlink-request/standby/accept/
	// reject/roger/error branches claim it ahead of the logon check.
	m1 := downlinkMsg(catalog.DMCode(999))
	thrID, _ := e.Send(m1, NewThread)

	tr.SetLogonStatus(transport.LogonNone)
	e.Update()

	status, dirty, _ := e.GetThrStatus(thrID)
	if status != ConnEnded {
		t.Fatalf("expected CONN_ENDED, got %v", status)
	}
	if dirty {
		t.Fatalf("expected dirty cleared on CONN_ENDED")
	}
}

package daemon

import (
	"net"
	"testing"
	"time"

	"github.com/cpdlc/cpdlcd/internal/catalog"
	"github.com/cpdlc/cpdlcd/internal/config"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

func newTestCore(atcNames ...string) *Core {
	cfg := &config.Config{ATCNames: atcNames}
	return NewCore(cfg, nil, nil)
}

// attachConn wires a Connection to one end of an in-memory pipe and
// starts it serving on its own goroutine. The returned net.Conn is the
// test's handle on the other end, standing in for the remote station's
// socket: no TLS handshake occurs because a net.Pipe connection is not a
// *tls.Conn, which serve() treats as already past the handshake step.
func attachConn(core *Core) (*Connection, net.Conn) {
	server, client := net.Pipe()
	sc := newConnection(server, core)

	core.mu.Lock()
	core.conns[sc] = struct{}{}
	core.mu.Unlock()

	core.wg.Add(1)
	go func() {
		defer core.wg.Done()
		defer func() {
			core.mu.Lock()
			delete(core.conns, sc)
			core.mu.Unlock()
		}()
		sc.serve()
	}()
	return sc, client
}

func writeMsg(t *testing.T, conn net.Conn, m *wire.Message) {
	t.Helper()
	if err := conn.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetWriteDeadline: %v", err)
	}
	if _, err := conn.Write(wire.Encode(m)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn net.Conn) *wire.Message {
	t.Helper()
	m, err := tryReadMsg(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// tryReadMsg is readMsg without a *testing.T, for use from goroutines
// other than the test's main one, where calling t.Fatal is unsafe.
func tryReadMsg(conn net.Conn) (*wire.Message, error) {
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	var buf []byte
	chunk := make([]byte, 256)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if m, _, derr := wire.Decode(buf); derr == nil && m != nil {
				return m, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func logon(from, to string) *wire.Message {
	return &wire.Message{IsLogon: true, From: from, To: to, MRN: wire.InvalidSeqNr}
}

func plainMsg(from, to string, code catalog.Code) *wire.Message {
	return &wire.Message{
		From:     from,
		To:       to,
		MRN:      wire.InvalidSeqNr,
		Segments: []wire.Segment{{Type: code}},
	}
}

func waitClosed(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}
}

func TestFanOutDelivery(t *testing.T) {
	core := newTestCore("ATC1")
	defer core.Close()

	a1, a1c := attachConn(core)
	a2, a2c := attachConn(core)
	_, bc := attachConn(core)
	_ = a1
	_ = a2

	writeMsg(t, a1c, logon("ATC1", ""))
	writeMsg(t, a2c, logon("ATC1", ""))
	writeMsg(t, bc, logon("B", "ATC1"))
	time.Sleep(100 * time.Millisecond)

	// The fan-out order between a1 and a2 is not guaranteed, and each
	// writeFrame blocks until its peer reads, so both reads must run
	// concurrently with each other (and with the fan-out itself).
	type result struct {
		msg *wire.Message
		err error
	}
	results := make(chan result, 2)
	go func() { m, err := tryReadMsg(a1c); results <- result{m, err} }()
	go func() { m, err := tryReadMsg(a2c); results <- result{m, err} }()

	writeMsg(t, bc, plainMsg("B", "ATC1", catalog.DMCode(6)))

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		if r.msg.From != "B" || r.msg.Segments[0].Type != catalog.DMCode(6) {
			t.Fatalf("got unexpected message: %+v", r.msg)
		}
	}
}

func TestQueueThenDrain(t *testing.T) {
	core := newTestCore("ATC1")
	defer core.Close()

	_, bc := attachConn(core)
	writeMsg(t, bc, logon("B", "ATC1"))
	time.Sleep(50 * time.Millisecond)

	writeMsg(t, bc, plainMsg("B", "ATC1", catalog.DMCode(6)))
	time.Sleep(50 * time.Millisecond)

	if used := core.QueueBytesUsed(); used == 0 {
		t.Fatalf("expected the message to be queued, got 0 bytes used")
	}

	_, a1c := attachConn(core)
	writeMsg(t, a1c, logon("ATC1", ""))
	time.Sleep(50 * time.Millisecond)

	// drainQueue's delivery write blocks on the pipe until something reads
	// it, so it must run concurrently with the read below.
	go core.drainQueue()

	got := readMsg(t, a1c)
	if got.From != "B" {
		t.Fatalf("expected the drained message to be from B, got %+v", got)
	}
	if used := core.QueueBytesUsed(); used != 0 {
		t.Fatalf("expected queue to be empty after drain, got %d bytes", used)
	}
}

func TestQueueTTLDropsStaleEntries(t *testing.T) {
	core := newTestCore("ATC1")
	core.queue.ttl = time.Millisecond
	defer core.Close()

	if err := core.queue.enqueue("B", "ATC1", []byte("FROM=B/TO=ATC1/MIN=0\n")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	core.drainQueue()

	if used := core.QueueBytesUsed(); used != 0 {
		t.Fatalf("expected the stale entry to be dropped, got %d bytes still queued", used)
	}
}

func TestOversizePreLogonCloses(t *testing.T) {
	core := newTestCore("ATC1")
	defer core.Close()

	c, conn := attachConn(core)

	payload := make([]byte, maxBufSzNoLogon+1)
	for i := range payload {
		payload[i] = 'A'
	}
	if err := conn.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetWriteDeadline: %v", err)
	}
	go conn.Write(payload)

	waitClosed(t, c)
}

func TestLogonReplayRebinds(t *testing.T) {
	core := newTestCore("ATC1")
	defer core.Close()

	c, conn := attachConn(core)

	writeMsg(t, conn, logon("A", ""))
	time.Sleep(50 * time.Millisecond)
	if len(core.registry.lookup("A")) != 1 {
		t.Fatalf("expected connection bound to A")
	}

	writeMsg(t, conn, logon("B", ""))
	time.Sleep(50 * time.Millisecond)

	if len(core.registry.lookup("A")) != 0 {
		t.Fatalf("expected A to be unbound after replay logon")
	}
	if len(core.registry.lookup("B")) != 1 {
		t.Fatalf("expected connection rebound to B")
	}
	if c.From() != "B" {
		t.Fatalf("expected From() == B, got %q", c.From())
	}
}

type fakeOracle struct {
	blocked map[string]bool
	changed bool
}

func (f *fakeOracle) Check(addr net.Addr) bool { return !f.blocked[addr.String()] }
func (f *fakeOracle) Refresh() bool            { c := f.changed; f.changed = false; return c }
func (f *fakeOracle) Close()                   {}

func TestBlocklistSweepClosesBlockedConnection(t *testing.T) {
	core := newTestCore("ATC1")
	oracle := &fakeOracle{blocked: map[string]bool{}}
	core.blocklist = oracle
	defer core.Close()

	c, conn := attachConn(core)
	writeMsg(t, conn, logon("A", ""))
	time.Sleep(50 * time.Millisecond)

	oracle.blocked[c.addr.String()] = true
	oracle.changed = true

	core.sweepBlocklist()

	waitClosed(t, c)
}

func TestMissingToHeaderReturnsError(t *testing.T) {
	core := newTestCore("ATC1")
	defer core.Close()

	_, conn := attachConn(core)
	writeMsg(t, conn, logon("B", ""))
	time.Sleep(50 * time.Millisecond)

	writeMsg(t, conn, plainMsg("B", "", catalog.DMCode(6)))

	got := readMsg(t, conn)
	if got.Segments[0].Type != catalog.DM62 && got.Segments[0].Type != catalog.UM159 {
		t.Fatalf("expected an error segment, got %+v", got)
	}
	if got.Segments[0].Args[0] != "MESSAGE MISSING TO= HEADER" {
		t.Fatalf("unexpected error text: %+v", got.Segments[0].Args)
	}
}

package transport

import (
	"sync"

	"github.com/cpdlc/cpdlcd/internal/wire"
)

// memToken is the Token handed out by Memory.
type memToken struct{ id int }

// Memory is an in-process Transport double used by the thread engine's
// tests and by tools that want to drive the engine without a live TLS
// connection to a daemon. Sent messages are recorded; their status can
// be advanced explicitly by the test, matching the engine's "poll the
// token" design (spec section 9, "Opaque send tokens").
type Memory struct {
	mu      sync.Mutex
	sent    []*wire.Message
	status  map[int]SendStatus
	nextTok int

	logonStatus LogonStatus
	recvCb      func(*wire.Message)
}

// NewMemory returns a Memory transport initially reporting LogonComplete.
func NewMemory() *Memory {
	return &Memory{
		status:      make(map[int]SendStatus),
		logonStatus: LogonComplete,
	}
}

func (m *Memory) Send(msg *wire.Message) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok := memToken{id: m.nextTok}
	m.nextTok++
	m.sent = append(m.sent, msg)
	m.status[tok.id] = Sent
	return tok, nil
}

func (m *Memory) Status(tok Token) SendStatus {
	t, ok := tok.(memToken)
	if !ok {
		return SendFailed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[t.id]
}

// SetStatus lets a test force a particular token into SENDING/SENT/
// SEND_FAILED, to exercise the thread engine's PENDING/FAILED branches.
func (m *Memory) SetStatus(tok Token, status SendStatus) {
	t, ok := tok.(memToken)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[t.id] = status
}

func (m *Memory) Recv() (*wire.Message, bool) { return nil, false }

func (m *Memory) LogonStatus() LogonStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logonStatus
}

// SetLogonStatus lets a test simulate the connection dropping.
func (m *Memory) SetLogonStatus(s LogonStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logonStatus = s
}

func (m *Memory) SetRecvCallback(cb func(*wire.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvCb = cb
}

// Deliver simulates the transport receiving msg from the peer, invoking
// the registered callback the way a real transport's reader goroutine
// would.
func (m *Memory) Deliver(msg *wire.Message) {
	m.mu.Lock()
	cb := m.recvCb
	m.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// Sent returns the messages handed to Send, in send order.
func (m *Memory) Sent() []*wire.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*wire.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

package daemon

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/wire"
)

// State is a connection's position in the lifecycle described in spec
// section 3.2.
type State int

const (
	StateAccepted State = iota
	StateTLSUp
	StateLoggedOn
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateTLSUp:
		return "TLS_UP"
	case StateLoggedOn:
		return "LOGGED_ON"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// maxBufSzNoLogon and maxBufSz are the input byte budgets of spec section
// 6.1: small before logon, larger once a callsign is bound.
const (
	maxBufSzNoLogon = 128
	maxBufSz        = 8192
)

// Connection is one accepted, possibly TLS-wrapped, possibly logged-on
// client socket (spec section 3.2). Reads happen on the single
// per-connection goroutine that runs serve; writes may additionally be
// issued by other connections' goroutines fanning a message out, so all
// writes serialize on writeMu.
type Connection struct {
	conn net.Conn
	core *Core
	addr net.Addr

	mu    sync.Mutex
	state State
	from  string
	to    string

	writeMu sync.Mutex

	inbuf []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(conn net.Conn, core *Core) *Connection {
	return &Connection{
		conn:   conn,
		core:   core,
		addr:   conn.RemoteAddr(),
		state:  StateAccepted,
		closed: make(chan struct{}),
	}
}

func (c *Connection) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// From and To report the connection's currently bound callsigns.
func (c *Connection) From() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.from
}

func (c *Connection) To() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.to
}

// serve drives one connection's lifecycle end to end: TLS handshake,
// pre-logon framing, logon binding, then routed post-logon framing. It
// runs on its own goroutine and returns once the connection is closed.
func (c *Connection) serve() {
	defer c.close()

	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			log.WithFields(log.Fields{
				"addr":  c.addr,
				"error": err,
			}).Debug("daemon: TLS handshake failed")
			return
		}
	}
	c.setState(StateTLSUp)

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.inbuf = append(c.inbuf, buf[:n]...)
			if !c.drainFrames() {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.WithFields(log.Fields{"addr": c.addr}).Debug("daemon: connection closed by peer")
			} else {
				log.WithFields(log.Fields{"addr": c.addr, "error": err}).Debug("daemon: read failed")
			}
			return
		}
	}
}

// drainFrames decodes and dispatches every complete frame currently
// buffered, enforcing the active byte budget. It returns false if the
// connection must be closed.
func (c *Connection) drainFrames() bool {
	for {
		budget := maxBufSzNoLogon
		if c.getState() == StateLoggedOn {
			budget = maxBufSz
		}
		if len(c.inbuf) > budget {
			log.WithFields(log.Fields{
				"addr":   c.addr,
				"budget": budget,
				"have":   len(c.inbuf),
			}).Debug("daemon: input buffer exceeded its budget")
			return false
		}

		if err := wire.Validate(c.inbuf); err != nil {
			log.WithFields(log.Fields{"addr": c.addr, "error": err}).Debug("daemon: non-ASCII byte on the wire")
			return false
		}

		msg, consumed, err := wire.Decode(c.inbuf)
		if err != nil {
			log.WithFields(log.Fields{"addr": c.addr, "error": err}).Debug("daemon: malformed frame")
			return false
		}
		if msg == nil {
			return true // NEEDMORE
		}
		c.inbuf = c.inbuf[consumed:]

		if !c.dispatch(msg) {
			return false
		}
	}
}

// dispatch handles one fully decoded frame per the connection state
// machine (spec section 3.2) and the forwarding algorithm (spec section
// 4.1). It returns false if the connection must be closed.
func (c *Connection) dispatch(msg *wire.Message) bool {
	if c.getState() != StateLoggedOn {
		return c.dispatchPreLogon(msg)
	}

	if msg.IsLogon {
		// Logon replay: rebind silently (spec section 9, "Open question:
		// logon replay"). No acknowledgement is sent to the peer.
		return c.bindFrom(msg)
	}

	c.core.forward(c, msg)
	return true
}

func (c *Connection) dispatchPreLogon(msg *wire.Message) bool {
	if !msg.IsLogon {
		c.writeFrame(wire.NewErrorMessage("", "", msg, "LOGON REQUIRED"))
		return false
	}
	if msg.From == "" {
		c.writeFrame(wire.NewErrorMessage("", "", msg, "LOGON REQUIRES FROM= HEADER"))
		return true // failed logon attempt, connection stays open
	}
	return c.bindFrom(msg)
}

// bindFrom binds (or rebinds) the connection to msg.From/msg.To in the
// core registry and advances it to LOGGED_ON.
func (c *Connection) bindFrom(msg *wire.Message) bool {
	prevFrom := c.From()
	if prevFrom != "" {
		c.core.registry.unbind(prevFrom, c)
	}

	c.mu.Lock()
	c.from = msg.From
	c.to = msg.To
	c.mu.Unlock()

	c.core.registry.bind(msg.From, c)
	c.setState(StateLoggedOn)

	log.WithFields(log.Fields{
		"addr": c.addr,
		"from": msg.From,
		"to":   msg.To,
		"atc":  c.core.registry.isATC(msg.From),
	}).Info("daemon: station logged on")

	return true
}

// writeFrame encodes and writes msg to this connection, serialized
// against concurrent fan-out writers. A nil msg is a no-op, so callers
// may pass the result of a helper that sometimes has nothing to send.
func (c *Connection) writeFrame(msg *wire.Message) {
	if msg == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(wire.Encode(msg)); err != nil {
		log.WithFields(log.Fields{"addr": c.addr, "error": err}).Debug("daemon: write failed")
	}
}

// close tears the connection down exactly once: unbinds it from the
// registry, closes the socket.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		if from := c.From(); from != "" {
			c.core.registry.unbind(from, c)
		}
		_ = c.conn.Close()
		close(c.closed)
		log.WithFields(log.Fields{"addr": c.addr}).Debug("daemon: connection closed")
	})
}

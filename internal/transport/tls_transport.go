package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/wire"
)

// TLSClient is the reference Transport implementation: a single TLS
// connection to the router daemon, mirroring the teacher's per-CLA
// dial-and-stream goroutine pair (cla/mtcp's client write path plus a
// dedicated reader goroutine feeding received messages back to the
// engine).
type TLSClient struct {
	conn net.Conn

	mu     sync.Mutex
	status LogonStatus
	recvCb func(*wire.Message)

	sendMu sync.Mutex

	inbuf []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// tlsToken is the Token returned by TLSClient.Send. This transport
// writes synchronously, so by the time Send returns the token already
// reflects the final status.
type tlsToken struct {
	status SendStatus
}

// DialTLSClient connects to addr, performs the TLS handshake, and sends
// the logon message. The returned client is already reading incoming
// frames on a background goroutine.
func DialTLSClient(addr string, tlsConfig *tls.Config, logon *wire.Message) (*TLSClient, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	c := &TLSClient{
		conn:   conn,
		status: LogonInProgress,
		closed: make(chan struct{}),
	}

	if _, err := conn.Write(wire.Encode(logon)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: send logon: %w", err)
	}

	go c.readLoop()

	c.mu.Lock()
	c.status = LogonComplete
	c.mu.Unlock()

	return c, nil
}

func (c *TLSClient) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.inbuf = append(c.inbuf, buf[:n]...)
			if verr := wire.Validate(c.inbuf); verr != nil {
				log.WithFields(log.Fields{"error": verr}).Warn("transport: non-ASCII byte from daemon, closing")
				c.setLoggedOff()
				return
			}
			for {
				msg, consumed, derr := wire.Decode(c.inbuf)
				if derr != nil {
					log.WithFields(log.Fields{"error": derr}).Warn("transport: malformed frame from daemon, closing")
					c.setLoggedOff()
					return
				}
				if consumed == 0 {
					break
				}
				c.inbuf = c.inbuf[consumed:]

				c.mu.Lock()
				cb := c.recvCb
				c.mu.Unlock()
				if cb != nil {
					cb(msg)
				}
			}
		}
		if err != nil {
			c.setLoggedOff()
			return
		}
	}
}

func (c *TLSClient) setLoggedOff() {
	c.mu.Lock()
	c.status = LogonNone
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		c.conn.Close()
		close(c.closed)
	})
}

// Send writes msg to the daemon connection.
func (c *TLSClient) Send(msg *wire.Message) (Token, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if _, err := c.conn.Write(wire.Encode(msg)); err != nil {
		return tlsToken{status: SendFailed}, err
	}
	return tlsToken{status: Sent}, nil
}

// Status returns the delivery status captured in tok.
func (c *TLSClient) Status(tok Token) SendStatus {
	t, ok := tok.(tlsToken)
	if !ok {
		return SendFailed
	}
	return t.status
}

// Recv is unused by TLSClient; it pushes received messages through the
// registered callback instead. It always reports no message available.
func (c *TLSClient) Recv() (*wire.Message, bool) { return nil, false }

// LogonStatus reports whether the underlying connection is up.
func (c *TLSClient) LogonStatus() LogonStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetRecvCallback registers cb as the receiver of incoming messages.
func (c *TLSClient) SetRecvCallback(cb func(*wire.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvCb = cb
}

// Close terminates the underlying connection.
func (c *TLSClient) Close() {
	c.setLoggedOff()
}

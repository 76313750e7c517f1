// Package transport defines the thin client-transport interface the
// thread engine depends on (spec section 6.4), hiding the TLS connection
// to the router daemon behind Send/Status/Recv.
package transport

import "github.com/cpdlc/cpdlcd/internal/wire"

// SendStatus is the lifecycle state of a previously sent message.
type SendStatus int

const (
	Sending SendStatus = iota
	Sent
	SendFailed
)

func (s SendStatus) String() string {
	switch s {
	case Sending:
		return "SENDING"
	case Sent:
		return "SENT"
	case SendFailed:
		return "SEND_FAILED"
	default:
		return "UNKNOWN"
	}
}

// LogonStatus reports whether the underlying client is logged on to the
// router daemon.
type LogonStatus int

const (
	LogonNone LogonStatus = iota
	LogonInProgress
	LogonComplete
)

// Token is an opaque handle returned by Send, later passed to Status to
// poll delivery progress.
type Token interface{}

// Transport is the collaborator the thread engine drives to move
// messages on and off the wire. Implementations must be safe for
// concurrent use, since Send/Status may be called from application
// goroutines while the registered receive callback fires from a
// transport-owned goroutine.
type Transport interface {
	// Send transmits msg and returns a token for later status queries.
	Send(msg *wire.Message) (Token, error)
	// Status returns the current delivery status of a previously
	// returned token.
	Status(tok Token) SendStatus
	// Recv polls for a received message without blocking. Most callers
	// prefer SetRecvCallback; Recv exists for transports that buffer
	// inbound messages instead of pushing them.
	Recv() (*wire.Message, bool)
	// LogonStatus reports whether the client is currently logged on.
	LogonStatus() LogonStatus
	// SetRecvCallback registers the function invoked for every message
	// received from the peer. Only one callback may be registered at a
	// time; registering a new one replaces the previous.
	SetRecvCallback(cb func(*wire.Message))
}

// Package frame implements the Framed Duplex Channel (spec component A): a
// length-prefixed JSON message channel usable over a raw TLS connection
// (agents) or a WebSocket connection (operators), with a uniform
// send/recv/keepalive surface for the layers built on top of it
// (Component D's host sessions, Component E's operator sessions).
package frame

import (
	"errors"
	"time"
)

// ErrTransportClosed is returned by Send/Recv once the underlying
// connection has failed or been closed, wrapping the I/O error that
// caused it.
var ErrTransportClosed = errors.New("frame: transport closed")

// PingInterval is how often an idle channel emits a keepalive.
const PingInterval = 60 * time.Second

// PongTimeout is how long a channel tolerates silence from its peer
// (including missed keepalives) before treating the connection as dead.
const PongTimeout = 2 * PingInterval

// maxFrameSize guards against a corrupt or hostile length prefix turning
// into an unbounded allocation.
const maxFrameSize = 64 << 20

// Channel is a bidirectional JSON message channel with built-in
// keepalive. Send and Recv may be called from different goroutines, but
// each must only be called from one goroutine at a time.
type Channel interface {
	// Send marshals v as JSON and writes it as a single frame.
	Send(v any) error
	// Recv blocks until the next non-keepalive frame arrives and
	// unmarshals it into v. If v is nil the frame body is discarded.
	Recv(v any) error
	// Close releases the underlying connection and stops keepalives.
	Close() error
	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string
}

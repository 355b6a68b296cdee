// Package relay implements the session relay engine: client registration,
// the control-message state machine, room lifecycle, the datagram forwarding
// path, liveness eviction, and spawn-slot allocation.
package relay

import (
	"net"
	"sync"
	"time"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// Conn wraps a control-channel TCP connection with newline-framed JSON
// writes. A write mutex serializes concurrent sends from the dispatch,
// notification, and operator paths.
type Conn struct {
	raw          net.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection for control-channel use.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for writing.
func NewConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		writeTimeout: writeTimeout,
	}
}

// WriteMessage marshals v and sends it as one newline-terminated frame.
//
// Postcondition: The full frame is written, or a non-nil error is returned.
func (c *Conn) WriteMessage(v any) error {
	frame, err := protocol.EncodeLine(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err = c.raw.Write(frame)
	return err
}

// Raw returns the underlying connection for read-side use by the owner.
func (c *Conn) Raw() net.Conn {
	return c.raw
}

// Close closes the underlying TCP connection. Safe to call more than once;
// the connection may already be half-closed by the peer.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

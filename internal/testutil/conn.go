// Package testutil provides test helpers including an in-memory connection
// for asserting on control-channel writes.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// CaptureConn is an in-memory net.Conn that records everything written to
// it. Reads report EOF immediately; tests drive dispatch directly and
// assert on the captured frames.
type CaptureConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	remote net.Addr
}

// NewCaptureConn creates a CaptureConn with a fixed loopback remote address.
func NewCaptureConn() *CaptureConn {
	return &CaptureConn{
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 52000},
	}
}

// Read reports EOF; CaptureConn is write-capture only.
func (c *CaptureConn) Read([]byte) (int, error) { return 0, io.EOF }

// Write records the data unless the connection has been closed.
func (c *CaptureConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(p)
}

// Close marks the connection closed. Idempotent.
func (c *CaptureConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *CaptureConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LocalAddr returns the fixed loopback address.
func (c *CaptureConn) LocalAddr() net.Addr { return c.remote }

// RemoteAddr returns the fixed loopback address.
func (c *CaptureConn) RemoteAddr() net.Addr { return c.remote }

// SetDeadline is a no-op.
func (c *CaptureConn) SetDeadline(time.Time) error { return nil }

// SetReadDeadline is a no-op.
func (c *CaptureConn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline is a no-op.
func (c *CaptureConn) SetWriteDeadline(time.Time) error { return nil }

// Frames decodes every newline-terminated JSON frame written so far.
func (c *CaptureConn) Frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	raw := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	var frames []map[string]any
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal(line, &frame); err != nil {
			t.Fatalf("undecodable captured frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

// Types returns the type tag of every captured frame, in write order.
func (c *CaptureConn) Types(t *testing.T) []string {
	t.Helper()
	frames := c.Frames(t)
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		tag, _ := f["type"].(string)
		types = append(types, tag)
	}
	return types
}

// Reset discards all captured frames.
func (c *CaptureConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
}

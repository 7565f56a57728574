package frame

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// StreamChannel implements Channel over a raw net.Conn (TLS for agents,
// spec §4.A/§4.D). Frames are a u32-BE length prefix followed by that many
// bytes of UTF-8 JSON. A zero-length frame carries no payload and is used
// purely as a keepalive ping; the receiving side swallows it silently and
// its arrival alone resets the peer's read deadline, so no separate pong
// is required.
type StreamChannel struct {
	conn net.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	stopPing  chan struct{}
}

// NewStream wraps conn as a Channel and starts its keepalive ping loop.
func NewStream(conn net.Conn) *StreamChannel {
	c := &StreamChannel{conn: conn, stopPing: make(chan struct{})}
	go c.pingLoop()
	return c
}

func (c *StreamChannel) pingLoop() {
	t := time.NewTicker(PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.writeFrame(nil); err != nil {
				return
			}
		case <-c.stopPing:
			return
		}
	}
}

func (c *StreamChannel) writeFrame(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := c.conn.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Send implements Channel.
func (c *StreamChannel) Send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("frame: marshal: %w", err)
	}
	return c.writeFrame(body)
}

// Recv implements Channel.
func (c *StreamChannel) Recv(v any) error {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(PongTimeout)); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}

		var hdr [4]byte
		if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 {
			continue // keepalive ping, no payload
		}
		if n > maxFrameSize {
			return fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrTransportClosed, n)
		}

		body := make([]byte, n)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("frame: unmarshal: %w", err)
		}
		return nil
	}
}

// Close implements Channel.
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() { close(c.stopPing) })
	return c.conn.Close()
}

// RemoteAddr implements Channel.
func (c *StreamChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

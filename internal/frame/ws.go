package frame

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSChannel implements Channel over a *websocket.Conn (WSS for operators,
// spec §4.A/§4.E). JSON bodies travel as WebSocket text frames; keepalive
// uses native WS ping/pong control frames instead of a zero-length data
// frame, since the protocol already provides one.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	stopPing  chan struct{}
}

// NewWS wraps conn as a Channel and starts its keepalive ping loop.
func NewWS(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{conn: conn, stopPing: make(chan struct{})}

	conn.SetReadDeadline(time.Now().Add(PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	go c.pingLoop()
	return c
}

func (c *WSChannel) pingLoop() {
	t := time.NewTicker(PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.stopPing:
			return
		}
	}
}

// Send implements Channel.
func (c *WSChannel) Send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("frame: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Recv implements Channel.
func (c *WSChannel) Recv(v any) error {
	for {
		ty, body, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		if ty != websocket.TextMessage {
			continue
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
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() { close(c.stopPing) })
	return c.conn.Close()
}

// RemoteAddr implements Channel.
func (c *WSChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

package operator

import (
	"log/slog"
	"sync"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/frame"
	"github.com/antialize/simple-admin-sub001/internal/proxy"
)

// sendQueueSize bounds how many outstanding Replies a Client can be
// behind before it's dropped as unable to keep up.
const sendQueueSize = 256

// Client is one connected operator, identified by a stable integer
// handle assigned at registration time rather than by pointer identity,
// so it reads sensibly in logs and survives independent of the
// underlying *websocket.Conn's lifetime.
type Client struct {
	ID   uint64
	ch   frame.Channel
	host string
	log  *slog.Logger

	mu     sync.Mutex
	sid    string
	status auth.AuthStatus

	socketsMu sync.Mutex
	sockets   map[string]*proxy.SocketSession

	send chan Reply
	done chan struct{}

	closeOnce sync.Once
}

func newClient(id uint64, ch frame.Channel, host string, log *slog.Logger) *Client {
	return &Client{
		ID:   id,
		ch:   ch,
		host: host,
		log:  log,
		send: make(chan Reply, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *Client) isAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Auth
}

func (c *Client) currentSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

func (c *Client) setStatus(status auth.AuthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.sid = status.Session
}

func (c *Client) clearStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = auth.AuthStatus{}
	c.sid = ""
}

// addSocket registers an active TCP-proxy session under id (spec §4.F
// SocketConnect/Send/Recv), so later SocketSend/SocketClose actions on
// the same connection can find it.
func (c *Client) addSocket(id string, sess *proxy.SocketSession) {
	c.socketsMu.Lock()
	defer c.socketsMu.Unlock()
	if c.sockets == nil {
		c.sockets = make(map[string]*proxy.SocketSession)
	}
	c.sockets[id] = sess
}

func (c *Client) getSocket(id string) *proxy.SocketSession {
	c.socketsMu.Lock()
	defer c.socketsMu.Unlock()
	return c.sockets[id]
}

// removeSocket drops id from the tracked set and returns it, or nil if
// it wasn't present (already closed).
func (c *Client) removeSocket(id string) *proxy.SocketSession {
	c.socketsMu.Lock()
	defer c.socketsMu.Unlock()
	sess, ok := c.sockets[id]
	if !ok {
		return nil
	}
	delete(c.sockets, id)
	return sess
}

// closeAllSockets tears down every proxied connection still open on this
// client, called when the operator connection itself closes.
func (c *Client) closeAllSockets() {
	c.socketsMu.Lock()
	sockets := c.sockets
	c.sockets = nil
	c.socketsMu.Unlock()
	for _, sess := range sockets {
		sess.Close()
	}
}

// enqueue queues r for delivery. A client that can't keep up with its
// send buffer is dropped outright rather than having its oldest queued
// reply evicted to make room: a saturated connection is too far behind
// to trust with partial state (spec §4.E / §8 scenario 6).
func (c *Client) enqueue(r Reply) {
	select {
	case c.send <- r:
		return
	default:
	}
	if c.log != nil {
		c.log.Warn("operator: send queue full, dropping client", "client", c.ID)
	}
	c.Close()
}

func (c *Client) writerLoop() {
	for {
		select {
		case r := <-c.send:
			if err := c.ch.Send(r); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the writer loop, tears down any proxied sockets, and
// closes the underlying channel.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeAllSockets()
	})
	return c.ch.Close()
}

package hostsession

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/events"
	"github.com/antialize/simple-admin-sub001/internal/frame"
	"github.com/antialize/simple-admin-sub001/internal/metrics"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

// authHandshakeTimeout bounds how long a freshly-accepted connection has
// to send its AuthRequest before being dropped.
const authHandshakeTimeout = 10 * time.Second

// Server accepts agent connections (normally over a tls.Listener),
// authenticates them against the host store, and maintains a Registry of
// live HostClients.
type Server struct {
	Registry *Registry

	hosts *store.Store
	bus   *events.Bus
	log   *slog.Logger
}

// NewServer builds a Server backed by the given host store and event bus.
func NewServer(hosts *store.Store, bus *events.Bus, log *slog.Logger) *Server {
	return &Server{
		Registry: NewRegistry(),
		hosts:    hosts,
		bus:      bus,
		log:      log,
	}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("hostsession: accept: %w", err)
		}
		go s.handle(conn)
	}
}

// HandleConn runs the auth handshake and read loop for a single
// already-accepted connection. Serve calls this per accepted connection;
// it's also exported for callers (and tests) that obtain connections
// outside of a net.Listener, e.g. over net.Pipe.
func (s *Server) HandleConn(conn net.Conn) {
	s.handle(conn)
}

func (s *Server) handle(conn net.Conn) {
	ch := frame.NewStream(conn)

	// StreamChannel.Recv resets the read deadline itself, so the handshake
	// bound is enforced by closing the connection when it expires.
	authTimer := time.AfterFunc(authHandshakeTimeout, func() { conn.Close() })
	var req AuthRequest
	err := ch.Recv(&req)
	authTimer.Stop()
	if err != nil {
		s.log.Warn("hostsession: auth read failed", "remote", ch.RemoteAddr(), "err", err)
		ch.Close()
		return
	}

	id, host, err := s.hosts.GetHost(req.Hostname)
	if err != nil {
		s.log.Error("hostsession: host lookup failed", "host", req.Hostname, "err", err)
		ch.Close()
		return
	}
	if host == nil || !verifyHostPassword(*host, req.Password) {
		ch.Send(AuthResponse{OK: false, Message: "invalid host credentials"})
		ch.Close()
		return
	}

	client := newHostClient(id, req.Hostname, ch, s.log)
	s.Registry.put(client)
	metrics.ConnectedHosts.Inc()
	s.log.Info("hostsession: host connected", "host", req.Hostname)

	if err := ch.Send(AuthResponse{OK: true}); err != nil {
		s.Registry.remove(req.Hostname, client)
		metrics.ConnectedHosts.Dec()
		client.Close()
		return
	}

	s.readLoop(client)

	s.Registry.remove(req.Hostname, client)
	metrics.ConnectedHosts.Dec()
	client.Close()
	s.log.Info("hostsession: host disconnected", "host", req.Hostname)
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.EventHostDown, Data: req.Hostname, Timestamp: time.Now()})
	}
}

func (s *Server) readLoop(client *HostClient) {
	for {
		var env Envelope
		if err := client.ch.Recv(&env); err != nil {
			if !errors.Is(err, frame.ErrTransportClosed) {
				s.log.Warn("hostsession: recv error", "host", client.Name, "err", err)
			}
			return
		}
		client.dispatch(env)
	}
}

// verifyHostPassword checks password against the stored host credential:
// a bcrypt hash once /setup has run, or (bootstrap-only, before the
// first successful setup) a constant-time plaintext comparison.
func verifyHostPassword(h store.HostRecord, password string) bool {
	if h.PasswordHash != "" {
		return auth.VerifyPassword(h.PasswordHash, password)
	}
	return len(h.Password) == len(password) && auth.ConstantTimeEqual([]byte(h.Password), []byte(password))
}

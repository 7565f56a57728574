package httpapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/hostsession"
	"github.com/antialize/simple-admin-sub001/internal/proxy"
)

const (
	defaultTerminalCols = 80
	defaultTerminalRows = 24
)

var terminalUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Terminal serves GET /terminal?host=<name>&cols=<n>&rows=<n>&session=<sid>,
// upgrading to a WebSocket and bridging it to an interactive shell job on
// the named agent (spec §4.F). Admin capability is required, derived from
// the session cookie the same way the operator protocol does.
type Terminal struct {
	Auth  *auth.Service
	Hosts *hostsession.Registry
	Log   *slog.Logger
}

func (t *Terminal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hostName := q.Get("host")
	session := q.Get("session")
	cols := atoiOr(q.Get("cols"), defaultTerminalCols)
	rows := atoiOr(q.Get("rows"), defaultTerminalRows)

	status, err := t.Auth.GetAuth(clientIP(r), session)
	if err != nil {
		t.Log.Error("terminal: auth lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !status.Admin {
		http.Error(w, "admin required", http.StatusForbidden)
		return
	}

	client := t.Hosts.Get(hostName)
	if client == nil {
		http.NotFound(w, r)
		return
	}

	conn, err := terminalUpgrader.Upgrade(w, r, nil)
	if err != nil {
		t.Log.Warn("terminal: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	term, err := proxy.StartTerminal(client, cols, rows)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("error: "+err.Error()))
		return
	}
	defer term.Close()

	sessionID := uuid.NewString()
	t.Log.Info("terminal: session started", "host", hostName, "session_id", sessionID)
	defer t.Log.Info("terminal: session ended", "host", hostName, "session_id", sessionID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			wire, ok := term.Recv()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(wire)); err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		kind, payload, err := proxy.DecodeTerminalFrame(string(data))
		if err != nil {
			t.Log.Warn("terminal: bad frame", "host", hostName, "err", err)
			continue
		}
		switch kind {
		case proxy.FrameKindData:
			term.Write(payload)
		case proxy.FrameKindResize:
			var dims struct{ Cols, Rows int }
			if json.Unmarshal(payload, &dims) == nil {
				term.Resize(dims.Cols, dims.Rows)
			}
		}
	}
	<-done
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// clientIP extracts the remote host portion of r.RemoteAddr, matching the
// host argument get_auth expects for non-bearer sessions.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

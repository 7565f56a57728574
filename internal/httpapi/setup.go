// Package httpapi exposes the handful of plain HTTP endpoints that sit
// outside the operator WebSocket protocol (spec §6): host bootstrap
// enrolment (/setup) and the browser terminal bridge (/terminal).
package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/events"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

// setupTokenBytes matches original_source/src/bin/server/setup.rs's
// 18-byte random fill for the post-setup agent password.
const setupTokenBytes = 18

// bootstrapScript is handed back to the host running /setup, configuring
// the agent with the server it should report to and the password it
// should now authenticate with.
const bootstrapScript = `#!/bin/bash
set -e
if which apt; then
  apt install -y wget unzip
fi
echo '{"server_host": "%s", "hostname": "%s"}' > /etc/sadmin.json
echo '{"password": "%s"}' > /etc/sadmin_client_auth.json
chmod 0600 /etc/sadmin_client_auth.json
`

// Setup serves GET /setup?host=<name>&token=<bootstrap password>: it
// checks token against the host's bootstrap password, replaces it with a
// freshly generated one (hashed at rest from here on), and returns an
// enrolment script for the host to run.
type Setup struct {
	Store    *store.Store
	Bus      *events.Bus
	Hostname string // this server's own hostname, embedded in the script
	Log      *slog.Logger
}

func (s *Setup) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	token := r.URL.Query().Get("token")
	if host == "" || token == "" {
		http.Error(w, "host and token are required", http.StatusBadRequest)
		return
	}

	id, rec, err := s.Store.GetHost(host)
	if err != nil {
		s.Log.Error("setup: host lookup failed", "host", host, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil || rec.Password == "" || rec.Password != token {
		s.Log.Warn("setup: invalid host or token", "host", host)
		http.NotFound(w, r)
		return
	}

	newPassword, err := randomToken(setupTokenBytes)
	if err != nil {
		s.Log.Error("setup: generate token failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.Log.Error("setup: hash password failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rec.Password = ""
	rec.PasswordHash = hash
	newID, _, err := s.Store.SaveHost(id, *rec, "setup")
	if err != nil {
		s.Log.Error("setup: save host failed", "host", host, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.Bus != nil {
		s.Bus.Publish(events.Event{
			Type:      events.EventObjectChanged,
			Data:      store.ObjectSummary{ID: newID, Type: store.ObjectTypeHost, Name: host},
			Timestamp: time.Now(),
		})
	}

	s.Log.Info("setup: host enrolled", "host", host)
	w.Header().Set("Content-Type", "text/x-shellscript")
	fmt.Fprintf(w, bootstrapScript, s.Hostname, host, newPassword)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

package proxy

import (
	"encoding/json"
	"fmt"

	"github.com/antialize/simple-admin-sub001/internal/hostsession"
)

// socketRelayScript connects out to a single "host:port" destination
// passed as its one argument and relays stdin/stdout to/from it
// raw. The agent wire protocol (original_source/src/bin/sadmin/
// client_message.rs) has no dedicated socket-proxy job variant the way
// it has a pinned PTY payload for terminals — RunScript is the same
// general-purpose escape hatch used there, reused here for the other
// direction of component F.
const socketRelayScript = `
import socket
import sys
import os
import select

dst = sys.argv[1]
host, _, port = dst.rpartition(':')
sock = socket.create_connection((host, int(port)))
sock.setblocking(False)

flag = os.O_NONBLOCK
import fcntl
f = fcntl.fcntl(0, fcntl.F_GETFL)
fcntl.fcntl(0, fcntl.F_SETFL, f | flag)

while True:
    r, _, _ = select.select([sock, 0], [], [])
    if sock in r:
        try:
            chunk = sock.recv(1024 * 64)
        except BlockingIOError:
            chunk = b''
        if not chunk:
            break
        os.write(1, chunk)
    if 0 in r:
        chunk = os.read(0, 1024 * 64)
        if not chunk:
            break
        sock.sendall(chunk)`

// SocketSession proxies a TCP connection made from the agent's network
// vantage point (SocketConnect/Send/Recv, spec §4.F) — e.g. reaching a
// database that's only reachable from inside the host's network.
type SocketSession struct {
	job    *hostsession.JobHandle
	client *hostsession.HostClient
}

// StartSocket asks host to open a TCP connection to addr via the relay
// script, with both directions carried as binary Data messages.
func StartSocket(host *hostsession.HostClient, addr string) (*SocketSession, error) {
	job, err := host.StartJob(hostsession.Envelope{
		Type:        hostsession.MessageRunScript,
		Name:        "socket-relay.py",
		Interpreter: "/usr/bin/python3",
		Content:     socketRelayScript,
		Args:        []string{addr},
		StdinType:   hostsession.RunScriptStdinBinary,
		StdoutType:  hostsession.RunScriptOutBinary,
		StderrType:  hostsession.RunScriptOutNone,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: socket connect: %w", err)
	}
	job.MarkKillOnClose()
	return &SocketSession{job: job, client: host}, nil
}

// Send writes data to the proxied connection.
func (s *SocketSession) Send(data []byte) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("proxy: encode socket data: %w", err)
	}
	return s.client.SendJob(s.job.ID, hostsession.Envelope{
		Type:   hostsession.MessageData,
		Source: hostsession.DataStdin,
		Data:   raw,
	})
}

// Recv returns the next chunk read from the proxied connection, or
// ok=false once the job has ended.
func (s *SocketSession) Recv() (data []byte, ok bool) {
	for {
		env, ok := s.job.Recv()
		if !ok {
			return nil, false
		}
		switch env.Type {
		case hostsession.MessageData:
			if len(env.Data) > 0 {
				_ = json.Unmarshal(env.Data, &data)
			}
			return data, true
		case hostsession.MessageSuccess, hostsession.MessageFailure:
			return nil, false
		}
	}
}

// Close terminates the proxied connection.
func (s *SocketSession) Close() error {
	return s.job.Close()
}

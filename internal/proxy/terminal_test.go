package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/events"
	"github.com/antialize/simple-admin-sub001/internal/frame"
	"github.com/antialize/simple-admin-sub001/internal/hostsession"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

// fakeAgent wires up a hostsession.Server over net.Pipe and authenticates
// one host, returning the registered HostClient and the agent-side
// frame.Channel to script replies with.
func fakeAgent(t *testing.T, hostname string) (*hostsession.HostClient, frame.Channel) {
	t.Helper()
	bus := events.New()
	st, err := store.Open(filepath.Join(t.TempDir(), "sysadmin.db"), bus)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if _, _, err := st.SaveHost(0, store.HostRecord{Name: hostname, Password: "secret"}, "test"); err != nil {
		t.Fatalf("SaveHost: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := hostsession.NewServer(st, bus, log)

	agentSide, serverSide := net.Pipe()
	t.Cleanup(func() { agentSide.Close() })
	go srv.HandleConn(serverSide)

	agent := frame.NewStream(agentSide)
	agent.Send(hostsession.AuthRequest{Hostname: hostname, Password: "secret"})
	var resp hostsession.AuthResponse
	if err := agent.Recv(&resp); err != nil || !resp.OK {
		t.Fatalf("auth failed: resp=%+v err=%v", resp, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var client *hostsession.HostClient
	for time.Now().Before(deadline) {
		if client = srv.Registry.Get(hostname); client != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if client == nil {
		t.Fatal("host never registered")
	}
	return client, agent
}

func TestTerminalSessionRoundTrip(t *testing.T) {
	client, agent := fakeAgent(t, "web1")

	agentReady := make(chan hostsession.Envelope, 1)
	go func() {
		var env hostsession.Envelope
		if err := agent.Recv(&env); err != nil {
			return
		}
		agentReady <- env
	}()

	sess, err := StartTerminal(client, 80, 24)
	if err != nil {
		t.Fatalf("StartTerminal: %v", err)
	}
	defer sess.Close()

	var jobEnv hostsession.Envelope
	select {
	case jobEnv = <-agentReady:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run_script job")
	}
	if jobEnv.ID != sess.job.ID {
		t.Fatalf("expected job id %d, got %d", sess.job.ID, jobEnv.ID)
	}
	if jobEnv.Type != hostsession.MessageRunScript || jobEnv.Interpreter != "/usr/bin/python3" {
		t.Fatalf("expected a run_script PTY job, got %+v", jobEnv)
	}
	if len(jobEnv.Args) != 2 || jobEnv.Args[0] != "80" || jobEnv.Args[1] != "24" {
		t.Fatalf("expected cols,rows args [80 24], got %+v", jobEnv.Args)
	}

	payload, _ := json.Marshal([]byte("$ "))
	if err := agent.Send(hostsession.Envelope{Type: hostsession.MessageData, ID: jobEnv.ID, Source: hostsession.DataStdout, Data: payload}); err != nil {
		t.Fatalf("agent send: %v", err)
	}

	wire, ok := sess.Recv()
	if !ok {
		t.Fatal("expected a terminal frame")
	}
	kind, data, err := DecodeTerminalFrame(wire)
	if err != nil {
		t.Fatalf("DecodeTerminalFrame: %v", err)
	}
	if kind != FrameKindData || string(data) != "$ " {
		t.Fatalf("unexpected frame: kind=%q data=%q", kind, data)
	}
}

// TestTerminalWriteAndResizeFrameStdin checks that browser input and
// resize requests are packed into the 'd'/'r'-tagged, NUL-terminated
// packets the embedded PTY shell script's stdin parser expects, not sent
// as raw unframed bytes.
func TestTerminalWriteAndResizeFrameStdin(t *testing.T) {
	client, agent := fakeAgent(t, "web1")

	var jobEnv hostsession.Envelope
	jobSeen := make(chan struct{})
	go func() {
		agent.Recv(&jobEnv)
		close(jobSeen)
	}()

	sess, err := StartTerminal(client, 80, 24)
	if err != nil {
		t.Fatalf("StartTerminal: %v", err)
	}
	defer sess.Close()

	select {
	case <-jobSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run_script job")
	}

	stdinSeen := make(chan hostsession.Envelope, 2)
	go func() {
		for i := 0; i < 2; i++ {
			var env hostsession.Envelope
			if err := agent.Recv(&env); err != nil {
				return
			}
			stdinSeen <- env
		}
	}()

	if err := sess.Write([]byte("ls\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sess.Resize(100, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	var writeEnv, resizeEnv hostsession.Envelope
	for i := 0; i < 2; i++ {
		select {
		case env := <-stdinSeen:
			var pkt []byte
			if err := json.Unmarshal(env.Data, &pkt); err != nil {
				t.Fatalf("unmarshal stdin packet: %v", err)
			}
			if len(pkt) == 0 || pkt[len(pkt)-1] != 0 {
				t.Fatalf("expected NUL-terminated packet, got %q", pkt)
			}
			switch pkt[0] {
			case 'd':
				writeEnv = env
				if string(pkt[1:len(pkt)-1]) != "ls\n" {
					t.Fatalf("unexpected write packet body: %q", pkt[1:len(pkt)-1])
				}
			case 'r':
				resizeEnv = env
				if string(pkt[1:len(pkt)-1]) != "40,100" {
					t.Fatalf("expected rows,cols 40,100, got %q", pkt[1:len(pkt)-1])
				}
			default:
				t.Fatalf("unexpected packet tag %q", pkt[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stdin packet")
		}
	}
	if writeEnv.Type != hostsession.MessageData || writeEnv.Source != hostsession.DataStdin {
		t.Fatalf("unexpected write envelope: %+v", writeEnv)
	}
	if resizeEnv.Type != hostsession.MessageData || resizeEnv.Source != hostsession.DataStdin {
		t.Fatalf("unexpected resize envelope: %+v", resizeEnv)
	}
}

package hostsession

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
	"github.com/antialize/simple-admin-sub001/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	bus := events.New()
	st, err := store.Open(filepath.Join(t.TempDir(), "sysadmin.db"), bus)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(st, bus, log), st
}

func TestHandleAuthenticatesAndRegisters(t *testing.T) {
	srv, st := testServer(t)
	if _, _, err := st.SaveHost(0, store.HostRecord{Name: "web1", Password: "secret"}, "test"); err != nil {
		t.Fatalf("SaveHost: %v", err)
	}

	agentSide, serverSide := net.Pipe()
	defer agentSide.Close()
	go srv.handle(serverSide)

	agent := frame.NewStream(agentSide)
	if err := agent.Send(AuthRequest{Hostname: "web1", Password: "secret"}); err != nil {
		t.Fatalf("Send auth: %v", err)
	}
	var resp AuthResponse
	if err := agent.Recv(&resp); err != nil {
		t.Fatalf("Recv auth response: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected successful auth, got %+v", resp)
	}
	if srv.Registry.Get("web1") == nil {
		t.Fatal("expected web1 to be registered after successful auth")
	}
}

func TestHandleRejectsBadPassword(t *testing.T) {
	srv, st := testServer(t)
	if _, _, err := st.SaveHost(0, store.HostRecord{Name: "web1", Password: "secret"}, "test"); err != nil {
		t.Fatalf("SaveHost: %v", err)
	}

	agentSide, serverSide := net.Pipe()
	defer agentSide.Close()
	go srv.handle(serverSide)

	agent := frame.NewStream(agentSide)
	agent.Send(AuthRequest{Hostname: "web1", Password: "wrong"})
	var resp AuthResponse
	if err := agent.Recv(&resp); err != nil {
		t.Fatalf("Recv auth response: %v", err)
	}
	if resp.OK {
		t.Fatal("expected auth to be rejected")
	}
	if srv.Registry.Get("web1") != nil {
		t.Fatal("expected web1 not to be registered after failed auth")
	}
}

func TestJobMultiplexingRoundTrip(t *testing.T) {
	srv, st := testServer(t)
	if _, _, err := st.SaveHost(0, store.HostRecord{Name: "web1", Password: "secret"}, "test"); err != nil {
		t.Fatalf("SaveHost: %v", err)
	}

	agentSide, serverSide := net.Pipe()
	defer agentSide.Close()
	go srv.handle(serverSide)

	agent := frame.NewStream(agentSide)
	agent.Send(AuthRequest{Hostname: "web1", Password: "secret"})
	var resp AuthResponse
	if err := agent.Recv(&resp); err != nil || !resp.OK {
		t.Fatalf("auth failed: resp=%+v err=%v", resp, err)
	}

	client := srv.Registry.Get("web1")
	if client == nil {
		t.Fatal("expected web1 registered")
	}

	replied := make(chan struct{})
	go func() {
		var jobEnv Envelope
		if err := agent.Recv(&jobEnv); err != nil {
			t.Errorf("agent recv job: %v", err)
			return
		}
		if jobEnv.Type != MessageRunInstant || jobEnv.Interpreter != "/bin/sh" {
			t.Errorf("unexpected job envelope: %+v", jobEnv)
		}
		data, _ := json.Marshal("hello")
		agent.Send(Envelope{Type: MessageData, ID: jobEnv.ID, Source: DataStdout, Data: data})
		close(replied)
	}()

	jh, err := client.StartJob(Envelope{
		Type:        MessageRunInstant,
		Name:        "list.sh",
		Interpreter: "/bin/sh",
		Content:     "ls",
		OutputType:  RunInstantOutputText,
	})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if jh.ID < ServerJobIDBase {
		t.Fatalf("expected server job id >= %d, got %d", ServerJobIDBase, jh.ID)
	}

	select {
	case <-replied:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent to receive the job")
	}

	env, ok := jh.Recv()
	if !ok {
		t.Fatal("expected a reply envelope")
	}
	var line string
	if err := json.Unmarshal(env.Data, &line); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if line != "hello" {
		t.Fatalf("unexpected payload: %+v", line)
	}
}

// TestEnvelopeFrameRoundTrip exercises the tagged-union wire codec itself
// (spec §8): marshalling a fully populated RunScript envelope and
// unmarshalling it back must reproduce every field, the way a
// spec-compliant agent parsing client_message.rs's internally tagged enum
// would expect.
func TestEnvelopeFrameRoundTrip(t *testing.T) {
	eof := true
	want := Envelope{
		Type:        MessageRunScript,
		ID:          ServerJobIDBase + 7,
		Name:        "shell.py",
		Interpreter: "/usr/bin/python3",
		Content:     "print('hi')",
		Args:        []string{"80", "24"},
		StdinType:   RunScriptStdinBinary,
		StdoutType:  RunScriptOutBinary,
		StderrType:  RunScriptOutBinary,
		EOF:         &eof,
	}

	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if wire["type"] != "run_script" {
		t.Fatalf("expected flat type discriminant, got %+v", wire["type"])
	}
	if _, nested := wire["data"].(map[string]any); nested {
		t.Fatal("expected fields inlined at the top level, not nested under data")
	}

	var got Envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != want.Type || got.ID != want.ID || got.Name != want.Name ||
		got.Interpreter != want.Interpreter || got.Content != want.Content ||
		got.StdinType != want.StdinType || got.StdoutType != want.StdoutType ||
		got.StderrType != want.StderrType || len(got.Args) != len(want.Args) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if got.EOF == nil || *got.EOF != true {
		t.Fatalf("expected EOF to round-trip as true, got %+v", got.EOF)
	}
}

func TestHostDownPublishedOnDisconnect(t *testing.T) {
	srv, st := testServer(t)
	if _, _, err := st.SaveHost(0, store.HostRecord{Name: "web1", Password: "secret"}, "test"); err != nil {
		t.Fatalf("SaveHost: %v", err)
	}

	evCh, cancel := srv.bus.Subscribe()
	defer cancel()

	agentSide, serverSide := net.Pipe()
	go srv.handle(serverSide)

	agent := frame.NewStream(agentSide)
	agent.Send(AuthRequest{Hostname: "web1", Password: "secret"})
	var resp AuthResponse
	agent.Recv(&resp)

	agentSide.Close() // simulate the agent dropping off

	select {
	case evt := <-evCh:
		if evt.Type != events.EventHostDown {
			t.Fatalf("expected HostDown, got %v", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HostDown event")
	}
}

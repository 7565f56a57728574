package deploy

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
// one host, returning the Orchestrator's dependencies plus the agent-side
// frame.Channel to script job replies with.
func fakeAgent(t *testing.T, hostname string) (*Orchestrator, *store.Store, *events.Bus, frame.Channel) {
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
	if err := agent.Send(hostsession.AuthRequest{Hostname: hostname, Password: "secret"}); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	var resp hostsession.AuthResponse
	if err := agent.Recv(&resp); err != nil || !resp.OK {
		t.Fatalf("auth failed: resp=%+v err=%v", resp, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Registry.Get(hostname) != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Registry.Get(hostname) == nil {
		t.Fatal("host never registered")
	}

	return NewOrchestrator(srv.Registry, st, bus, log), st, bus, agent
}

func recvEnvelope(t *testing.T, agent frame.Channel) hostsession.Envelope {
	t.Helper()
	var env hostsession.Envelope
	done := make(chan error, 1)
	go func() { done <- agent.Recv(&env) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("agent recv: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deploy job envelope")
	}
	return env
}

func TestStartDeploySuccessRecordsHistory(t *testing.T) {
	o, st, bus, agent := fakeAgent(t, "web1")

	sub, cancel := bus.Subscribe()
	defer cancel()

	id, err := o.StartDeploy("web1", "myapp", "ghcr.io/org/myapp@sha256:deadbeef")
	if err != nil {
		t.Fatalf("StartDeploy: %v", err)
	}
	if id != "web1/myapp" {
		t.Fatalf("expected key web1/myapp, got %q", id)
	}

	env := recvEnvelope(t, agent)
	if env.Type != hostsession.MessageDeployService {
		t.Fatalf("expected deploy_service job, got %q", env.Type)
	}
	if env.Description != "myapp" || env.Image != "ghcr.io/org/myapp@sha256:deadbeef" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	logData, _ := json.Marshal("pulling image")
	if err := agent.Send(hostsession.Envelope{Type: hostsession.MessageData, ID: env.ID, Source: hostsession.DataStdout, Data: logData}); err != nil {
		t.Fatalf("send log: %v", err)
	}
	if err := agent.Send(hostsession.Envelope{Type: hostsession.MessageSuccess, ID: env.ID}); err != nil {
		t.Fatalf("send success: %v", err)
	}

	var sawLog, sawEnd bool
	deadline := time.Now().Add(2 * time.Second)
	for !sawEnd && time.Now().Before(deadline) {
		select {
		case evt := <-sub:
			switch evt.Type {
			case events.EventDockerDeployLog:
				sawLog = true
			case events.EventDockerDeployEnd:
				if s, ok := evt.Data.(Status); ok && s.State == StateOk {
					sawEnd = true
				}
			}
		case <-time.After(2 * time.Second):
		}
	}
	if !sawLog {
		t.Error("expected a DockerDeployLog event")
	}
	if !sawEnd {
		t.Fatal("expected a DockerDeployEnd event with state Ok")
	}

	deadline = time.Now().Add(2 * time.Second)
	for o.Status(id) != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	recs, err := st.ListDeployments("web1")
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != "ok" {
		t.Fatalf("expected one ok deployment record, got %+v", recs)
	}
}

func TestStartDeployRejectsConcurrentOnSameHost(t *testing.T) {
	o, _, _, agent := fakeAgent(t, "web1")

	if _, err := o.StartDeploy("web1", "myapp", "nginx:1.25"); err != nil {
		t.Fatalf("first StartDeploy: %v", err)
	}
	// Drain the job envelope so the goroutine is parked in Recv, holding
	// the "active" entry.
	_ = recvEnvelope(t, agent)

	if _, err := o.StartDeploy("web1", "myapp", "nginx:1.26"); err == nil {
		t.Fatal("expected second concurrent deploy on the same host/container to fail")
	}
}

func TestMaybeRollbackReissuesPreviousImage(t *testing.T) {
	o, st, bus, agent := fakeAgent(t, "web1")

	sub, cancel := bus.Subscribe()
	defer cancel()

	// First deploy succeeds, establishing "nginx:1.25" as the last-known-good image.
	if _, err := o.StartDeploy("web1", "myapp", "nginx:1.25"); err != nil {
		t.Fatalf("StartDeploy: %v", err)
	}
	env := recvEnvelope(t, agent)
	agent.Send(hostsession.Envelope{Type: hostsession.MessageSuccess, ID: env.ID})
	drainUntilEnd(t, sub, StateOk)

	deadline := time.Now().Add(2 * time.Second)
	for o.Status("web1/myapp") != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Second deploy fails; expect a rollback job for the prior image.
	if _, err := o.StartDeploy("web1", "myapp", "nginx:1.26"); err != nil {
		t.Fatalf("second StartDeploy: %v", err)
	}
	env = recvEnvelope(t, agent)
	agent.Send(hostsession.Envelope{Type: hostsession.MessageFailure, ID: env.ID, Message: "boom"})
	drainUntilEnd(t, sub, StateFailed)

	// Rollback job should follow, requesting the previous image.
	rollbackEnv := recvEnvelope(t, agent)
	if rollbackEnv.Image != "nginx:1.25" {
		t.Fatalf("expected rollback to nginx:1.25, got %q", rollbackEnv.Image)
	}
	agent.Send(hostsession.Envelope{Type: hostsession.MessageSuccess, ID: rollbackEnv.ID})
	drainUntilEnd(t, sub, StateRolledBack)

	deadline = time.Now().Add(2 * time.Second)
	var recs []store.DeploymentRecord
	for time.Now().Before(deadline) {
		recs, _ = st.ListDeployments("web1")
		if len(recs) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(recs) < 3 {
		t.Fatalf("expected at least 3 deployment records (ok, failed, rolled_back), got %+v", recs)
	}
}

func drainUntilEnd(t *testing.T, sub <-chan events.Event, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case evt := <-sub:
			if evt.Type != events.EventDockerDeployEnd {
				continue
			}
			if s, ok := evt.Data.(Status); ok && s.State == want {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for DockerDeployEnd state=%s", want)
		}
	}
	t.Fatalf("timed out waiting for DockerDeployEnd state=%s", want)
}

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/deploy"
	"github.com/antialize/simple-admin-sub001/internal/events"
)

func TestSubscribeTranslatesHostDown(t *testing.T) {
	bus := events.New()
	sink := &stubNotifier{name: "sink"}
	log := &spyLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Subscribe(ctx, bus, NewMulti(log, sink))

	bus.Publish(events.Event{Type: events.EventHostDown, Data: "web1", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 translated event, got %d", len(sink.sent))
	}
	if sink.sent[0].Type != EventHostDown || sink.sent[0].Host != "web1" {
		t.Errorf("unexpected event: %+v", sink.sent[0])
	}
}

func TestSubscribeTranslatesDeployEnd(t *testing.T) {
	bus := events.New()
	sink := &stubNotifier{name: "sink"}
	log := &spyLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Subscribe(ctx, bus, NewMulti(log, sink))

	bus.Publish(events.Event{Type: events.EventDockerDeployEnd, Data: deploy.Status{
		Host: "web1", Container: "myapp", Image: "nginx:1.26", State: deploy.StateRolledBack,
	}, Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 translated event, got %d", len(sink.sent))
	}
	if sink.sent[0].Type != EventDeployRolledBack || sink.sent[0].Container != "myapp" {
		t.Errorf("unexpected event: %+v", sink.sent[0])
	}
}

func TestSubscribeIgnoresUnrelatedEvents(t *testing.T) {
	bus := events.New()
	sink := &stubNotifier{name: "sink"}
	log := &spyLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Subscribe(ctx, bus, NewMulti(log, sink))

	bus.Publish(events.Event{Type: events.EventObjectChanged, Data: "whatever", Timestamp: time.Now()})
	bus.Publish(events.Event{Type: events.EventHostDown, Data: "web2", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly 1 translated event (ObjectChanged should be skipped), got %d", len(sink.sent))
	}
}

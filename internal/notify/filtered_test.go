package notify

import (
	"context"
	"testing"
)

func TestFilteredNotifierAllowsMatchingEvents(t *testing.T) {
	inner := &stubNotifier{name: "test"}
	f := newFilteredNotifier(inner, []string{"deploy_succeeded", "deploy_failed"})

	// Should be forwarded.
	if err := f.Send(context.Background(), testEvent(EventDeploySucceeded)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 1 {
		t.Fatalf("got %d events, want 1", len(inner.sent))
	}

	// Should also be forwarded.
	if err := f.Send(context.Background(), testEvent(EventDeployFailed)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 2 {
		t.Fatalf("got %d events, want 2", len(inner.sent))
	}
}

func TestFilteredNotifierBlocksNonMatchingEvents(t *testing.T) {
	inner := &stubNotifier{name: "test"}
	f := newFilteredNotifier(inner, []string{"deploy_succeeded"})

	// Should be blocked.
	if err := f.Send(context.Background(), testEvent(EventHostDown)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 0 {
		t.Fatalf("got %d events, want 0 (should be filtered out)", len(inner.sent))
	}
}

func TestFilteredNotifierEmptyFilterAllowsAll(t *testing.T) {
	inner := &stubNotifier{name: "test"}
	f := newFilteredNotifier(inner, []string{})

	// All events should pass through.
	if err := f.Send(context.Background(), testEvent(EventDeploySucceeded)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := f.Send(context.Background(), testEvent(EventHostDown)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := f.Send(context.Background(), testEvent(EventDeployRolledBack)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 3 {
		t.Fatalf("got %d events, want 3 (empty filter should pass all)", len(inner.sent))
	}
}

func TestFilteredNotifierNilFilterAllowsAll(t *testing.T) {
	inner := &stubNotifier{name: "test"}
	f := newFilteredNotifier(inner, nil)

	if err := f.Send(context.Background(), testEvent(EventDeployFailed)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 1 {
		t.Fatalf("got %d events, want 1 (nil filter should pass all)", len(inner.sent))
	}
}

func TestFilteredNotifierPreservesName(t *testing.T) {
	inner := &stubNotifier{name: "webhook"}
	f := newFilteredNotifier(inner, []string{"deploy_succeeded"})

	if f.Name() != "webhook" {
		t.Errorf("Name() = %q, want %q", f.Name(), "webhook")
	}
}

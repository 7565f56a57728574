// Package notify fans out host and deployment lifecycle events (spec
// §4.G/§11) to external channels.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/metrics"
)

// EventType identifies what happened to a host or a deployment.
type EventType string

const (
	EventHostDown         EventType = "host_down"
	EventDeployStarted    EventType = "deploy_started"
	EventDeploySucceeded  EventType = "deploy_succeeded"
	EventDeployFailed     EventType = "deploy_failed"
	EventDeployRolledBack EventType = "deploy_rolled_back"
)

// AllEventTypes returns all event types that can be filtered for notifications.
func AllEventTypes() []EventType {
	return []EventType{
		EventHostDown,
		EventDeployStarted,
		EventDeploySucceeded,
		EventDeployFailed,
		EventDeployRolledBack,
	}
}

// Event represents a notification event.
type Event struct {
	Type      EventType `json:"type"`
	Host      string    `json:"host"`
	Container string    `json:"container,omitempty"`
	Image     string    `json:"image,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends events to an external system.
type Notifier interface {
	Send(ctx context.Context, event Event) error
	Name() string
}

// Logger is a minimal logging interface to avoid importing the logging package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Multi fans out events to multiple notifiers.
// It never returns errors — failures are logged but don't block updates.
type Multi struct {
	mu        sync.RWMutex
	notifiers []Notifier
	log       Logger
}

// NewMulti creates a dispatcher from the given notifiers.
func NewMulti(log Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, log: log}
}

// Notify sends an event to all registered notifiers.
// Returns true if at least one notifier succeeded (or none are configured).
// Errors are logged but never propagated — notifications must not block updates.
func (m *Multi) Notify(ctx context.Context, event Event) bool {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	if len(notifiers) == 0 {
		return true
	}

	anyOK := false
	for _, n := range notifiers {
		if err := n.Send(ctx, event); err != nil {
			metrics.NotificationsSent.WithLabelValues(n.Name(), "error").Inc()
			m.log.Error("notification failed",
				"provider", n.Name(),
				"event", string(event.Type),
				"host", event.Host,
				"error", err.Error(),
			)
		} else {
			metrics.NotificationsSent.WithLabelValues(n.Name(), "ok").Inc()
			anyOK = true
		}
	}
	return anyOK
}

// Reconfigure replaces the notifier chain at runtime.
func (m *Multi) Reconfigure(notifiers ...Notifier) {
	m.mu.Lock()
	m.notifiers = notifiers
	m.mu.Unlock()
}

package notify

import "context"

// LogNotifier records every event through the structured logger instead of
// an external channel. Useful as the always-on default channel alongside
// any configured MQTT/webhook targets.
type LogNotifier struct {
	log Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(log Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Name returns the provider name for logging.
func (l *LogNotifier) Name() string { return "log" }

// Send logs the event and never fails.
func (l *LogNotifier) Send(_ context.Context, event Event) error {
	l.log.Info("notification event",
		"type", string(event.Type),
		"host", event.Host,
		"container", event.Container,
		"image", event.Image,
		"message", event.Message,
	)
	return nil
}

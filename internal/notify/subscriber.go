package notify

import (
	"context"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/deploy"
	"github.com/antialize/simple-admin-sub001/internal/events"
)

// Subscribe attaches dispatcher to bus and translates HostDown and
// DockerDeployEnd events into notify.Events, forwarding each to
// dispatcher.Notify; other bus events, DockerDeployLog included, are
// ignored. It runs until ctx is cancelled.
func Subscribe(ctx context.Context, bus *events.Bus, dispatcher *Multi) {
	ch, cancel := bus.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if n, ok := translate(evt); ok {
					dispatcher.Notify(ctx, n)
				}
			}
		}
	}()
}

func translate(evt events.Event) (Event, bool) {
	switch evt.Type {
	case events.EventHostDown:
		host, _ := evt.Data.(string)
		return Event{Type: EventHostDown, Host: host, Timestamp: stamp(evt.Timestamp)}, true
	case events.EventDockerDeployEnd:
		status, ok := evt.Data.(deploy.Status)
		if !ok {
			return Event{}, false
		}
		return Event{
			Type:      deployEventType(status.State),
			Host:      status.Host,
			Container: status.Container,
			Image:     status.Image,
			Message:   status.Message,
			Timestamp: stamp(evt.Timestamp),
		}, true
	default:
		return Event{}, false
	}
}

func deployEventType(s deploy.State) EventType {
	switch s {
	case deploy.StateOk:
		return EventDeploySucceeded
	case deploy.StateRolledBack:
		return EventDeployRolledBack
	default:
		return EventDeployFailed
	}
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

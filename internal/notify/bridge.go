package notify

import (
	"context"

	"github.com/trainbox/orchestrator/internal/events"
)

// Bridge forwards bus events into the notifier chain until ctx is
// cancelled. Run it in its own goroutine; a slow sink only delays this
// subscriber, never the publishers.
func Bridge(ctx context.Context, bus *events.Bus, multi *Multi) {
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			multi.Notify(ctx, Event{
				Kind:      string(evt.Kind),
				Subject:   evt.Subject,
				Target:    evt.Target,
				Attrs:     evt.Attrs,
				Timestamp: evt.Timestamp,
			})
		case <-ctx.Done():
			return
		}
	}
}

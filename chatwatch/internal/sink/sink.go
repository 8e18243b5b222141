// Package sink defines output backends for chatwatch events.
package sink

import (
	"context"

	"github.com/hazyhaar/widgetwatch/chatwatch/event"
)

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, ev event.Event) error
	Close() error
}

package chatwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/widgetwatch/chatwatch/event"
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/sink"
)

// Sink is the output interface for chatwatch events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink. A nil writer means os.Stdout.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink: fn is called for every event
// with zero serialisation.
func NewCallbackSink(fn func(ctx context.Context, ev event.Event) error) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks listed in the configuration.
func SinksFromConfig(cfgs []SinkConfig, out io.Writer, logger *slog.Logger) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(out))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		default:
			return nil, fmt.Errorf("chatwatch: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return sinks, nil
}

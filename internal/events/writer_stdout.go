package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// StdoutWriter logs events instead of publishing them. Used when no
// kafka brokers are configured.
type StdoutWriter struct{}

func (s *StdoutWriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	zap.S().Named("event_log").Infow(e.Type(),
		"id", e.ID(),
		"topic", topic,
		"task_id", e.Subject(),
		"data", string(e.Data()),
	)
	return nil
}

func (s *StdoutWriter) Close(context.Context) error { return nil }

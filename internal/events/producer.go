package events

import (
	"context"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	JobCreatedKind   string = "road_extractor.events.job.created"
	JobSucceededKind string = "road_extractor.events.job.succeeded"
	JobFailedKind    string = "road_extractor.events.job.failed"
	JobChainedKind   string = "road_extractor.events.job.chained"
	MapPersistedKind string = "road_extractor.events.map.persisted"
	defaultTopic     string = "road_extractor.events"
	defaultSource    string = "road_extractor.orchestrator"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with the buffer.
// Callers never wait on the writer: events are queued and sent in order by
// a single goroutine.
type EventProducer struct {
	buffer           *buffer
	startConsumingCh chan struct{}
	doneCh           chan struct{}
	stoppedCh        chan struct{}
	writer           Writer
	topic            string
	source           string
	bufferSize       int
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		startConsumingCh: make(chan struct{}, 1),
		doneCh:           make(chan struct{}),
		stoppedCh:        make(chan struct{}),
		writer:           w,
		topic:            defaultTopic,
		source:           defaultSource,
		bufferSize:       defaultBufferSize,
	}

	for _, o := range opts {
		o(ep)
	}
	ep.buffer = newBuffer(ep.bufferSize)

	go ep.run()
	return ep
}

// Write queues an event of the given kind. subject is usually the task id.
func (ep *EventProducer) Write(ctx context.Context, kind string, subject string, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	if dropped := ep.buffer.PushBack(message{Kind: kind, Subject: subject, Data: d}); dropped {
		zap.S().Named("event_producer").Warnw("event buffer full, dropped oldest event", "event_kind", kind)
	}

	// wake up the consumer if it is idle
	select {
	case ep.startConsumingCh <- struct{}{}:
	default:
	}

	return nil
}

func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(ep.doneCh)

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		select {
		case <-ep.stoppedCh:
		case <-ctx.Done():
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")

	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)

	for {
		select {
		case <-ep.doneCh:
			return
		default:
		}

		msg, ok := ep.buffer.Pop()
		if !ok {
			select {
			case <-ep.startConsumingCh:
			case <-ep.doneCh:
				return
			}
			continue
		}

		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		e.SetTime(time.Now())
		if msg.Subject != "" {
			e.SetSubject(msg.Subject)
		}
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to send message", "error", err, "event", e)
		}
	}
}

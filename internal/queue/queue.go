package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/openroads/road-extractor/pkg/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"
)

const DefaultMaxAttempts = 3

// TaskQueue dispatches tasks to one stage and reports their state.
type TaskQueue interface {
	Stage() Stage
	Dispatch(ctx context.Context, args Args) (string, error)
	// QueryState returns ErrTaskNotFound when the backend holds nothing for
	// the task, including after the retention window has passed.
	QueryState(ctx context.Context, taskID string) (*TaskState, error)
	Discard(ctx context.Context, taskID string) error
}

// Inserter is the part of a river client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

type Queue struct {
	stage       Stage
	name        string
	maxAttempts int
	inserter    Inserter
	backend     ResultBackend
}

// Make sure we conform to TaskQueue interface
var _ TaskQueue = (*Queue)(nil)

type Option func(q *Queue)

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithQueueName overrides the river queue jobs are inserted into. It
// defaults to the stage name.
func WithQueueName(name string) Option {
	return func(q *Queue) {
		if name != "" {
			q.name = name
		}
	}
}

func New(stage Stage, inserter Inserter, backend ResultBackend, opts ...Option) *Queue {
	q := &Queue{
		stage:       stage,
		name:        string(stage),
		maxAttempts: DefaultMaxAttempts,
		inserter:    inserter,
		backend:     backend,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) Stage() Stage {
	return q.stage
}

func (q *Queue) Name() string {
	return q.name
}

// Dispatch assigns a fresh task id, records it as PENDING and enqueues the job.
func (q *Queue) Dispatch(ctx context.Context, args Args) (string, error) {
	id := uuid.NewString()
	args = args.WithTrackingID(id)

	if err := q.backend.SetState(ctx, id, StatePending); err != nil {
		return "", err
	}

	res, err := q.inserter.Insert(ctx, args, &river.InsertOpts{
		Queue:       q.name,
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		_ = q.backend.Forget(ctx, id)
		return "", fmt.Errorf("inserting %s job: %w", args.Kind(), err)
	}

	metrics.IncreaseTasksDispatched(string(q.stage))
	fields := []any{"task_id", id, "kind", args.Kind(), "queue", q.name}
	if res != nil && res.Job != nil {
		fields = append(fields, "job_id", res.Job.ID)
	}
	zap.S().Named("queue").Infow("task dispatched", fields...)

	return id, nil
}

func (q *Queue) QueryState(ctx context.Context, taskID string) (*TaskState, error) {
	return q.backend.Get(ctx, taskID)
}

func (q *Queue) Discard(ctx context.Context, taskID string) error {
	return q.backend.Forget(ctx, taskID)
}

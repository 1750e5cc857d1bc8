package queue

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

const DefaultStageTimeout = 5 * time.Minute

// StageFunc runs one task and returns its serialized output.
type StageFunc[T Args] func(ctx context.Context, args T) ([]byte, error)

type permanentError struct {
	error
}

func (p *permanentError) Unwrap() error { return p.error }

// Permanent marks err as not worth retrying. The task fails on the first
// attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// TrackedWorker runs a StageFunc as a river worker and mirrors its progress
// into the result backend clients poll.
type TrackedWorker[T Args] struct {
	river.WorkerDefaults[T]
	backend ResultBackend
	run     StageFunc[T]
	timeout time.Duration
}

func NewTrackedWorker[T Args](backend ResultBackend, run StageFunc[T], timeout time.Duration) *TrackedWorker[T] {
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	return &TrackedWorker[T]{backend: backend, run: run, timeout: timeout}
}

func (w *TrackedWorker[T]) Timeout(job *river.Job[T]) time.Duration {
	return w.timeout
}

func (w *TrackedWorker[T]) Work(ctx context.Context, job *river.Job[T]) error {
	id := job.Args.TrackingID()
	log := zap.S().Named("queue").With("task_id", id, "kind", job.Kind, "attempt", job.Attempt)

	if err := w.backend.SetState(ctx, id, StateStarted); err != nil {
		log.Warnw("failed to record task start", "error", err)
	}

	out, err := w.run(ctx, job.Args)
	if err == nil {
		if err := w.backend.SetSuccess(ctx, id, out); err != nil {
			return err
		}
		log.Infow("task succeeded", "result_size", len(out))
		return nil
	}

	permanent := IsPermanent(err)
	if permanent || job.Attempt >= job.MaxAttempts {
		if ferr := w.backend.SetFailure(ctx, id, err.Error()); ferr != nil {
			log.Errorw("failed to record task failure", "error", ferr)
		}
		log.Errorw("task failed", "error", err)
		if permanent {
			return river.JobCancel(err)
		}
		return err
	}

	if rerr := w.backend.SetState(ctx, id, StateRetry); rerr != nil {
		log.Warnw("failed to record task retry", "error", rerr)
	}
	log.Warnw("task will be retried", "error", err)
	return err
}

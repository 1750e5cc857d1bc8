// Package queuetest provides in-memory stand-ins for a stage's broker and
// result backend.
package queuetest

import (
	"context"
	"errors"
	"sync"

	"github.com/openroads/road-extractor/internal/queue"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Backend is an in-memory queue.ResultBackend.
type Backend struct {
	mu     sync.Mutex
	states map[string]*queue.TaskState
	// ForgetErr, when set, is returned by Forget.
	ForgetErr error
}

var _ queue.ResultBackend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{states: map[string]*queue.TaskState{}}
}

func (b *Backend) SetState(_ context.Context, taskID string, state queue.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.states[taskID]
	if !ok {
		ts = &queue.TaskState{}
		b.states[taskID] = ts
	}
	ts.State = state
	return nil
}

func (b *Backend) SetSuccess(_ context.Context, taskID string, result []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[taskID] = &queue.TaskState{State: queue.StateSuccess, Result: result}
	return nil
}

func (b *Backend) SetFailure(_ context.Context, taskID string, msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[taskID] = &queue.TaskState{State: queue.StateFailure, Error: msg}
	return nil
}

func (b *Backend) Get(_ context.Context, taskID string) (*queue.TaskState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.states[taskID]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	cp := *ts
	return &cp, nil
}

func (b *Backend) Forget(_ context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ForgetErr != nil {
		return b.ForgetErr
	}
	delete(b.states, taskID)
	return nil
}

// Expire drops the entry the way a retention window would.
func (b *Backend) Expire(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, taskID)
}

func (b *Backend) Has(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.states[taskID]
	return ok
}

// Inserter records inserted jobs instead of writing them to postgres.
type Inserter struct {
	mu   sync.Mutex
	Jobs []river.JobArgs
	Opts []*river.InsertOpts
	// Err, when set, is returned by Insert.
	Err error
}

var _ queue.Inserter = (*Inserter)(nil)

func (i *Inserter) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Err != nil {
		return nil, i.Err
	}
	i.Jobs = append(i.Jobs, args)
	i.Opts = append(i.Opts, opts)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(len(i.Jobs)), Kind: args.Kind()}}, nil
}

// Queue is a queue.Queue wired to an in-memory broker and backend.
type Queue struct {
	*queue.Queue
	Backend  *Backend
	Inserter *Inserter
}

func New(stage queue.Stage) *Queue {
	b := NewBackend()
	i := &Inserter{}
	return &Queue{
		Queue:    queue.New(stage, i, b),
		Backend:  b,
		Inserter: i,
	}
}

// LastArgs returns the payload of the most recent dispatch.
func (q *Queue) LastArgs() (queue.Args, error) {
	q.Inserter.mu.Lock()
	defer q.Inserter.mu.Unlock()
	if len(q.Inserter.Jobs) == 0 {
		return nil, errors.New("nothing dispatched")
	}
	args, ok := q.Inserter.Jobs[len(q.Inserter.Jobs)-1].(queue.Args)
	if !ok {
		return nil, errors.New("dispatched job does not carry a task id")
	}
	return args, nil
}

func (q *Queue) Dispatched() int {
	q.Inserter.mu.Lock()
	defer q.Inserter.mu.Unlock()
	return len(q.Inserter.Jobs)
}

func (q *Queue) SetState(taskID string, state queue.State) {
	_ = q.Backend.SetState(context.Background(), taskID, state)
}

func (q *Queue) SetSuccess(taskID string, result []byte) {
	_ = q.Backend.SetSuccess(context.Background(), taskID, result)
}

func (q *Queue) SetFailure(taskID string, msg string) {
	_ = q.Backend.SetFailure(context.Background(), taskID, msg)
}

func (q *Queue) Expire(taskID string) {
	q.Backend.Expire(taskID)
}

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultBackend is the short-lived store of task state and output. Entries
// expire after the retention window and must never be treated as durable.
type ResultBackend interface {
	SetState(ctx context.Context, taskID string, state State) error
	SetSuccess(ctx context.Context, taskID string, result []byte) error
	SetFailure(ctx context.Context, taskID string, msg string) error
	Get(ctx context.Context, taskID string) (*TaskState, error)
	Forget(ctx context.Context, taskID string) error
}

type RedisBackend struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// Make sure we conform to ResultBackend interface
var _ ResultBackend = (*RedisBackend)(nil)

func NewRedisClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// NewRedisBackend keeps the entries of one stage under keys prefixed with
// the stage name.
func NewRedisBackend(client *redis.Client, stage Stage, retention time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: string(stage), retention: retention}
}

func (r *RedisBackend) stateKey(id string) string  { return r.prefix + ":task:state:" + id }
func (r *RedisBackend) resultKey(id string) string { return r.prefix + ":task:result:" + id }
func (r *RedisBackend) errorKey(id string) string  { return r.prefix + ":task:error:" + id }

func (r *RedisBackend) SetState(ctx context.Context, taskID string, state State) error {
	if err := r.client.Set(ctx, r.stateKey(taskID), string(state), r.retention).Err(); err != nil {
		return fmt.Errorf("redis set state for %s: %w", taskID, err)
	}
	return nil
}

func (r *RedisBackend) SetSuccess(ctx context.Context, taskID string, result []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.resultKey(taskID), result, r.retention)
		pipe.Set(ctx, r.stateKey(taskID), string(StateSuccess), r.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set result for %s: %w", taskID, err)
	}
	return nil
}

func (r *RedisBackend) SetFailure(ctx context.Context, taskID string, msg string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.errorKey(taskID), msg, r.retention)
		pipe.Set(ctx, r.stateKey(taskID), string(StateFailure), r.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failure for %s: %w", taskID, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, taskID string) (*TaskState, error) {
	values, err := r.client.MGet(ctx, r.stateKey(taskID), r.resultKey(taskID), r.errorKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state for %s: %w", taskID, err)
	}

	state, ok := values[0].(string)
	if !ok {
		return nil, ErrTaskNotFound
	}

	ts := &TaskState{State: State(state)}
	if result, ok := values[1].(string); ok {
		ts.Result = []byte(result)
	}
	if msg, ok := values[2].(string); ok {
		ts.Error = msg
	}
	return ts, nil
}

func (r *RedisBackend) Forget(ctx context.Context, taskID string) error {
	if err := r.client.Del(ctx, r.stateKey(taskID), r.resultKey(taskID), r.errorKey(taskID)).Err(); err != nil {
		return fmt.Errorf("redis forget %s: %w", taskID, err)
	}
	return nil
}

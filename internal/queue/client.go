package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

type Client struct {
	*river.Client[pgx.Tx]
}

type clientOptions struct {
	queues  map[string]river.QueueConfig
	workers *river.Workers
}

type ClientOption func(o *clientOptions)

// WithQueue makes the client work jobs of the named queue.
func WithQueue(name string, maxWorkers int) ClientOption {
	return func(o *clientOptions) {
		o.queues[name] = river.QueueConfig{MaxWorkers: maxWorkers}
	}
}

func WithWorkers(workers *river.Workers) ClientOption {
	return func(o *clientOptions) {
		o.workers = workers
	}
}

// NewClient builds a river client. Without queues it can only insert jobs,
// which is what the API server needs.
func NewClient(pool *pgxpool.Pool, opts ...ClientOption) (*Client, error) {
	o := &clientOptions{queues: map[string]river.QueueConfig{}}
	for _, opt := range opts {
		opt(o)
	}

	cfg := &river.Config{
		FetchCooldown:     50 * time.Millisecond,
		FetchPollInterval: 100 * time.Millisecond,

		// Job rows are not the source of truth for results, keep them briefly.
		CancelledJobRetentionPeriod: 24 * time.Hour,
		CompletedJobRetentionPeriod: time.Hour,
		DiscardedJobRetentionPeriod: 7 * 24 * time.Hour,
	}
	if len(o.queues) > 0 {
		cfg.Queues = o.queues
		cfg.Workers = o.workers
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}
	return &Client{Client: riverClient}, nil
}

// NewPool opens the pgx pool river runs on.
func NewPool(ctx context.Context, host, port, user, password, dbname string) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s", host, user, password, port, dbname)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}

	// LISTEN/NOTIFY holds a connection on top of the working ones
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

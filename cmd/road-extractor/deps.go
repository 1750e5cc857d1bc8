package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openroads/road-extractor/internal/artifact"
	"github.com/openroads/road-extractor/internal/config"
	"github.com/openroads/road-extractor/internal/events"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openStore(cfg *config.Config) (store.Store, *gorm.DB, error) {
	zap.S().Info("Initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	s := store.NewStore(db)

	// sqlite is for local runs, create the schema in place
	if cfg.Database.Type == store.DBTypeSqlite {
		if err := s.InitialMigration(context.Background()); err != nil {
			s.Close()
			return nil, nil, err
		}
	}

	return s, db, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return queue.NewPool(ctx,
		cfg.Database.Hostname,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
	)
}

func newArtifactStore(cfg *config.Config) (*artifact.MinioStore, error) {
	return artifact.NewMinioStore(
		artifact.WithEndpoint(cfg.S3.Endpoint),
		artifact.WithBucket(cfg.S3.Bucket),
		artifact.WithAccessKey(cfg.S3.AccessKey),
		artifact.WithSecretKey(cfg.S3.SecretKey),
		artifact.WithSSL(cfg.S3.UseSSL),
	)
}

// newEventProducer publishes to kafka when brokers are configured and logs
// events otherwise.
func newEventProducer(cfg *config.Config) *events.EventProducer {
	var w events.Writer = &events.StdoutWriter{}
	if len(cfg.Events.Brokers) > 0 {
		w = events.NewKafkaWriter(cfg.Events.Brokers)
		zap.S().Infow("publishing events to kafka", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}
	return events.NewEventProducer(w, events.WithOutputTopic(cfg.Events.Topic))
}

func stageQueue(stage queue.Stage, inserter queue.Inserter, backend queue.ResultBackend, sc config.StageConfig) *queue.Queue {
	return queue.New(stage, inserter, backend,
		queue.WithQueueName(sc.QueueName),
		queue.WithMaxAttempts(sc.MaxAttempts),
	)
}

func stageConfig(cfg *config.Config, stage queue.Stage) config.StageConfig {
	if stage == queue.StagePostprocess {
		return cfg.Queue.Postprocess
	}
	return cfg.Queue.Primary
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}

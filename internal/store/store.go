package store

import (
	"context"

	"github.com/openroads/road-extractor/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	MapResult() MapResult
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db        *gorm.DB
	job       Job
	mapResult MapResult
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:        db,
		job:       NewJobStore(db),
		mapResult: NewMapResultStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) MapResult() MapResult {
	return s.mapResult
}

// InitialMigration creates the ledger tables from the models. Postgres
// deployments run the goose migrations instead.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Job{},
		&model.TaskRelationship{},
		&model.MapResult{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

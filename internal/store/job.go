package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/openroads/road-extractor/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Job is the ledger of dispatched tasks and their parent/child lineage.
type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, taskID string) (*model.Job, error)
	UpdateStatus(ctx context.Context, taskID string, status string, path *string) error
	ListRoots(ctx context.Context, opts *RootJobQueryOptions) (model.RootJobList, error)
	CreateChild(ctx context.Context, parentID string, child model.Job) (*model.Job, error)
	Children(ctx context.Context, parentID string) ([]model.Job, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if err := create(s.getDB(ctx), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, taskID string) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "task_id = ?", taskID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}
	return &job, nil
}

// UpdateStatus sets the status of a job and, when path is not nil, its
// artifact path. Writing the same values twice is not an error.
func (s *JobStore) UpdateStatus(ctx context.Context, taskID string, status string, path *string) error {
	updates := map[string]any{"status": status}
	if path != nil {
		updates["path"] = *path
	}

	result := s.getDB(ctx).Model(&model.Job{}).Where("task_id = ?", taskID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListRoots returns jobs that never appear as a child, most recent first,
// each joined with its children. opts page over roots, so a root and all
// of its children always land on the same page.
func (s *JobStore) ListRoots(ctx context.Context, opts *RootJobQueryOptions) (model.RootJobList, error) {
	db := s.getDB(ctx)
	children := db.Model(&model.TaskRelationship{}).Select("child_task_id")

	roots := db.Table("jobs AS parent").
		Select("parent.task_id").
		Where("parent.task_id NOT IN (?)", children).
		Order("parent.created_at DESC")
	if opts != nil {
		for _, fn := range opts.QueryFn {
			roots = fn(roots)
		}
	}

	tx := db.Table("jobs AS parent").
		Select("parent.task_id, parent.status, parent.created_at, "+
			"child.task_id AS child_id, child.status AS child_status, child.created_at AS child_created_at").
		Joins("LEFT JOIN task_relationships tr ON parent.task_id = tr.parent_task_id").
		Joins("LEFT JOIN jobs child ON tr.child_task_id = child.task_id").
		Where("parent.task_id IN (?)", roots).
		Order("parent.created_at DESC").
		Order("child.created_at")

	var rows model.RootJobList
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing root jobs: %w", err)
	}
	return rows, nil
}

// CreateChild inserts the child job and its relationship to parentID
// atomically.
func (s *JobStore) CreateChild(ctx context.Context, parentID string, child model.Job) (*model.Job, error) {
	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := create(tx, &child); err != nil {
			return err
		}
		rel := model.TaskRelationship{ParentTaskID: parentID, ChildTaskID: child.TaskID}
		if err := tx.Omit(clause.Associations).Create(&rel).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("creating task relationship: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &child, nil
}

func (s *JobStore) Children(ctx context.Context, parentID string) ([]model.Job, error) {
	var jobs []model.Job
	err := s.getDB(ctx).
		Joins("JOIN task_relationships tr ON tr.child_task_id = jobs.task_id").
		Where("tr.parent_task_id = ?", parentID).
		Order("jobs.created_at").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

func create(db *gorm.DB, job *model.Job) error {
	if err := db.Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

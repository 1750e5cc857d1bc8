package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/openroads/road-extractor/internal/store/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MapResult interface {
	Get(ctx context.Context, taskID string) (*model.MapResult, error)
	// CreateIfAbsent stores payload unless a row already exists. It reports
	// whether this call wrote the row.
	CreateIfAbsent(ctx context.Context, taskID string, payload []byte) (bool, error)
	Upsert(ctx context.Context, taskID string, payload []byte) error
}

type MapResultStore struct {
	db *gorm.DB
}

// Make sure we conform to MapResult interface
var _ MapResult = (*MapResultStore)(nil)

func NewMapResultStore(db *gorm.DB) MapResult {
	return &MapResultStore{db: db}
}

func (m *MapResultStore) Get(ctx context.Context, taskID string) (*model.MapResult, error) {
	var result model.MapResult
	if err := m.getDB(ctx).First(&result, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying map result: %w", err)
	}
	return &result, nil
}

func (m *MapResultStore) CreateIfAbsent(ctx context.Context, taskID string, payload []byte) (bool, error) {
	row := model.MapResult{TaskID: taskID, JSONFile: jsonColumn(payload)}
	result := m.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("creating map result: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (m *MapResultStore) Upsert(ctx context.Context, taskID string, payload []byte) error {
	row := model.MapResult{TaskID: taskID, JSONFile: jsonColumn(payload)}
	err := m.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"json_file"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting map result: %w", err)
	}
	return nil
}

// jsonColumn keeps json_file NOT NULL: datatypes.JSON stores an empty value
// as NULL, so an empty payload is kept as the JSON empty string.
func jsonColumn(payload []byte) datatypes.JSON {
	if len(payload) == 0 {
		return datatypes.JSON(`""`)
	}
	return datatypes.JSON(payload)
}

func (m *MapResultStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return m.db.WithContext(ctx)
}

package model

import (
	"gorm.io/datatypes"
)

// MapResult holds the GeoJSON produced for a postprocessing task. The column
// is plain text so out-of-band overrides that are not valid JSON survive.
type MapResult struct {
	TaskID   string         `gorm:"primaryKey;column:task_id;type:VARCHAR(255);"`
	JSONFile datatypes.JSON `gorm:"column:json_file;type:TEXT;not null"`
}

func (MapResult) TableName() string {
	return "map"
}

package model

import (
	"encoding/json"
	"time"

	"github.com/openroads/road-extractor/pkg/georef"
)

// Job status values persisted in the ledger. ERROR is written by the
// orchestrator when the queue reports FAILURE.
const (
	JobStatusPending = "PENDING"
	JobStatusStarted = "STARTED"
	JobStatusRetry   = "RETRY"
	JobStatusSuccess = "SUCCESS"
	JobStatusFailure = "FAILURE"
	JobStatusError   = "ERROR"
)

type Job struct {
	TaskID    string    `gorm:"primaryKey;column:task_id;type:VARCHAR(255);"`
	Status    string    `gorm:"not null;type:VARCHAR(32);"`
	BBox      *string   `gorm:"column:bbox;type:TEXT"`
	Path      *string   `gorm:"column:path;type:TEXT"`
	CreatedAt time.Time `gorm:"not null;index:jobs_created_at_idx"`
}

func (Job) TableName() string {
	return "jobs"
}

// NewPrimaryJob returns a pending job carrying the bbox it was dispatched for.
func NewPrimaryJob(taskID string, bbox georef.BBox) Job {
	raw, _ := json.Marshal(bbox)
	s := string(raw)
	return Job{TaskID: taskID, Status: JobStatusPending, BBox: &s}
}

func NewChildJob(taskID string) Job {
	return Job{TaskID: taskID, Status: JobStatusPending}
}

// GeoBBox decodes the stored bbox. ok is false for postprocessing jobs and
// for rows whose bbox cannot be decoded.
func (j Job) GeoBBox() (bbox georef.BBox, ok bool) {
	if j.BBox == nil {
		return bbox, false
	}
	var values []float64
	if err := json.Unmarshal([]byte(*j.BBox), &values); err != nil {
		return bbox, false
	}
	b, err := georef.NewBBox(values)
	if err != nil {
		return bbox, false
	}
	return b, true
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

type TaskRelationship struct {
	ParentTaskID string `gorm:"primaryKey;column:parent_task_id;type:VARCHAR(255);"`
	ChildTaskID  string `gorm:"primaryKey;column:child_task_id;type:VARCHAR(255);index:task_relationships_child_idx"`
	Parent       Job    `gorm:"foreignKey:ParentTaskID;references:TaskID;constraint:OnDelete:CASCADE;"`
	Child        Job    `gorm:"foreignKey:ChildTaskID;references:TaskID;constraint:OnDelete:CASCADE;"`
}

func (TaskRelationship) TableName() string {
	return "task_relationships"
}

// RootJob is a job that is nobody's child, joined with its child if any.
type RootJob struct {
	TaskID         string     `json:"task_id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ChildID        *string    `json:"child_id"`
	ChildStatus    *string    `json:"child_status"`
	ChildCreatedAt *time.Time `json:"child_created_at"`
}

type RootJobList []RootJob

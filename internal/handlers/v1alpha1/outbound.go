package v1alpha1

import (
	"time"

	"github.com/openroads/road-extractor/internal/store/model"
)

type JobReply struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	BBox      []float64 `json:"bbox,omitempty"`
	Path      *string   `json:"path,omitempty"`
	CreatedAt string    `json:"created_at"`
}

func jobToApi(job *model.Job) JobReply {
	reply := JobReply{
		TaskID:    job.TaskID,
		Status:    job.Status,
		Path:      job.Path,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if bbox, ok := job.GeoBBox(); ok {
		reply.BBox = bbox[:]
	}
	return reply
}

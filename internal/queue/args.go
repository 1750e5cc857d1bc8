package queue

import (
	"encoding/json"

	"github.com/openroads/road-extractor/pkg/georef"
	"github.com/riverqueue/river"
)

const (
	PredictKind     = "model_prediction.predict"
	PostprocessKind = "postprocessing_worker.postprocess"
)

// Args is a river job payload that carries the task id clients poll with.
type Args interface {
	river.JobArgs
	TrackingID() string
	WithTrackingID(id string) Args
}

// PredictArgs asks the primary stage to segment the image at ImageURL.
type PredictArgs struct {
	TaskID   string      `json:"task_id"`
	ImageURL string      `json:"image_url"`
	BBox     georef.BBox `json:"bbox"`
	// Inline returns the mask bytes as the task result instead of a storage key.
	Inline bool `json:"inline,omitempty"`
}

func (PredictArgs) Kind() string { return PredictKind }

func (a PredictArgs) TrackingID() string { return a.TaskID }

func (a PredictArgs) WithTrackingID(id string) Args {
	a.TaskID = id
	return a
}

// PostprocessArgs asks the postprocessing stage to vectorize the mask at MaskURL.
type PostprocessArgs struct {
	TaskID   string          `json:"task_id"`
	MaskURL  string          `json:"mask_url"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (PostprocessArgs) Kind() string { return PostprocessKind }

func (a PostprocessArgs) TrackingID() string { return a.TaskID }

func (a PostprocessArgs) WithTrackingID(id string) Args {
	a.TaskID = id
	return a
}

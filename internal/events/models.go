package events

type JobEvent struct {
	TaskID   string `json:"task_id"`
	ParentID string `json:"parent_id,omitempty"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`
}

type MapEvent struct {
	TaskID string `json:"task_id"`
	// Source is "queue" when the result came from the pipeline and
	// "override" when a caller replaced it.
	Source string `json:"source"`
}

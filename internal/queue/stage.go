package queue

import (
	"errors"
	"fmt"
)

// Stage names one of the two independent task queues.
type Stage string

const (
	StagePrimary     Stage = "primary"
	StagePostprocess Stage = "postprocess"
)

func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StagePrimary, StagePostprocess:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

func (s Stage) String() string {
	return string(s)
}

// State is the lifecycle state a result backend reports for a task.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateRetry   State = "RETRY"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

func (s State) InFlight() bool {
	return s == StatePending || s == StateStarted || s == StateRetry
}

func (s State) String() string {
	return string(s)
}

type TaskState struct {
	State  State
	Result []byte
	Error  string
}

var ErrTaskNotFound = errors.New("task not found")

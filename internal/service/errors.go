package service

import (
	"fmt"
)

type ErrUpstreamUnavailable struct {
	error
}

func NewErrUpstreamUnavailable(err error) *ErrUpstreamUnavailable {
	return &ErrUpstreamUnavailable{fmt.Errorf("imagery metadata unavailable: %w", err)}
}

type ErrNoImagery struct {
	error
}

func NewErrNoImagery(bbox string) *ErrNoImagery {
	return &ErrNoImagery{fmt.Errorf("no imagery found for bbox %s", bbox)}
}

type ErrNoDownloadURL struct {
	error
}

func NewErrNoDownloadURL(imageID string) *ErrNoDownloadURL {
	return &ErrNoDownloadURL{fmt.Errorf("image %q has no accessible picture", imageID)}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrTaskNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "task")
}

func NewErrMapNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "map")
}

// ErrNotReady means the task exists but has not reached the stage the
// operation needs. Callers should retry later.
type ErrNotReady struct {
	error
}

func NewErrNotReady(id string, status string) *ErrNotReady {
	return &ErrNotReady{fmt.Errorf("task %s is not ready: %s", id, status)}
}

type ErrInvalidBBox struct {
	error
}

func NewErrInvalidBBox(values []float64) *ErrInvalidBBox {
	return &ErrInvalidBBox{fmt.Errorf("bbox must be four finite values with west<east and south<north, got %v", values)}
}

type ErrLedgerWrite struct {
	error
}

func NewErrLedgerWrite(id string, err error) *ErrLedgerWrite {
	return &ErrLedgerWrite{fmt.Errorf("failed to record task %s: %w", id, err)}
}

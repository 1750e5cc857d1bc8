package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openroads/road-extractor/internal/artifact"
	"github.com/openroads/road-extractor/internal/events"
	"github.com/openroads/road-extractor/internal/imagery"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/internal/store/model"
	"github.com/openroads/road-extractor/pkg/georef"
	"github.com/openroads/road-extractor/pkg/metrics"
	"go.uber.org/zap"
)

const defaultPresignTTL = time.Hour

// JobService drives the two stage pipeline. The ledger is written only here,
// and only as a result of a caller asking for something.
type JobService struct {
	store       store.Store
	imagery     imagery.Searcher
	artifacts   artifact.Store
	primary     queue.TaskQueue
	postprocess queue.TaskQueue
	eventWriter *events.EventProducer
	presignTTL  time.Duration
}

type JobServiceOption func(s *JobService)

func WithPresignTTL(ttl time.Duration) JobServiceOption {
	return func(s *JobService) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// WithEventWriter enables lifecycle events. Without it nothing is emitted.
func WithEventWriter(ew *events.EventProducer) JobServiceOption {
	return func(s *JobService) {
		s.eventWriter = ew
	}
}

func NewJobService(s store.Store, searcher imagery.Searcher, artifacts artifact.Store, primary, postprocess queue.TaskQueue, opts ...JobServiceOption) *JobService {
	js := &JobService{
		store:       s,
		imagery:     searcher,
		artifacts:   artifacts,
		primary:     primary,
		postprocess: postprocess,
		presignTTL:  defaultPresignTTL,
	}
	for _, o := range opts {
		o(js)
	}
	return js
}

// StatusView is what a poll reports back.
type StatusView struct {
	Status queue.State `json:"status"`
	Error  string      `json:"error,omitempty"`
}

type PersistResult struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// SubmitPrimary looks up imagery covering values and dispatches a prediction
// for it. The returned job is PENDING.
func (s *JobService) SubmitPrimary(ctx context.Context, values []float64) (*model.Job, error) {
	bbox, err := georef.NewBBox(values)
	if err != nil {
		return nil, NewErrInvalidBBox(values)
	}

	result, err := s.searchImagery(ctx, bbox)
	if err != nil {
		return nil, err
	}

	imageURL := result.ImageURL()
	if imageURL == "" {
		return nil, NewErrNoDownloadURL(result.ID)
	}

	// the image footprint wins over the requested area
	target := bbox
	if footprint, ok := result.BBox(); ok {
		target = footprint
	}

	taskID, err := s.primary.Dispatch(ctx, queue.PredictArgs{ImageURL: imageURL, BBox: target})
	if err != nil {
		return nil, fmt.Errorf("dispatching prediction: %w", err)
	}

	job, err := s.store.Job().Create(ctx, model.NewPrimaryJob(taskID, target))
	if err != nil {
		zap.S().Named("job_service").Errorw("failed to record dispatched job", "error", err, "task_id", taskID)
		return nil, NewErrLedgerWrite(taskID, err)
	}

	s.emit(ctx, events.JobCreatedKind, taskID, events.JobEvent{
		TaskID: taskID,
		Stage:  queue.StagePrimary.String(),
		Status: job.Status,
	})
	zap.S().Named("job_service").Infow("primary job submitted", "task_id", taskID, "bbox", target.Query(), "image_id", result.ID)

	return job, nil
}

// PollStatus observes the primary stage, or the postprocessing stage when post is set.
func (s *JobService) PollStatus(ctx context.Context, taskID string, post bool) (*StatusView, error) {
	stage := queue.StagePrimary
	if post {
		stage = queue.StagePostprocess
	}
	return s.ObserveAndPersist(ctx, taskID, stage)
}

// ObserveAndPersist projects the queue state of a task onto the ledger.
// Only SUCCESS and FAILURE are written; in-flight states are returned as is.
// Concurrent callers may both write the terminal state, which is harmless
// since the values are the same.
func (s *JobService) ObserveAndPersist(ctx context.Context, taskID string, stage queue.Stage) (*StatusView, error) {
	q := s.queueFor(stage)

	ts, err := q.QueryState(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, NewErrTaskNotFound(taskID)
		}
		return nil, fmt.Errorf("querying %s task state: %w", stage, err)
	}

	switch ts.State {
	case queue.StateSuccess:
		var path *string
		if stage == queue.StagePrimary {
			p := string(ts.Result)
			path = &p
		}
		changed, err := s.transition(ctx, taskID, stage, model.JobStatusSuccess, path)
		if err != nil {
			return nil, err
		}
		if changed {
			ev := events.JobEvent{TaskID: taskID, Stage: stage.String(), Status: model.JobStatusSuccess}
			if path != nil {
				ev.Path = *path
			}
			s.emit(ctx, events.JobSucceededKind, taskID, ev)
		}
		return &StatusView{Status: queue.StateSuccess}, nil
	case queue.StateFailure:
		changed, err := s.transition(ctx, taskID, stage, model.JobStatusError, nil)
		if err != nil {
			return nil, err
		}
		if changed {
			s.emit(ctx, events.JobFailedKind, taskID, events.JobEvent{
				TaskID: taskID,
				Stage:  stage.String(),
				Status: model.JobStatusError,
				Error:  ts.Error,
			})
		}
		return &StatusView{Status: queue.StateFailure, Error: ts.Error}, nil
	default:
		return &StatusView{Status: ts.State}, nil
	}
}

// transition writes status (and path) to the ledger. changed reports
// whether the row held a different status before.
func (s *JobService) transition(ctx context.Context, taskID string, stage queue.Stage, status string, path *string) (changed bool, err error) {
	logger := zap.S().Named("job_service")

	job, err := s.store.Job().Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, NewErrJobNotFound(taskID)
		}
		logger.Errorw("failed to read job", "error", err, "task_id", taskID)
		return false, NewErrLedgerWrite(taskID, err)
	}

	if err := s.store.Job().UpdateStatus(ctx, taskID, status, path); err != nil {
		// the queue state stays as observed, the caller polls again
		logger.Errorw("failed to write job status", "error", err, "task_id", taskID, "status", status)
		return false, NewErrLedgerWrite(taskID, err)
	}

	if job.Status == status {
		return false, nil
	}

	metrics.IncreaseLedgerTransitions(stage.String(), status)
	logger.Infow("job status changed", "task_id", taskID, "stage", stage, "from", job.Status, "to", status)

	return true, nil
}

// ChainPostprocess dispatches vectorization of the mask produced by a
// successful primary job and records the child. Calling it twice creates
// two children.
func (s *JobService) ChainPostprocess(ctx context.Context, taskID string) (*model.Job, error) {
	logger := zap.S().Named("job_service")

	parent, err := s.store.Job().Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(taskID)
		}
		return nil, err
	}

	if parent.Status != model.JobStatusSuccess || parent.Path == nil {
		return nil, NewErrNotReady(taskID, parent.Status)
	}

	bbox, ok := parent.GeoBBox()
	if !ok {
		// postprocessing jobs have no bbox and cannot be chained again
		return nil, NewErrNotReady(taskID, "no bbox recorded")
	}

	// metadata is fetched again rather than cached with the job
	result, err := s.searchImagery(ctx, bbox)
	if err != nil {
		return nil, err
	}

	maskURL, err := s.artifacts.PresignGet(ctx, *parent.Path, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presigning mask %s: %w", *parent.Path, err)
	}

	childID, err := s.postprocess.Dispatch(ctx, queue.PostprocessArgs{
		MaskURL:  maskURL.String(),
		Metadata: result.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatching postprocessing: %w", err)
	}

	child, err := s.recordChild(ctx, taskID, childID)
	if err != nil {
		logger.Errorw("failed to record child job", "error", err, "task_id", taskID, "child_id", childID)
		return nil, NewErrLedgerWrite(childID, err)
	}

	_ = s.discard(ctx, s.primary, taskID)

	s.emit(ctx, events.JobChainedKind, childID, events.JobEvent{
		TaskID:   childID,
		ParentID: taskID,
		Stage:    queue.StagePostprocess.String(),
		Status:   child.Status,
	})
	logger.Infow("postprocessing chained", "task_id", taskID, "child_id", childID)

	return child, nil
}

// recordChild writes the child job and its relationship in one ledger
// transaction.
func (s *JobService) recordChild(ctx context.Context, parentID, childID string) (*model.Job, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := s.store.Job().Children(ctx, parentID)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}
	if len(previous) > 0 {
		zap.S().Named("job_service").Warnw("parent already chained", "task_id", parentID, "children", len(previous))
	}

	child, err := s.store.Job().CreateChild(ctx, parentID, model.NewChildJob(childID))
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

func (s *JobService) ListRootJobs(ctx context.Context, opts *store.RootJobQueryOptions) (model.RootJobList, error) {
	return s.store.Job().ListRoots(ctx, opts)
}

// GetMapResult returns the GeoJSON of a postprocessing task. The stored copy
// is preferred; otherwise a finished queue result is stored first.
func (s *JobService) GetMapResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	logger := zap.S().Named("job_service")

	stored, err := s.store.MapResult().Get(ctx, taskID)
	if err == nil {
		return asJSON(stored.JSONFile), nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	ts, err := s.postprocess.QueryState(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, NewErrMapNotFound(taskID)
		}
		return nil, fmt.Errorf("querying postprocess task state: %w", err)
	}

	switch {
	case ts.State == queue.StateSuccess:
	case ts.State.InFlight():
		return nil, NewErrNotReady(taskID, ts.State.String())
	default:
		return nil, NewErrMapNotFound(taskID)
	}

	created, err := s.store.MapResult().CreateIfAbsent(ctx, taskID, ts.Result)
	if err != nil {
		// keep the queue copy so a later call can try again
		logger.Errorw("failed to persist map", "error", err, "task_id", taskID)
		return asJSON(ts.Result), nil
	}

	_ = s.discard(ctx, s.postprocess, taskID)

	if !created {
		// someone else stored it first
		winner, err := s.store.MapResult().Get(ctx, taskID)
		if err == nil {
			return asJSON(winner.JSONFile), nil
		}
		return asJSON(ts.Result), nil
	}

	s.emit(ctx, events.MapPersistedKind, taskID, events.MapEvent{TaskID: taskID, Source: "queue"})
	logger.Infow("map persisted", "task_id", taskID)

	return asJSON(ts.Result), nil
}

// PersistMap replaces the stored GeoJSON of taskID with payload.
func (s *JobService) PersistMap(ctx context.Context, taskID string, payload json.RawMessage) (*PersistResult, error) {
	if err := s.store.MapResult().Upsert(ctx, taskID, payload); err != nil {
		zap.S().Named("job_service").Errorw("failed to override map", "error", err, "task_id", taskID)
		return nil, NewErrLedgerWrite(taskID, err)
	}

	s.emit(ctx, events.MapPersistedKind, taskID, events.MapEvent{TaskID: taskID, Source: "override"})

	return &PersistResult{Status: "success", TaskID: taskID}, nil
}

func (s *JobService) searchImagery(ctx context.Context, bbox georef.BBox) (*imagery.Result, error) {
	result, err := s.imagery.Search(ctx, bbox)
	if err != nil {
		if errors.Is(err, imagery.ErrNoResults) {
			return nil, NewErrNoImagery(bbox.Query())
		}
		zap.S().Named("job_service").Warnw("imagery lookup failed", "error", err, "bbox", bbox.Query())
		return nil, NewErrUpstreamUnavailable(err)
	}
	return result, nil
}

func (s *JobService) queueFor(stage queue.Stage) queue.TaskQueue {
	if stage == queue.StagePostprocess {
		return s.postprocess
	}
	return s.primary
}

// discard drops the ephemeral queue result of taskID. A failure is logged
// and counted; callers ignore it.
func (s *JobService) discard(ctx context.Context, q queue.TaskQueue, taskID string) error {
	if err := q.Discard(ctx, taskID); err != nil {
		metrics.IncreaseCleanupFailures(q.Stage().String())
		zap.S().Named("job_service").Warnw("failed to discard queue result", "error", err, "task_id", taskID, "stage", q.Stage())
		return err
	}
	return nil
}

func (s *JobService) emit(ctx context.Context, kind string, subject string, payload any) {
	if s.eventWriter == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if err := s.eventWriter.Write(ctx, kind, subject, bytes.NewReader(data)); err != nil {
		zap.S().Named("job_service").Errorw("failed to write event", "error", err, "event_kind", kind)
	}
}

// asJSON returns raw when it is valid JSON and raw as a JSON string otherwise.
func asJSON(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

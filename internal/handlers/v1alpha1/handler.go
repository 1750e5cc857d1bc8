package v1alpha1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/openroads/road-extractor/internal/service"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/internal/store/model"
	"go.uber.org/zap"
)

// JobService is the part of the orchestrator exposed over HTTP.
type JobService interface {
	SubmitPrimary(ctx context.Context, bbox []float64) (*model.Job, error)
	PollStatus(ctx context.Context, taskID string, post bool) (*service.StatusView, error)
	ChainPostprocess(ctx context.Context, taskID string) (*model.Job, error)
	ListRootJobs(ctx context.Context, opts *store.RootJobQueryOptions) (model.RootJobList, error)
	GetMapResult(ctx context.Context, taskID string) (json.RawMessage, error)
	PersistMap(ctx context.Context, taskID string, payload json.RawMessage) (*service.PersistResult, error)
}

var _ JobService = (*service.JobService)(nil)

type ServiceHandler struct {
	jobSrv JobService
}

func NewServiceHandler(jobService JobService) *ServiceHandler {
	return &ServiceHandler{jobSrv: jobService}
}

func RegisterRoutes(router chi.Router, h *ServiceHandler) {
	router.Get("/health", h.Health)
	router.Post("/predict-by-coord", h.PredictByCoord)
	router.Put("/status/{task_id}", h.GetStatus)
	router.Post("/vec-by-task/{task_id}", h.VecByTask)
	router.Get("/tasks", h.ListTasks)
	router.Get("/maps/{task_id}", h.GetMap)
	router.Post("/load-map-db/{task_id}", h.LoadMap)
}

type ErrorReply struct {
	Message string `json:"message"`
}

type HealthReply struct {
	Status string `json:"status"`
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthReply{Status: "ok"})
}

// renderError picks the status code from the error type.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch err.(type) {
	case *service.ErrUpstreamUnavailable:
		status = http.StatusBadGateway
	case *service.ErrNoImagery, *service.ErrResourceNotFound:
		status = http.StatusNotFound
	case *service.ErrNoDownloadURL, *service.ErrInvalidBBox:
		status = http.StatusBadRequest
	case *service.ErrNotReady:
		status = http.StatusAccepted
	default:
		zap.S().Named("handler").Errorw("request failed", "error", err, "path", r.URL.Path)
	}

	renderMessage(w, r, status, err.Error())
}

func renderMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorReply{Message: message})
}

package v1alpha1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/openroads/road-extractor/internal/handlers/validator"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/internal/store/model"
)

const maxMapBodySize = 32 << 20

type predictForm struct {
	BBox []float64 `validate:"bbox"`
}

type taskForm struct {
	TaskID string `validate:"required,task_id"`
}

type listForm struct {
	Status string `validate:"omitempty,job_status"`
	Limit  int    `validate:"gte=0,lte=1000"`
	Offset int    `validate:"gte=0"`
}

// (POST /predict-by-coord?bbox=w&bbox=s&bbox=e&bbox=n)
func (h *ServiceHandler) PredictByCoord(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBox(r.URL.Query()["bbox"])
	if err != nil {
		renderMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.NewValidator(validator.NewPredictValidationRules()...)
	if err := v.Struct(predictForm{BBox: bbox}); err != nil {
		renderMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid bbox %v: expected west,south,east,north", bbox))
		return
	}

	job, err := h.jobSrv.SubmitPrimary(r.Context(), bbox)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, jobToApi(job))
}

// (PUT /status/{task_id}?post=bool)
func (h *ServiceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	post := false
	if raw := r.URL.Query().Get("post"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			renderMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid post flag %q", raw))
			return
		}
		post = parsed
	}

	view, err := h.jobSrv.PollStatus(r.Context(), taskID, post)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, view)
}

// (POST /vec-by-task/{task_id})
func (h *ServiceHandler) VecByTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	child, err := h.jobSrv.ChainPostprocess(r.Context(), taskID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, jobToApi(child))
}

// (GET /tasks)
func (h *ServiceHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	form := listForm{Status: q.Get("status")}

	for name, dst := range map[string]*int{"limit": &form.Limit, "offset": &form.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			renderMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
			return
		}
		*dst = n
	}

	v := validator.NewValidator(validator.NewTaskValidationRules()...)
	if err := v.Struct(form); err != nil {
		renderMessage(w, r, http.StatusBadRequest, err.Error())
		return
	}

	opts := store.NewRootJobQueryOptions()
	if form.Limit > 0 {
		opts = opts.WithLimit(form.Limit)
	}
	if form.Offset > 0 {
		opts = opts.WithOffset(form.Offset)
	}
	if form.Status != "" {
		opts = opts.WithStatus(form.Status)
	}

	jobs, err := h.jobSrv.ListRootJobs(r.Context(), opts)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if jobs == nil {
		jobs = model.RootJobList{}
	}
	render.JSON(w, r, jobs)
}

// (GET /maps/{task_id})
func (h *ServiceHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	payload, err := h.jobSrv.GetMapResult(r.Context(), taskID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, payload)
}

// (POST /load-map-db/{task_id})
func (h *ServiceHandler) LoadMap(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMapBodySize))
	if err != nil {
		renderMessage(w, r, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		renderMessage(w, r, http.StatusBadRequest, "body must be a JSON document")
		return
	}

	res, err := h.jobSrv.PersistMap(r.Context(), taskID, json.RawMessage(body))
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, res)
}

func taskIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	taskID := chi.URLParam(r, "task_id")

	v := validator.NewValidator(validator.NewTaskValidationRules()...)
	if err := v.Struct(taskForm{TaskID: taskID}); err != nil {
		renderMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid task id %q", taskID))
		return "", false
	}

	return taskID, true
}

// parseBBox accepts repeated values (bbox=1&bbox=2...) or one comma separated value.
func parseBBox(values []string) ([]float64, error) {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}

	bbox := make([]float64, 0, len(values))
	for _, raw := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox value %q", raw)
		}
		bbox = append(bbox, v)
	}
	return bbox, nil
}

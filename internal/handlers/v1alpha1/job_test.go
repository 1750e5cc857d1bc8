package v1alpha1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	handlers "github.com/openroads/road-extractor/internal/handlers/v1alpha1"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/service"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/internal/store/model"
	"github.com/openroads/road-extractor/pkg/georef"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeJobService struct {
	err error

	bbox     []float64
	taskID   string
	post     bool
	opts     *store.RootJobQueryOptions
	payload  json.RawMessage
	roots    model.RootJobList
	mapValue json.RawMessage
	view     *service.StatusView
}

func (f *fakeJobService) SubmitPrimary(_ context.Context, bbox []float64) (*model.Job, error) {
	f.bbox = bbox
	if f.err != nil {
		return nil, f.err
	}
	b, _ := georef.NewBBox(bbox)
	job := model.NewPrimaryJob("task-1", b)
	job.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &job, nil
}

func (f *fakeJobService) PollStatus(_ context.Context, taskID string, post bool) (*service.StatusView, error) {
	f.taskID, f.post = taskID, post
	if f.err != nil {
		return nil, f.err
	}
	return f.view, nil
}

func (f *fakeJobService) ChainPostprocess(_ context.Context, taskID string) (*model.Job, error) {
	f.taskID = taskID
	if f.err != nil {
		return nil, f.err
	}
	job := model.NewChildJob("child-1")
	return &job, nil
}

func (f *fakeJobService) ListRootJobs(_ context.Context, opts *store.RootJobQueryOptions) (model.RootJobList, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.roots, nil
}

func (f *fakeJobService) GetMapResult(_ context.Context, taskID string) (json.RawMessage, error) {
	f.taskID = taskID
	if f.err != nil {
		return nil, f.err
	}
	return f.mapValue, nil
}

func (f *fakeJobService) PersistMap(_ context.Context, taskID string, payload json.RawMessage) (*service.PersistResult, error) {
	f.taskID, f.payload = taskID, payload
	if f.err != nil {
		return nil, f.err
	}
	return &service.PersistResult{Status: "success", TaskID: taskID}, nil
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var _ = Describe("job handlers", func() {
	var (
		fake   *fakeJobService
		router *chi.Mux
	)

	BeforeEach(func() {
		fake = &fakeJobService{}
		router = chi.NewRouter()
		handlers.RegisterRoutes(router, handlers.NewServiceHandler(fake))
	})

	Context("predict by coord", func() {
		It("accepts repeated bbox values", func() {
			rec := do(router, http.MethodPost, "/predict-by-coord?bbox=30.5&bbox=50.4&bbox=30.6&bbox=50.5", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.bbox).To(Equal([]float64{30.5, 50.4, 30.6, 50.5}))

			var reply handlers.JobReply
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.TaskID).To(Equal("task-1"))
			Expect(reply.Status).To(Equal(model.JobStatusPending))
			Expect(reply.BBox).To(Equal([]float64{30.5, 50.4, 30.6, 50.5}))
			Expect(reply.CreatedAt).To(Equal("2024-05-01T10:00:00Z"))
		})

		It("accepts a comma separated bbox", func() {
			rec := do(router, http.MethodPost, "/predict-by-coord?bbox=30.5,50.4,30.6,50.5", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.bbox).To(HaveLen(4))
		})

		It("rejects a bad bbox before calling the service", func() {
			rec := do(router, http.MethodPost, "/predict-by-coord?bbox=30.5&bbox=abc", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			rec = do(router, http.MethodPost, "/predict-by-coord?bbox=30.6,50.4,30.5,50.5", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(fake.bbox).To(BeNil())
		})

		DescribeTable("maps service errors",
			func(err error, code int) {
				fake.err = err
				rec := do(router, http.MethodPost, "/predict-by-coord?bbox=30.5,50.4,30.6,50.5", "")
				Expect(rec.Code).To(Equal(code))

				var reply handlers.ErrorReply
				Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
				Expect(reply.Message).To(Equal(err.Error()))
			},
			Entry("upstream", service.NewErrUpstreamUnavailable(errors.New("timeout")), http.StatusBadGateway),
			Entry("no imagery", service.NewErrNoImagery("30.5,50.4,30.6,50.5"), http.StatusNotFound),
			Entry("no download url", service.NewErrNoDownloadURL("img-1"), http.StatusBadRequest),
			Entry("ledger", service.NewErrLedgerWrite("task-1", errors.New("db down")), http.StatusInternalServerError),
			Entry("unexpected", errors.New("boom"), http.StatusInternalServerError),
		)
	})

	Context("status", func() {
		It("polls the primary stage by default", func() {
			fake.view = &service.StatusView{Status: queue.StateStarted}

			rec := do(router, http.MethodPut, "/status/task-1", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.taskID).To(Equal("task-1"))
			Expect(fake.post).To(BeFalse())
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"STARTED"}`))
		})

		It("polls the postprocessing stage", func() {
			fake.view = &service.StatusView{Status: queue.StateFailure, Error: "download failed"}

			rec := do(router, http.MethodPut, "/status/task-1?post=true", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.post).To(BeTrue())
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"FAILURE","error":"download failed"}`))
		})

		It("rejects a bad post flag", func() {
			rec := do(router, http.MethodPut, "/status/task-1?post=maybe", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown task", func() {
			fake.err = service.NewErrTaskNotFound("task-1")
			rec := do(router, http.MethodPut, "/status/task-1", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("vectorize", func() {
		It("returns the child job", func() {
			rec := do(router, http.MethodPost, "/vec-by-task/task-1", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.taskID).To(Equal("task-1"))

			var reply handlers.JobReply
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.TaskID).To(Equal("child-1"))
			Expect(reply.BBox).To(BeNil())
		})

		It("signals a job that is not ready", func() {
			fake.err = service.NewErrNotReady("task-1", model.JobStatusPending)
			rec := do(router, http.MethodPost, "/vec-by-task/task-1", "")
			Expect(rec.Code).To(Equal(http.StatusAccepted))
		})

		It("rejects a malformed task id", func() {
			rec := do(router, http.MethodPost, "/vec-by-task/..bad", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("tasks", func() {
		It("returns an empty list", func() {
			rec := do(router, http.MethodGet, "/tasks", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`[]`))
			Expect(fake.opts.QueryFn).To(BeEmpty())
		})

		It("returns roots with their children", func() {
			child, childStatus := "child-1", model.JobStatusPending
			fake.roots = model.RootJobList{
				{TaskID: "task-1", Status: model.JobStatusSuccess, ChildID: &child, ChildStatus: &childStatus},
				{TaskID: "task-2", Status: model.JobStatusPending},
			}

			rec := do(router, http.MethodGet, "/tasks?limit=10&offset=5&status=SUCCESS", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.opts.QueryFn).To(HaveLen(3))

			var rows []map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &rows)).To(Succeed())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0]["child_id"]).To(Equal("child-1"))
			Expect(rows[1]["child_id"]).To(BeNil())
		})

		It("rejects bad filters", func() {
			Expect(do(router, http.MethodGet, "/tasks?limit=x", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do(router, http.MethodGet, "/tasks?limit=-1", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do(router, http.MethodGet, "/tasks?status=DONE", "").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("maps", func() {
		It("returns the stored geojson as is", func() {
			fake.mapValue = json.RawMessage(`{"type":"FeatureCollection","features":[]}`)

			rec := do(router, http.MethodGet, "/maps/child-1", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"type":"FeatureCollection","features":[]}`))
		})

		It("returns 202 while processing", func() {
			fake.err = service.NewErrNotReady("child-1", "STARTED")
			rec := do(router, http.MethodGet, "/maps/child-1", "")
			Expect(rec.Code).To(Equal(http.StatusAccepted))
		})

		It("returns 404 when there is nothing", func() {
			fake.err = service.NewErrMapNotFound("child-1")
			rec := do(router, http.MethodGet, "/maps/child-1", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("load map", func() {
		It("stores the posted document", func() {
			rec := do(router, http.MethodPost, "/load-map-db/child-1", `{"type":"FeatureCollection","features":[]}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(fake.taskID).To(Equal("child-1"))
			Expect(string(fake.payload)).To(MatchJSON(`{"type":"FeatureCollection","features":[]}`))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"success","task_id":"child-1"}`))
		})

		It("rejects a body that is not JSON", func() {
			rec := do(router, http.MethodPost, "/load-map-db/child-1", `{"type":`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(fake.payload).To(BeNil())

			rec = do(router, http.MethodPost, "/load-map-db/child-1", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("reports health", func() {
		rec := do(router, http.MethodGet, "/health", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok"}`))
	})
})

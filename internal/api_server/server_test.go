package apiserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	apiserver "github.com/openroads/road-extractor/internal/api_server"
	"github.com/openroads/road-extractor/internal/config"
	"github.com/openroads/road-extractor/internal/service"
	"github.com/openroads/road-extractor/internal/store"
	"github.com/openroads/road-extractor/internal/store/model"
	"github.com/openroads/road-extractor/pkg/metrics"
	"github.com/openroads/road-extractor/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type emptyJobService struct{}

func (emptyJobService) SubmitPrimary(context.Context, []float64) (*model.Job, error) {
	return nil, service.NewErrNoImagery("0,0,1,1")
}

func (emptyJobService) PollStatus(context.Context, string, bool) (*service.StatusView, error) {
	return nil, service.NewErrTaskNotFound("x")
}

func (emptyJobService) ChainPostprocess(context.Context, string) (*model.Job, error) {
	return nil, service.NewErrJobNotFound("x")
}

func (emptyJobService) ListRootJobs(context.Context, *store.RootJobQueryOptions) (model.RootJobList, error) {
	return model.RootJobList{}, nil
}

func (emptyJobService) GetMapResult(context.Context, string) (json.RawMessage, error) {
	return nil, service.NewErrMapNotFound("x")
}

func (emptyJobService) PersistMap(_ context.Context, taskID string, _ json.RawMessage) (*service.PersistResult, error) {
	return &service.PersistResult{Status: "success", TaskID: taskID}, nil
}

var _ = Describe("router", func() {
	var router http.Handler

	BeforeEach(func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())
		router = apiserver.NewRouter(cfg, emptyJobService{}, metrics.NewMiddleware("test"))
	})

	It("accepts trailing slashes", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("application/json"))
		Expect(rec.Body.String()).To(MatchJSON(`[]`))
	})

	It("echoes the request id", func() {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestid.Header, "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get(requestid.Header)).To(Equal("req-42"))
	})

	It("answers cors preflight for any origin", func() {
		req := httptest.NewRequest(http.MethodOptions, "/predict-by-coord", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("maps service errors", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict-by-coord?bbox=0,0,1,1", nil))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})

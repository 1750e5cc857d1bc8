package imagery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/openroads/road-extractor/internal/imagery"
	"github.com/openroads/road-extractor/pkg/georef"
	"github.com/openroads/road-extractor/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const oneResult = `{
  "meta": {"found": 1},
  "results": [{
    "_id": "img-1",
    "bbox": [30.49, 50.39, 30.61, 50.51],
    "geojson": {"type": "Polygon", "bbox": [30.49, 50.39, 30.61, 50.51]},
    "properties": {
      "thumbnail": "https://tiles.example.com/img-1/thumb.png",
      "download": "https://tiles.example.com/img-1/full.tif",
      "provider": "OpenAerialMap",
      "dimensions": [1024, 768]
    }
  }]
}`

var _ = Describe("imagery client", func() {
	var (
		ctx  context.Context
		bbox = georef.BBox{30.5, 50.4, 30.6, 50.5}
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("queries the meta endpoint with the bbox", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodGet))
			Expect(r.URL.Path).To(Equal("/meta"))
			Expect(r.URL.Query().Get("bbox")).To(Equal("30.5,50.4,30.6,50.5"))
			Expect(r.Header.Get(requestid.Header)).To(Equal("req-1"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(oneResult))
		}))
		defer server.Close()

		c := imagery.NewClient(server.URL, 0)
		res, err := c.Search(requestid.ToContext(ctx, "req-1"), bbox)
		Expect(err).To(BeNil())
		Expect(res.ID).To(Equal("img-1"))
		Expect(res.Provider).To(Equal("OpenAerialMap"))
		Expect(res.ImageURL()).To(Equal("https://tiles.example.com/img-1/thumb.png"))

		footprint, ok := res.BBox()
		Expect(ok).To(BeTrue())
		Expect(footprint).To(Equal(georef.BBox{30.49, 50.39, 30.61, 50.51}))
		Expect(string(res.Raw)).To(ContainSubstring(`"dimensions": [1024, 768]`))
	})

	It("falls back to the download url", func() {
		res, err := imagery.ParseResult([]byte(`{"properties": {"download": "https://x/full.tif"}}`))
		Expect(err).To(BeNil())
		Expect(res.ImageURL()).To(Equal("https://x/full.tif"))
		_, ok := res.BBox()
		Expect(ok).To(BeFalse())
	})

	It("reports an empty image url", func() {
		res, err := imagery.ParseResult([]byte(`{"properties": {}}`))
		Expect(err).To(BeNil())
		Expect(res.ImageURL()).To(BeEmpty())
	})

	It("returns ErrNoResults when nothing matches", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"meta": {"found": 0}, "results": []}`))
		}))
		defer server.Close()

		_, err := imagery.NewClient(server.URL, 0).Search(ctx, bbox)
		Expect(err).To(MatchError(imagery.ErrNoResults))
	})

	It("returns an upstream error on a non 200 status", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		}))
		defer server.Close()

		_, err := imagery.NewClient(server.URL, 0).Search(ctx, bbox)
		var upstream *imagery.UpstreamError
		Expect(errors.As(err, &upstream)).To(BeTrue())
		Expect(upstream.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(err.Error()).To(ContainSubstring("maintenance"))
	})

	It("returns an upstream error when the service is unreachable", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := imagery.NewClient(url, 0).Search(ctx, bbox)
		var upstream *imagery.UpstreamError
		Expect(errors.As(err, &upstream)).To(BeTrue())
		Expect(upstream.StatusCode).To(Equal(0))
	})

	It("returns an upstream error on malformed json", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := imagery.NewClient(server.URL, 0).Search(ctx, bbox)
		var upstream *imagery.UpstreamError
		Expect(errors.As(err, &upstream)).To(BeTrue())
	})
})

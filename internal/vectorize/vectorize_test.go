package vectorize_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openroads/road-extractor/internal/mask"
	"github.com/openroads/road-extractor/internal/vectorize"
	"github.com/openroads/road-extractor/pkg/georef"
)

var kyiv = georef.BBox{30.5, 50.4, 30.6, 50.5}

func horizontalLine(width, height, row, from, to int) *mask.Mask {
	m := mask.New(width, height)
	for col := from; col <= to; col++ {
		m.Set(row, col, 0.9)
	}
	return m
}

func hasFullBlock(b *mask.Binary) bool {
	for row := 0; row < b.Height-1; row++ {
		for col := 0; col < b.Width-1; col++ {
			if b.At(row, col) && b.At(row+1, col) && b.At(row, col+1) && b.At(row+1, col+1) {
				return true
			}
		}
	}
	return false
}

func meta(width, height int) *vectorize.Metadata {
	m := &vectorize.Metadata{ID: "img-1", BBox: kyiv[:]}
	m.Properties.Dimensions = []float64{float64(width), float64(height)}
	m.Properties.Provider = "OpenAerialMap"
	return m
}

var _ = Describe("skeletonize", func() {
	It("leaves a one pixel line untouched", func() {
		b := horizontalLine(20, 20, 10, 2, 17).Threshold(vectorize.ForegroundThreshold)
		skel := vectorize.Skeletonize(b)
		Expect(skel.Pix).To(Equal(b.Pix))
	})

	It("thins a thick bar to a one pixel centerline", func() {
		m := mask.New(20, 20)
		for row := 9; row <= 11; row++ {
			for col := 2; col <= 17; col++ {
				m.Set(row, col, 1)
			}
		}
		b := m.Threshold(vectorize.ForegroundThreshold)
		skel := vectorize.Skeletonize(b)

		Expect(skel.Count()).To(BeNumerically(">", 0))
		Expect(skel.Count()).To(BeNumerically("<", b.Count()))
		Expect(hasFullBlock(skel)).To(BeFalse())
		Expect(b.Count()).To(Equal(48))
	})

	It("keeps an empty raster empty", func() {
		skel := vectorize.Skeletonize(mask.New(8, 8).Threshold(vectorize.ForegroundThreshold))
		Expect(skel.Count()).To(BeZero())
	})
})

var _ = Describe("graph", func() {
	It("builds one edge for a straight line", func() {
		b := horizontalLine(20, 20, 10, 2, 17).Threshold(vectorize.ForegroundThreshold)
		g := vectorize.BuildGraph(b)

		Expect(g.Nodes).To(HaveLen(2))
		Expect(g.Edges).To(HaveLen(1))
		Expect(g.Edges[0].Path).To(HaveLen(16))
	})

	It("splits a T junction into three edges", func() {
		m := horizontalLine(21, 21, 10, 2, 18)
		for row := 11; row <= 18; row++ {
			m.Set(row, 10, 1)
		}
		g := vectorize.BuildGraph(m.Threshold(vectorize.ForegroundThreshold))

		Expect(g.Nodes).To(HaveLen(4))
		Expect(g.Edges).To(HaveLen(3))
		for _, e := range g.Edges {
			Expect(e.From).ToNot(Equal(e.To))
		}
	})

	It("anchors a closed ring on a self edge", func() {
		// octagon, so no pixel has a third neighbour across a corner
		m := mask.New(12, 12)
		for i := 3; i <= 7; i++ {
			m.Set(2, i, 1)
			m.Set(8, i, 1)
			m.Set(i, 2, 1)
			m.Set(i, 8, 1)
		}
		g := vectorize.BuildGraph(m.Threshold(vectorize.ForegroundThreshold))

		Expect(g.Nodes).To(HaveLen(1))
		Expect(g.Edges).To(HaveLen(1))
		Expect(g.Edges[0].From).To(Equal(g.Edges[0].To))
		Expect(g.Edges[0].Path).To(HaveLen(21))
	})

	It("replaces edge ends with node centers", func() {
		b := horizontalLine(20, 20, 10, 2, 17).Threshold(vectorize.ForegroundThreshold)
		g := vectorize.BuildGraph(b)
		path := g.Edges[0].Path

		Expect([]orb.Point{path[0], path[len(path)-1]}).To(ConsistOf(
			g.Nodes[0].Center,
			g.Nodes[1].Center,
		))
	})
})

var _ = Describe("vectorize", func() {
	It("returns no features for an all zero mask and keeps the bbox", func() {
		fc := vectorize.Vectorize(mask.New(32, 32), kyiv, 32, 32, meta(32, 32))

		Expect(fc.Features).To(BeEmpty())
		Expect([]float64(fc.BBox)).To(Equal(kyiv[:]))
	})

	It("returns a single simplified LineString for a straight line", func() {
		fc := vectorize.Vectorize(horizontalLine(20, 20, 10, 2, 17), kyiv, 20, 20, meta(20, 20))

		Expect(fc.Features).To(HaveLen(1))
		line, ok := fc.Features[0].Geometry.(orb.LineString)
		Expect(ok).To(BeTrue())
		Expect(len(line)).To(BeNumerically(">=", 2))
		Expect(len(line)).To(BeNumerically("<=", 16))

		lon, lat := georef.PixelToGeo(10, 2, kyiv, 20, 20)
		Expect(line[0][0]).To(BeNumerically("~", lon, 1e-9))
		Expect(line[0][1]).To(BeNumerically("~", lat, 1e-9))
	})

	It("fills properties with defaults", func() {
		fc := vectorize.Vectorize(horizontalLine(20, 20, 10, 2, 17), kyiv, 20, 20, &vectorize.Metadata{})

		Expect(fc.Features).To(HaveLen(1))
		props := fc.Features[0].Properties
		Expect(props["confidence"]).To(Equal(1.0))
		Expect(props["image_id"]).To(Equal("unknown"))
		Expect(props["provider"]).To(Equal("unknown"))
		Expect(fc.ExtraMembers["crs"]).To(HaveKeyWithValue("type", "name"))
	})

	It("simplifies without touching the input", func() {
		path := orb.LineString{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}
		out := vectorize.Simplify(path)

		Expect(out).To(Equal(orb.LineString{{0, 0}, {0, 4}}))
		Expect(path).To(HaveLen(5))
	})

	It("keeps a vertex that doubles back past the end of the path", func() {
		// (10, 0) is on the line through the ends but 6 px past the segment
		path := orb.LineString{{0, 0}, {10, 0}, {4, 0}}
		out := vectorize.Simplify(path)

		Expect(out).To(Equal(orb.LineString{{0, 0}, {10, 0}, {4, 0}}))
	})
})

var _ = Describe("processor", func() {
	var (
		processor *vectorize.Processor
		ctx       context.Context
	)

	BeforeEach(func() {
		processor = vectorize.NewProcessor(0)
		ctx = context.Background()
	})

	encoded := func(m *mask.Mask) []byte {
		buf := &bytes.Buffer{}
		Expect(mask.Encode(buf, m)).To(Succeed())
		return buf.Bytes()
	}

	rawMeta := func(m *vectorize.Metadata) json.RawMessage {
		data, err := json.Marshal(m)
		Expect(err).To(BeNil())
		return data
	}

	decode := func(data []byte) *geojson.FeatureCollection {
		fc, err := geojson.UnmarshalFeatureCollection(data)
		Expect(err).To(BeNil())
		return fc
	}

	It("returns the empty collection without downloading when metadata is missing", func() {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		data, err := processor.Process(ctx, server.URL, nil)
		Expect(err).To(BeNil())
		Expect(decode(data).Features).To(BeEmpty())
		Expect(hits.Load()).To(BeZero())
	})

	It("fails with a download error when the mask is unreachable", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := processor.Process(ctx, server.URL, rawMeta(meta(20, 20)))
		Expect(errors.Is(err, vectorize.ErrDownload)).To(BeTrue())
	})

	It("degrades to the empty collection on a malformed mask", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not a numpy array"))
		}))
		defer server.Close()

		data, err := processor.Process(ctx, server.URL, rawMeta(meta(20, 20)))
		Expect(err).To(BeNil())
		Expect(decode(data).Features).To(BeEmpty())
	})

	It("degrades to the empty collection when the mask header claims a huge raster", func() {
		// header only, the shape alone would need gigabytes
		payload := encoded(&mask.Mask{Width: 50000, Height: 50000})

		data, err := processor.ProcessContent(ctx, payload, rawMeta(meta(20, 20)))
		Expect(err).To(BeNil())
		Expect(decode(data).Features).To(BeEmpty())
	})

	It("degrades to the empty collection when dimensions are missing", func() {
		payload := encoded(horizontalLine(20, 20, 10, 2, 17))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		m := meta(20, 20)
		m.Properties.Dimensions = nil
		data, err := processor.Process(ctx, server.URL, rawMeta(m))
		Expect(err).To(BeNil())
		Expect(decode(data).Features).To(BeEmpty())
	})

	It("prefers the decoded dimensions over declared ones", func() {
		payload := encoded(horizontalLine(20, 20, 10, 2, 17))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		data, err := processor.Process(ctx, server.URL, rawMeta(meta(4000, 3000)))
		Expect(err).To(BeNil())

		fc := decode(data)
		Expect(fc.Features).To(HaveLen(1))
		line := fc.Features[0].Geometry.(orb.LineString)
		lon, lat := georef.PixelToGeo(10, 2, kyiv, 20, 20)
		Expect(line[0][0]).To(BeNumerically("~", lon, 1e-9))
		Expect(line[0][1]).To(BeNumerically("~", lat, 1e-9))
		Expect(fc.Features[0].Properties["provider"]).To(Equal("OpenAerialMap"))
	})

	It("reads the bbox from properties when the top level one is absent", func() {
		payload := encoded(horizontalLine(20, 20, 10, 2, 17))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		m := meta(20, 20)
		m.BBox = nil
		m.Properties.BBox = kyiv[:]
		data, err := processor.Process(ctx, server.URL, rawMeta(m))
		Expect(err).To(BeNil())

		fc := decode(data)
		Expect(fc.Features).To(HaveLen(1))
		Expect([]float64(fc.BBox)).To(Equal(kyiv[:]))
	})
})

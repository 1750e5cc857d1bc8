package inference_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/openroads/road-extractor/internal/inference"
	"github.com/openroads/road-extractor/internal/mask"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/pkg/georef"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key], nil
}

func (m *memoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (*url.URL, error) {
	return url.Parse("http://store/" + key)
}

func pngImage(width, height int, fill color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func serve(body []byte, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
}

var _ = Describe("inference worker", func() {
	var (
		store *memoryStore
		bbox  = georef.BBox{30.5, 50.4, 30.6, 50.5}
	)

	BeforeEach(func() {
		store = &memoryStore{objects: map[string][]byte{}}
	})

	It("uploads the mask and returns its key", func() {
		server := serve(pngImage(8, 6, color.Gray{Y: 128}), http.StatusOK)
		defer server.Close()

		w := inference.NewWorker(inference.LuminanceSegmenter{}, store, 0)
		out, err := w.Run(context.TODO(), queue.PredictArgs{TaskID: "t1", ImageURL: server.URL, BBox: bbox})
		Expect(err).To(BeNil())
		Expect(string(out)).To(Equal("masks/30.5_50.4_30.6_50.5.npy"))

		stored, ok := store.objects["masks/30.5_50.4_30.6_50.5.npy"]
		Expect(ok).To(BeTrue())

		m, err := mask.Decode(bytes.NewReader(stored))
		Expect(err).To(BeNil())
		Expect(m.Width).To(Equal(8))
		Expect(m.Height).To(Equal(6))
		Expect(m.At(0, 0)).To(BeNumerically(">", 0.9))
	})

	It("returns the mask inline", func() {
		server := serve(pngImage(4, 4, color.RGBA{R: 0, G: 200, B: 0, A: 255}), http.StatusOK)
		defer server.Close()

		w := inference.NewWorker(inference.LuminanceSegmenter{}, nil, 0)
		out, err := w.Run(context.TODO(), queue.PredictArgs{ImageURL: server.URL, BBox: bbox, Inline: true})
		Expect(err).To(BeNil())

		m, err := mask.Decode(bytes.NewReader(out))
		Expect(err).To(BeNil())
		Expect(m.Width).To(Equal(4))
		Expect(m.At(2, 2)).To(BeNumerically("==", 0))
	})

	It("reports an unavailable image", func() {
		server := serve([]byte("gone"), http.StatusNotFound)
		defer server.Close()

		w := inference.NewWorker(inference.LuminanceSegmenter{}, store, 0)
		_, err := w.Run(context.TODO(), queue.PredictArgs{ImageURL: server.URL, BBox: bbox})
		Expect(errors.Is(err, inference.ErrImageUnavailable)).To(BeTrue())
		Expect(errors.Is(err, inference.ErrImageDecode)).To(BeFalse())
		Expect(queue.IsPermanent(err)).To(BeFalse())
	})

	It("reports an undecodable image as a permanent failure", func() {
		server := serve([]byte("definitely not an image"), http.StatusOK)
		defer server.Close()

		w := inference.NewWorker(inference.LuminanceSegmenter{}, store, 0)
		_, err := w.Run(context.TODO(), queue.PredictArgs{ImageURL: server.URL, BBox: bbox})
		Expect(errors.Is(err, inference.ErrImageDecode)).To(BeTrue())
		Expect(errors.Is(err, inference.ErrImageUnavailable)).To(BeFalse())
		Expect(queue.IsPermanent(err)).To(BeTrue())
		Expect(store.objects).To(BeEmpty())
	})
})

var _ = Describe("luminance segmenter", func() {
	It("keeps the image dimensions", func() {
		img := image.NewGray(image.Rect(2, 3, 12, 8))
		m, err := inference.LuminanceSegmenter{}.Segment(context.TODO(), img)
		Expect(err).To(BeNil())
		Expect(m.Width).To(Equal(10))
		Expect(m.Height).To(Equal(5))
	})

	It("scores black and saturated pixels as background", func() {
		img := image.NewRGBA(image.Rect(0, 0, 2, 1))
		img.Set(0, 0, color.Black)
		img.Set(1, 0, color.RGBA{R: 255, A: 255})

		m, err := inference.LuminanceSegmenter{}.Segment(context.TODO(), img)
		Expect(err).To(BeNil())
		Expect(m.At(0, 0)).To(BeNumerically("==", 0))
		Expect(m.At(0, 1)).To(BeNumerically("==", 0))
	})
})

package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/openroads/road-extractor/internal/artifact"
	"github.com/openroads/road-extractor/internal/mask"
	"github.com/openroads/road-extractor/internal/queue"
	"go.uber.org/zap"
	_ "golang.org/x/image/tiff"
)

var (
	ErrImageUnavailable = errors.New("image unavailable")
	ErrImageDecode      = errors.New("image decode failed")
)

// Worker runs the primary stage: image in, probability mask out.
type Worker struct {
	segmenter  Segmenter
	artifacts  artifact.Store
	httpClient *http.Client
}

func NewWorker(segmenter Segmenter, artifacts artifact.Store, timeout time.Duration) *Worker {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Worker{
		segmenter:  segmenter,
		artifacts:  artifacts,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Run produces the serialized mask for args. In inline mode the .npy bytes
// are the result. Otherwise the mask is uploaded to MaskKey(bbox) and the
// key is the result.
func (w *Worker) Run(ctx context.Context, args queue.PredictArgs) ([]byte, error) {
	log := zap.S().Named("inference").With("task_id", args.TaskID)

	raw, err := w.download(ctx, args.ImageURL)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("%w: %v", ErrImageDecode, err))
	}
	log.Debugw("image decoded", "format", format, "bounds", img.Bounds().String())

	m, err := w.segmenter.Segment(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("segmenting image: %w", err)
	}

	var buf bytes.Buffer
	if err := mask.Encode(&buf, m); err != nil {
		return nil, fmt.Errorf("encoding mask: %w", err)
	}

	if args.Inline {
		return buf.Bytes(), nil
	}

	if w.artifacts == nil {
		return nil, queue.Permanent(errors.New("no artifact store configured for non-inline masks"))
	}

	key := artifact.MaskKey(args.BBox)
	if err := w.artifacts.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return nil, err
	}
	log.Infow("mask stored", "key", key, "width", m.Width, "height", m.Height)

	return []byte(key), nil
}

func (w *Worker) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, queue.Permanent(fmt.Errorf("%w: empty url", ErrImageUnavailable))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("%w: %v", ErrImageUnavailable, err))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status code %d", ErrImageUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	return data, nil
}

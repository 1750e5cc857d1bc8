package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/openroads/road-extractor/internal/mask"
)

var ErrDownload = errors.New("cannot load mask from server")

// Processor downloads a mask and vectorizes it. Only transport failures are
// reported as errors; bad input data degrades to an empty collection.
type Processor struct {
	httpClient *http.Client
}

func NewProcessor(timeout time.Duration) *Processor {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Processor{httpClient: &http.Client{Timeout: timeout}}
}

func (p *Processor) Process(ctx context.Context, maskURL string, rawMeta json.RawMessage) ([]byte, error) {
	if ParseMetadata(rawMeta) == nil {
		return marshal(Empty())
	}

	content, err := p.download(ctx, maskURL)
	if err != nil {
		return nil, err
	}
	return p.ProcessContent(ctx, content, rawMeta)
}

// ProcessContent vectorizes mask bytes that are already at hand.
func (p *Processor) ProcessContent(_ context.Context, content []byte, rawMeta json.RawMessage) ([]byte, error) {
	logger := zap.S().Named("vectorize")

	meta := ParseMetadata(rawMeta)
	if meta == nil {
		return marshal(Empty())
	}

	bbox, hasBBox := meta.GeoBBox()
	width, height, hasDims := meta.Dimensions()
	if !hasBBox || !hasDims {
		logger.Infow("metadata lacks bbox or dimensions", "image_id", meta.ImageID())
		return marshal(Empty())
	}

	m, err := mask.Decode(bytes.NewReader(content))
	if err != nil {
		logger.Infow("mask is not decodable", "error", err)
		return marshal(Empty())
	}
	// the decoded raster wins over declared metadata
	if m.Width != width || m.Height != height {
		logger.Debugw("metadata dimensions differ from mask", "declared", []int{width, height}, "actual", []int{m.Width, m.Height})
		width, height = m.Width, m.Height
	}

	fc := Vectorize(m, bbox, width, height, meta)
	logger.Infow("mask vectorized", "image_id", meta.ImageID(), "features", len(fc.Features))
	return marshal(fc)
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrDownload, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return content, nil
}

func marshal(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding feature collection: %w", err)
	}
	return data, nil
}

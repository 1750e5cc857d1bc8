package imagery

import (
	"encoding/json"
	"fmt"

	"github.com/openroads/road-extractor/pkg/georef"
)

// Result is one imagery record. Raw keeps the whole record so it can be
// forwarded untouched as vectorizer metadata.
type Result struct {
	ID       string
	Provider string
	Raw      json.RawMessage

	thumbnail string
	download  string
	footprint []float64
}

type rawResult struct {
	ID      string `json:"_id"`
	GeoJSON struct {
		BBox []float64 `json:"bbox"`
	} `json:"geojson"`
	Properties struct {
		Thumbnail string `json:"thumbnail"`
		Download  string `json:"download"`
		Provider  string `json:"provider"`
	} `json:"properties"`
}

func ParseResult(raw json.RawMessage) (*Result, error) {
	var r rawResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode imagery result: %w", err)
	}
	return &Result{
		ID:        r.ID,
		Provider:  r.Properties.Provider,
		Raw:       raw,
		thumbnail: r.Properties.Thumbnail,
		download:  r.Properties.Download,
		footprint: r.GeoJSON.BBox,
	}, nil
}

// ImageURL prefers the thumbnail over the full download. It is empty when
// the record has neither.
func (r *Result) ImageURL() string {
	if r.thumbnail != "" {
		return r.thumbnail
	}
	return r.download
}

// BBox is the footprint of the image, taken from geojson.bbox.
func (r *Result) BBox() (georef.BBox, bool) {
	b, err := georef.NewBBox(r.footprint)
	if err != nil {
		return georef.BBox{}, false
	}
	return b, true
}

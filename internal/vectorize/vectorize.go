package vectorize

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"go.uber.org/zap"

	"github.com/openroads/road-extractor/internal/mask"
	"github.com/openroads/road-extractor/pkg/georef"
	"github.com/openroads/road-extractor/pkg/metrics"
)

const (
	ForegroundThreshold float32 = 0.5
	SimplifyTolerance           = 2.0

	DefaultCRS = "EPSG:4326"
	unknown    = "unknown"
)

// Metadata is the subset of an imagery search result the vectorizer reads.
type Metadata struct {
	ID         string    `json:"_id"`
	BBox       []float64 `json:"bbox"`
	Properties struct {
		Dimensions []float64 `json:"dimensions"`
		Provider   string    `json:"provider"`
		CRS        string    `json:"crs"`
		BBox       []float64 `json:"bbox"`
	} `json:"properties"`
}

// ParseMetadata never fails: unreadable metadata yields nil.
func ParseMetadata(raw json.RawMessage) *Metadata {
	if len(raw) == 0 {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		zap.S().Named("vectorize").Debugw("unreadable metadata", "error", err)
		return nil
	}
	return &m
}

// GeoBBox returns the top level bbox, falling back to properties.bbox.
func (m *Metadata) GeoBBox() (georef.BBox, bool) {
	values := m.BBox
	if len(values) == 0 {
		values = m.Properties.BBox
	}
	if len(values) != 4 {
		return georef.BBox{}, false
	}
	var b georef.BBox
	copy(b[:], values)
	return b, true
}

func (m *Metadata) Dimensions() (width, height int, ok bool) {
	if len(m.Properties.Dimensions) < 2 {
		return 0, 0, false
	}
	return int(m.Properties.Dimensions[0]), int(m.Properties.Dimensions[1]), true
}

func (m *Metadata) ImageID() string {
	if m.ID == "" {
		return unknown
	}
	return m.ID
}

func (m *Metadata) Provider() string {
	if m.Properties.Provider == "" {
		return unknown
	}
	return m.Properties.Provider
}

func (m *Metadata) CRS() string {
	if m.Properties.CRS == "" {
		return DefaultCRS
	}
	return m.Properties.CRS
}

// Empty is the collection returned whenever the input cannot be vectorized.
func Empty() *geojson.FeatureCollection {
	return geojson.NewFeatureCollection()
}

// Vectorize turns a probability mask into georeferenced LineStrings.
// width and height are the raster dimensions used for georeferencing.
func Vectorize(m *mask.Mask, bbox georef.BBox, width, height int, meta *Metadata) *geojson.FeatureCollection {
	skel := Skeletonize(m.Threshold(ForegroundThreshold))
	graph := BuildGraph(skel)

	fc := geojson.NewFeatureCollection()
	fc.BBox = geojson.BBox(bbox[:])
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": meta.CRS()},
		},
	}

	for _, edge := range graph.Edges {
		if len(edge.Path) < 2 {
			continue
		}
		simplified := Simplify(edge.Path)

		line := make(orb.LineString, 0, len(simplified))
		for _, p := range simplified {
			lon, lat := georef.PixelToGeo(p[0], p[1], bbox, width, height)
			line = append(line, orb.Point{lon, lat})
		}
		if len(line) < 2 {
			continue
		}

		f := geojson.NewFeature(line)
		f.Properties["confidence"] = 1.0
		f.Properties["image_id"] = meta.ImageID()
		f.Properties["provider"] = meta.Provider()
		fc.Append(f)
	}

	metrics.ObserveVectorizedFeatures(len(fc.Features))
	return fc
}

// Simplify reduces a pixel path with Douglas-Peucker at SimplifyTolerance.
// The input is left untouched.
func Simplify(path orb.LineString) orb.LineString {
	return simplify.DouglasPeucker(SimplifyTolerance).LineString(path.Clone())
}

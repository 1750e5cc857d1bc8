package georef

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BBox is a geodetic bounding box ordered as (west, south, east, north),
// i.e. (min_lon, min_lat, max_lon, max_lat).
type BBox [4]float64

func NewBBox(values []float64) (BBox, error) {
	var b BBox
	if len(values) != 4 {
		return b, fmt.Errorf("bbox must have 4 values, got %d", len(values))
	}
	copy(b[:], values)
	if !b.Valid() {
		return b, fmt.Errorf("bbox %v is not a finite ordered box", values)
	}
	return b, nil
}

func (b BBox) West() float64  { return b[0] }
func (b BBox) South() float64 { return b[1] }
func (b BBox) East() float64  { return b[2] }
func (b BBox) North() float64 { return b[3] }

// Valid reports whether all four values are finite and the box has a positive extent.
func (b BBox) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.West() < b.East() && b.South() < b.North()
}

// Key joins the four values with "_", e.g. 30.5_50.4_30.6_50.5.
func (b BBox) Key() string {
	parts := make([]string, 0, len(b))
	for _, v := range b {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(parts, "_")
}

// Query renders the box the way the imagery metadata API expects it: w,s,e,n.
func (b BBox) Query() string {
	return strings.ReplaceAll(b.Key(), "_", ",")
}

// PixelToGeo maps the center of raster pixel (row, col) to (lon, lat).
// width and height must be non-zero.
func PixelToGeo(row, col float64, bbox BBox, width, height int) (lon, lat float64) {
	xRes := (bbox.East() - bbox.West()) / float64(width)
	yRes := (bbox.North() - bbox.South()) / float64(height)

	lon = bbox.West() + (col+0.5)*xRes
	lat = bbox.North() - (row+0.5)*math.Abs(yRes)
	return lon, lat
}

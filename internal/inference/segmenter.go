package inference

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/openroads/road-extractor/internal/mask"
)

// Segmenter turns an image into a per-pixel road probability mask with the
// same width and height.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*mask.Mask, error)
}

// LuminanceSegmenter stands in for a trained model. It scores unsaturated
// mid-gray pixels, the usual look of asphalt in aerial imagery, as roads.
type LuminanceSegmenter struct{}

var _ Segmenter = LuminanceSegmenter{}

func (LuminanceSegmenter) Segment(ctx context.Context, img image.Image) (*mask.Mask, error) {
	b := img.Bounds()
	m := mask.New(b.Dx(), b.Dy())

	for y := b.Min.Y; y < b.Max.Y; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			m.Set(y-b.Min.Y, x-b.Min.X, roadScore(img.At(x, y)))
		}
	}
	return m, nil
}

func roadScore(c color.Color) float32 {
	r, g, bl, _ := c.RGBA()
	rf, gf, bf := float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	saturation := maxC - minC
	luma := 0.299*rf + 0.587*gf + 0.114*bf

	// peak at mid gray, zero at black and white
	gray := 1 - math.Abs(luma-0.5)*2
	score := gray * (1 - saturation*4)
	if score < 0 {
		return 0
	}
	return float32(score)
}

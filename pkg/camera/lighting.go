package camera

import (
	"image"
)

// Lighting describes the estimated lighting conditions of a frame.
// Value is mean luminance normalized to 0.0-1.0. Glare detection is
// advisory only and never gates processing.
type Lighting struct {
	Value    float64
	IsGood   bool
	HasGlare bool
}

// LightingEstimator judges frame lighting against configured bounds.
type LightingEstimator struct {
	minValue     float64
	maxValue     float64
	glareCutoff  float64 // fraction of near-blown pixels that flags glare
	sampleStride int
}

// NewLightingEstimator creates an estimator with the given acceptable
// luminance range and glare highlight cutoff.
func NewLightingEstimator(minValue, maxValue, glareCutoff float64) *LightingEstimator {
	return &LightingEstimator{
		minValue:     minValue,
		maxValue:     maxValue,
		glareCutoff:  glareCutoff,
		sampleStride: 4,
	}
}

// Estimate computes lighting conditions from frame pixels.
// Pixels are sampled on a stride grid; full resolution buys nothing
// for a mean-luminance estimate.
func (e *LightingEstimator) Estimate(img image.Image) Lighting {
	bounds := img.Bounds()

	var sum float64
	highlights := 0
	count := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y += e.sampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += e.sampleStride {
			gray := grayValue(img, x, y)
			sum += gray
			if gray > 250 {
				highlights++
			}
			count++
		}
	}

	if count == 0 {
		return Lighting{}
	}

	value := (sum / float64(count)) / 255.0
	highlightFraction := float64(highlights) / float64(count)

	return Lighting{
		Value:    value,
		IsGood:   value >= e.minValue && value <= e.maxValue,
		HasGlare: highlightFraction > e.glareCutoff,
	}
}

// grayValue returns the grayscale value (0-255) for a pixel.
func grayValue(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
}

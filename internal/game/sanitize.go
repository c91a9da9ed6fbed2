// internal/game/sanitize.go
package game

import (
	"math"

	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// Bounds applied to untrusted drawing input at the trust boundary.
const (
	MinStrokeSize     = 1.0
	MaxStrokeSize     = 48.0
	DefaultStrokeSize = 4.0
	MaxStrokes        = 500
	MaxPoints         = 500
)

func clampFloat(n, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, n))
}

// finiteOr replaces NaN and infinities with fallback. Client JSON can
// smuggle these in via repeated floats or buggy encoders; treating them
// as a fixed value keeps every downstream consumer total.
func finiteOr(n, fallback float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return n
}

// SanitizeStroke clamps a single stroke into the given canvas bounds.
// A missing or non-finite size falls back to the default pen size before
// clamping; non-finite coordinates are treated as 0.
func SanitizeStroke(s models.Stroke, w, h float64) models.Stroke {
	size := finiteOr(s.Size, 0)
	if size == 0 {
		size = DefaultStrokeSize
	}

	points := s.Points
	if len(points) > MaxPoints {
		points = points[:MaxPoints]
	}
	clean := make([]models.Point, len(points))
	for i, p := range points {
		clean[i] = models.Point{
			X: clampFloat(finiteOr(p.X, 0), 0, w),
			Y: clampFloat(finiteOr(p.Y, 0), 0, h),
		}
	}

	return models.Stroke{
		Size:   clampFloat(size, MinStrokeSize, MaxStrokeSize),
		Points: clean,
	}
}

// SanitizeStrokes bounds an untrusted stroke batch to the canvas. It never
// fails: nil input yields an empty, valid result.
func SanitizeStrokes(strokes []models.Stroke, w, h float64) []models.Stroke {
	if len(strokes) > MaxStrokes {
		strokes = strokes[:MaxStrokes]
	}
	clean := make([]models.Stroke, len(strokes))
	for i, s := range strokes {
		clean[i] = SanitizeStroke(s, w, h)
	}
	return clean
}

// Package geometry converts eye-contour landmarks into an eye-openness ratio.
package geometry

import (
	"fmt"
	"math"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
)

// EyePoints is the number of contour points required per eye.
const EyePoints = 6

// EyeRatio computes (|p1-p5| + |p2-p4|) / (2 * |p0-p3|) for one eye.
// The contour must have exactly EyePoints finite points.
func EyeRatio(eye []types.Point) (float64, error) {
	if len(eye) != EyePoints {
		return 0, fmt.Errorf("eye contour has %d points, need %d: %w", len(eye), EyePoints, types.ErrInvalidInput)
	}
	for i, p := range eye {
		if !finite(p.X) || !finite(p.Y) {
			return 0, fmt.Errorf("eye contour point %d is not finite: %w", i, types.ErrInvalidInput)
		}
	}
	horizontal := dist(eye[0], eye[3])
	if horizontal == 0 || math.IsNaN(horizontal) || math.IsInf(horizontal, 0) {
		return 0, fmt.Errorf("degenerate eye contour (zero width): %w", types.ErrInvalidInput)
	}
	a := dist(eye[1], eye[5])
	b := dist(eye[2], eye[4])
	return (a + b) / (2.0 * horizontal), nil
}

// Sample computes both eye ratios and their mean for a detected face.
func Sample(face *types.Face, ts time.Time) (types.RatioSample, error) {
	if face == nil {
		return types.RatioSample{}, fmt.Errorf("no face: %w", types.ErrInvalidInput)
	}
	left, err := EyeRatio(face.LeftEye)
	if err != nil {
		return types.RatioSample{}, fmt.Errorf("left eye: %w", err)
	}
	right, err := EyeRatio(face.RightEye)
	if err != nil {
		return types.RatioSample{}, fmt.Errorf("right eye: %w", err)
	}
	return types.RatioSample{
		Left:      left,
		Right:     right,
		Combined:  (left + right) / 2.0,
		Timestamp: ts,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func dist(a, b types.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

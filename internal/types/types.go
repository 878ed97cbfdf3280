package types

import (
	"encoding/json"
	"time"
)

// Point is a 2-D landmark coordinate in image space.
type Point struct {
	X float64
	Y float64
}

// UnmarshalJSON accepts the [x, y] pair emitted by the landmark worker.
func (p *Point) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return ErrInvalidInput
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// MarshalJSON writes the point back as an [x, y] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// Pose holds optional head pose angles in degrees. Pass-through only.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Face carries the six ordered contour points per eye
// (outer corner, two upper lid, inner corner, two lower lid).
type Face struct {
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
	Pose     *Pose   `json:"pose,omitempty"`
}

// LandmarkFrame is one frame from the landmark collaborator. A nil Face means no face was found.
type LandmarkFrame struct {
	Index     int       `json:"index,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Face      *Face     `json:"face,omitempty"`
}

// RatioSample is the eye-openness measurement for one frame.
type RatioSample struct {
	Left      float64
	Right     float64
	Combined  float64
	Timestamp time.Time
}

// Alert is the immutable payload handed to the notifier on confirmed sleep.
type Alert struct {
	SessionID       string    `json:"session_id"`
	SubjectID       string    `json:"subject_id"`
	At              time.Time `json:"at"`
	Ratio           float64   `json:"ratio"`
	SleepPercentage float64   `json:"sleep_percentage"`
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}

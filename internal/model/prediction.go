package model

import "time"

const (
	LabelMask   = "Mask"
	LabelNoMask = "No Mask"
)

// Prediction is the body of a successful /predict response.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// PredictionEvent describes one finished /predict request. Error is empty
// on success.
type PredictionEvent struct {
	RequestID  string    `json:"request_id"`
	Filename   string    `json:"filename"`
	Class      string    `json:"class,omitempty"`
	Confidence float64   `json:"confidence"`
	Cached     bool      `json:"cached"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e PredictionEvent) Failed() bool {
	return e.Error != ""
}

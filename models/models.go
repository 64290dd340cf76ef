package models

import (
	"encoding/json"
	"time"
)

type RecordData struct {
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sampleRate"`
	SampleSize int     `json:"sampleSize"`
}

// Classification represents a stored emotion classification with metadata
type Classification struct {
	ID            int64           `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Emotion       string          `json:"emotion"`
	Confidence    float64         `json:"confidence"`
	Fallback      bool            `json:"fallback"`
	LatencyMs     float64         `json:"latencyMs"`
	Probabilities json.RawMessage `json:"probabilities"` // Store as JSON
	RecordingPath string          `json:"recordingPath,omitempty"`
}

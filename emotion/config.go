package emotion

import (
	"encoding/json"
	"fmt"
	"os"
)

// FeatureConfig is the single source of truth for feature extraction
// parameters. Training, export and serving all consume the same instance:
// the trainer embeds it in the checkpoint and writes it to the metadata
// sidecar, and the inference service uses whatever the artifact it loaded
// was built with.
type FeatureConfig struct {
	SampleRate int `json:"sample_rate" msgpack:"sample_rate"`
	NMels      int `json:"n_mels" msgpack:"n_mels"`
	TimeSteps  int `json:"time_steps" msgpack:"time_steps"`
	NFFT       int `json:"n_fft" msgpack:"n_fft"`
	HopLength  int `json:"hop_length" msgpack:"hop_length"`
}

// DefaultFeatureConfig returns the parameters the shipped models use:
// 16 kHz mono audio, 64 mel bands, 100 frames of 10 ms each.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate: 16000,
		NMels:      64,
		TimeSteps:  100,
		NFFT:       2048,
		HopLength:  512,
	}
}

// TargetSamples is the exact sample count a clip is trimmed or padded to
// before the spectrogram is computed (TimeSteps frames of 10 ms).
func (c FeatureConfig) TargetSamples() int {
	return c.TimeSteps * c.SampleRate / 100
}

// MinSamples is the minimum clip length (1 second); shorter clips are
// zero-padded up to it before the target-length trim.
func (c FeatureConfig) MinSamples() int {
	return c.SampleRate
}

// Duration is the analysed clip length in seconds.
func (c FeatureConfig) Duration() float64 {
	return float64(c.TargetSamples()) / float64(c.SampleRate)
}

// Validate rejects configurations the extractor cannot work with.
func (c FeatureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.NMels <= 0 || c.TimeSteps <= 0 {
		return fmt.Errorf("invalid feature shape (%d, %d)", c.NMels, c.TimeSteps)
	}
	if c.NFFT <= 0 || c.NFFT&(c.NFFT-1) != 0 {
		return fmt.Errorf("n_fft must be a positive power of two, got %d", c.NFFT)
	}
	if c.HopLength <= 0 || c.HopLength > c.NFFT {
		return fmt.Errorf("invalid hop length %d for n_fft %d", c.HopLength, c.NFFT)
	}
	return nil
}

// Metadata is the sidecar record written next to every exported model.
type Metadata struct {
	Emotions     []string `json:"emotions"`
	SampleRate   int      `json:"sample_rate"`
	Duration     float64  `json:"duration"`
	NMels        int      `json:"n_mels"`
	NFFT         int      `json:"n_fft"`
	HopLength    int      `json:"hop_length"`
	TimeSteps    int      `json:"time_steps"`
	TestAccuracy float64  `json:"test_accuracy"`
}

// NewMetadata builds the sidecar record for a config and measured accuracy.
func NewMetadata(cfg FeatureConfig, testAccuracy float64) Metadata {
	return Metadata{
		Emotions:     append([]string(nil), Emotions...),
		SampleRate:   cfg.SampleRate,
		Duration:     cfg.Duration(),
		NMels:        cfg.NMels,
		NFFT:         cfg.NFFT,
		HopLength:    cfg.HopLength,
		TimeSteps:    cfg.TimeSteps,
		TestAccuracy: testAccuracy,
	}
}

// FeatureConfig reconstructs the extraction parameters recorded in the sidecar.
func (m Metadata) FeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate: m.SampleRate,
		NMels:      m.NMels,
		TimeSteps:  m.TimeSteps,
		NFFT:       m.NFFT,
		HopLength:  m.HopLength,
	}
}

// WriteMetadata persists the sidecar as indented JSON.
func WriteMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads a sidecar written by WriteMetadata.
func ReadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, nil
}

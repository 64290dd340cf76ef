// Package infer wraps a trained checkpoint behind a small classification
// service. The service is constructed explicitly with its model paths and
// loads everything once up front; there is no lazy global instance.
package infer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
	"emotion-recognition/train"
	"emotion-recognition/utils"
)

// Result is one classification outcome. Fallback marks results produced
// by the random stand-in path rather than the model.
type Result struct {
	Emotion       string             `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Fallback      bool               `json:"fallback"`
	LatencyMs     float64            `json:"latency_ms"`
}

// Service classifies audio files with a loaded model. When the model is
// unavailable, or a clip cannot be decoded, it degrades to a seeded random
// prediction that is always tagged as a fallback.
type Service struct {
	net       *nn.Network
	extractor *emotion.Extractor
	logger    *slog.Logger

	// guards the network's forward-pass scratch state and the rng
	mu  sync.Mutex
	rng *rand.Rand
}

// NewService loads the checkpoint and metadata sidecar once. A missing or
// unreadable checkpoint is not an error: the service starts in fallback
// mode so the serving surface stays available.
func NewService(checkpointPath, metadataPath string, seed int64) (*Service, error) {
	logger := utils.GetLogger()
	s := &Service{
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}

	cfg := emotion.DefaultFeatureConfig()
	if meta, err := emotion.ReadMetadata(metadataPath); err == nil {
		cfg = meta.FeatureConfig()
	} else if metadataPath != "" {
		logger.WarnContext(context.Background(), "metadata sidecar unavailable, using defaults",
			slog.String("path", metadataPath),
			slog.Any("error", err),
		)
	}

	extractor, err := emotion.NewExtractor(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid feature configuration: %w", err)
	}
	s.extractor = extractor

	cp, err := train.LoadCheckpoint(checkpointPath)
	if err != nil {
		logger.WarnContext(context.Background(), "model unavailable, serving fallback predictions",
			slog.String("path", checkpointPath),
			slog.Any("error", err),
		)
		return s, nil
	}

	// the checkpoint's own configuration wins over the sidecar
	if cp.Config != cfg {
		extractor, err = emotion.NewExtractor(cp.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint configuration: %w", err)
		}
		s.extractor = extractor
	}

	net, err := train.RestoreNetwork(cp, seed)
	if err != nil {
		return nil, err
	}
	s.net = net

	logger.InfoContext(context.Background(), "model loaded",
		slog.String("path", checkpointPath),
		slog.Int("epoch", cp.Epoch),
		slog.Float64("val_acc", cp.ValAcc),
		slog.Int("parameters", net.NumParameters()),
	)
	return s, nil
}

// Ready reports whether a real model is loaded.
func (s *Service) Ready() bool { return s.net != nil }

// Config returns the feature configuration in effect.
func (s *Service) Config() emotion.FeatureConfig { return s.extractor.Config() }

// Classify predicts the emotion of an audio file. Decode and extraction
// failures degrade to a tagged fallback result instead of an error, so the
// only error paths left are programming mistakes.
func (s *Service) Classify(ctx context.Context, path string) Result {
	start := time.Now()

	if s.net == nil {
		return s.fallback(start)
	}

	samples, err := emotion.LoadAudio(path, s.extractor.Config())
	if err != nil {
		s.logger.WarnContext(ctx, "falling back: audio decode failed",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return s.fallback(start)
	}

	spec, err := s.extractor.FromSamples(samples)
	if err != nil {
		s.logger.WarnContext(ctx, "falling back: feature extraction failed",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return s.fallback(start)
	}

	return s.predict(spec, start)
}

// ClassifySamples predicts from raw mono samples already at the configured
// rate, used by the streaming path.
func (s *Service) ClassifySamples(ctx context.Context, samples []float64) Result {
	start := time.Now()
	if s.net == nil {
		return s.fallback(start)
	}

	spec, err := s.extractor.FromSamples(samples)
	if err != nil {
		s.logger.WarnContext(ctx, "falling back: feature extraction failed",
			slog.Any("error", err),
		)
		return s.fallback(start)
	}
	return s.predict(spec, start)
}

func (s *Service) predict(spec *mat.Dense, start time.Time) Result {
	s.mu.Lock()
	probs := s.net.PredictProba(spec)
	s.mu.Unlock()

	best, bestIdx := probs[0], 0
	byLabel := make(map[string]float64, len(probs))
	for i, p := range probs {
		byLabel[emotion.Emotions[i]] = p
		if p > best {
			best = p
			bestIdx = i
		}
	}
	return Result{
		Emotion:       emotion.Emotions[bestIdx],
		Confidence:    best,
		Probabilities: byLabel,
		LatencyMs:     float64(time.Since(start).Microseconds()) / 1000,
	}
}

// fallback returns a uniformly random label with a confidence drawn from
// [0.6, 0.9), always tagged.
func (s *Service) fallback(start time.Time) Result {
	s.mu.Lock()
	idx := s.rng.Intn(emotion.NumClasses)
	confidence := 0.6 + s.rng.Float64()*0.3
	s.mu.Unlock()

	return Result{
		Emotion:    emotion.Emotions[idx],
		Confidence: confidence,
		Fallback:   true,
		LatencyMs:  float64(time.Since(start).Microseconds()) / 1000,
	}
}

package infer

import (
	"context"
	"path/filepath"
	"testing"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
	"emotion-recognition/train"
)

func validLabels() map[string]bool {
	set := make(map[string]bool, emotion.NumClasses)
	for _, label := range emotion.Emotions {
		set[label] = true
	}
	return set
}

func TestMissingModelServesTaggedFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	service, err := NewService(filepath.Join(dir, "missing.ckpt"), filepath.Join(dir, "missing.json"), 42)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if service.Ready() {
		t.Fatal("service claims readiness without a model")
	}

	labels := validLabels()
	for i := 0; i < 50; i++ {
		result := service.Classify(context.Background(), filepath.Join(dir, "whatever.wav"))
		if !result.Fallback {
			t.Fatal("fallback result not tagged")
		}
		if !labels[result.Emotion] {
			t.Fatalf("fallback emotion %q not in the label set", result.Emotion)
		}
		if result.Confidence < 0.6 || result.Confidence >= 0.9 {
			t.Fatalf("fallback confidence %.4f outside [0.6, 0.9)", result.Confidence)
		}
	}
}

func TestFallbackIsSeeded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := NewService(filepath.Join(dir, "none.ckpt"), "", 7)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	b, err := NewService(filepath.Join(dir, "none.ckpt"), "", 7)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		ra := a.Classify(context.Background(), "x.wav")
		rb := b.Classify(context.Background(), "x.wav")
		if ra.Emotion != rb.Emotion || ra.Confidence != rb.Confidence {
			t.Fatal("equal seeds produced different fallback sequences")
		}
	}
}

func TestUndecodableAudioFallsBack(t *testing.T) {
	t.Parallel()

	cfg := emotion.DefaultFeatureConfig()
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "model.ckpt")

	net := nn.NewEmotionClassifier(cfg.NMels, emotion.NumClasses, 0.3, 1)
	cp := train.Checkpoint{
		Epoch:    1,
		ValAcc:   0.5,
		Config:   cfg,
		NClasses: emotion.NumClasses,
		Dropout:  0.3,
		Params:   net.StateMap(),
	}
	if err := train.SaveCheckpoint(checkpointPath, cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	service, err := NewService(checkpointPath, "", 3)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if !service.Ready() {
		t.Fatal("service not ready with a valid checkpoint")
	}

	result := service.Classify(context.Background(), filepath.Join(dir, "nope.wav"))
	if !result.Fallback {
		t.Error("missing audio file should produce a tagged fallback")
	}
}

func TestModelPredictionIsNotTaggedFallback(t *testing.T) {
	t.Parallel()

	cfg := emotion.DefaultFeatureConfig()
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "model.ckpt")

	net := nn.NewEmotionClassifier(cfg.NMels, emotion.NumClasses, 0.3, 2)
	cp := train.Checkpoint{
		Epoch:    1,
		ValAcc:   0.5,
		Config:   cfg,
		NClasses: emotion.NumClasses,
		Dropout:  0.3,
		Params:   net.StateMap(),
	}
	if err := train.SaveCheckpoint(checkpointPath, cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	service, err := NewService(checkpointPath, "", 3)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	samples := make([]float64, cfg.TargetSamples())
	for i := range samples {
		samples[i] = 0.1
	}
	result := service.ClassifySamples(context.Background(), samples)

	if result.Fallback {
		t.Error("model prediction tagged as fallback")
	}
	if !validLabels()[result.Emotion] {
		t.Errorf("emotion %q not in the label set", result.Emotion)
	}
	var sum float64
	for _, p := range result.Probabilities {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %.4f, want 1", sum)
	}
}

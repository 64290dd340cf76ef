package train

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"emotion-recognition/emotion"
)

func syntheticSources(t *testing.T, perClass int, seed int64) (Source, Source) {
	t.Helper()
	cfg := emotion.DefaultFeatureConfig()
	set, err := emotion.SyntheticSet(cfg, perClass, seed)
	if err != nil {
		t.Fatalf("failed to generate synthetic data: %v", err)
	}
	// interleave classes across the split: the set is ordered by class
	var trainSet, valSet []emotion.SyntheticSample
	for i, s := range set {
		if i%perClass == perClass-1 {
			valSet = append(valSet, s)
		} else {
			trainSet = append(trainSet, s)
		}
	}
	return MemorySource(trainSet), MemorySource(valSet)
}

func TestTrainingRunProducesCheckpointAndHistory(t *testing.T) {
	outputDir := t.TempDir()

	opts := DefaultOptions()
	opts.Epochs = 2
	opts.BatchSize = 4
	opts.Patience = 5
	opts.Seed = 42
	opts.OutputDir = outputDir

	cfg := emotion.DefaultFeatureConfig()
	trainSrc, valSrc := syntheticSources(t, 3, 42)

	trainer := NewTrainer(cfg, opts)
	result, err := trainer.Run(context.Background(), trainSrc, valSrc)
	if err != nil {
		t.Fatalf("training run failed: %v", err)
	}

	if result.EpochsRun != 2 {
		t.Errorf("ran %d epochs, want 2", result.EpochsRun)
	}
	if len(result.History) != 2 {
		t.Fatalf("history has %d rows, want 2", len(result.History))
	}
	for _, stats := range result.History {
		if stats.ValAcc < 0 || stats.ValAcc > 1 {
			t.Errorf("epoch %d: val_acc %.4f outside [0, 1]", stats.Epoch, stats.ValAcc)
		}
		if stats.TrainLoss <= 0 {
			t.Errorf("epoch %d: non-positive train loss %.4f", stats.Epoch, stats.TrainLoss)
		}
	}

	if _, err := os.Stat(result.CheckpointPath); err != nil {
		t.Fatalf("best checkpoint missing: %v", err)
	}

	historyPath := filepath.Join(outputDir, "training_history.json")
	data, err := os.ReadFile(historyPath)
	if err != nil {
		t.Fatalf("training history missing: %v", err)
	}
	var history []EpochStats
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("training history is not valid JSON: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "model_config.json")); err != nil {
		t.Fatalf("model config missing: %v", err)
	}
}

func TestImprovementWritesConfusionMatrixPlot(t *testing.T) {
	outputDir := t.TempDir()

	opts := DefaultOptions()
	opts.Epochs = 1
	opts.BatchSize = 4
	opts.Seed = 11
	opts.OutputDir = outputDir

	cfg := emotion.DefaultFeatureConfig()
	trainSrc, valSrc := syntheticSources(t, 2, 11)

	trainer := NewTrainer(cfg, opts)
	if _, err := trainer.Run(context.Background(), trainSrc, valSrc); err != nil {
		t.Fatalf("training run failed: %v", err)
	}

	// the first epoch always improves, so the plot must exist alongside
	// the checkpoint even though the run was cut to one epoch
	info, err := os.Stat(filepath.Join(outputDir, "confusion_matrix.png"))
	if err != nil {
		t.Fatalf("confusion matrix plot missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("confusion matrix plot is empty")
	}
}

func TestResumeRestoresBestAccuracy(t *testing.T) {
	outputDir := t.TempDir()

	opts := DefaultOptions()
	opts.Epochs = 2
	opts.BatchSize = 4
	opts.Seed = 5
	opts.OutputDir = outputDir

	cfg := emotion.DefaultFeatureConfig()
	trainSrc, valSrc := syntheticSources(t, 2, 5)

	first := NewTrainer(cfg, opts)
	firstResult, err := first.Run(context.Background(), trainSrc, valSrc)
	if err != nil {
		t.Fatalf("initial run failed: %v", err)
	}

	resumeOpts := opts
	resumeOpts.Epochs = 1
	resumeOpts.OutputDir = t.TempDir()
	resumeOpts.ResumeFrom = firstResult.CheckpointPath

	second := NewTrainer(cfg, resumeOpts)
	secondResult, err := second.Run(context.Background(), trainSrc, valSrc)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}

	// the restored best must survive: a worse resumed epoch cannot lower it
	if secondResult.BestValAcc < firstResult.BestValAcc {
		t.Errorf("resumed best %.4f below original best %.4f",
			secondResult.BestValAcc, firstResult.BestValAcc)
	}
}

func TestResumeRejectsMissingCheckpoint(t *testing.T) {
	opts := DefaultOptions()
	opts.Epochs = 1
	opts.OutputDir = t.TempDir()
	opts.ResumeFrom = filepath.Join(opts.OutputDir, "missing.ckpt")

	cfg := emotion.DefaultFeatureConfig()
	trainSrc, valSrc := syntheticSources(t, 2, 5)

	trainer := NewTrainer(cfg, opts)
	if _, err := trainer.Run(context.Background(), trainSrc, valSrc); err == nil {
		t.Error("expected error for missing resume checkpoint")
	}
}

func TestCheckpointRestoresExactPredictions(t *testing.T) {
	outputDir := t.TempDir()

	opts := DefaultOptions()
	opts.Epochs = 1
	opts.BatchSize = 4
	opts.Seed = 7
	opts.OutputDir = outputDir

	cfg := emotion.DefaultFeatureConfig()
	trainSrc, valSrc := syntheticSources(t, 2, 7)

	trainer := NewTrainer(cfg, opts)
	result, err := trainer.Run(context.Background(), trainSrc, valSrc)
	if err != nil {
		t.Fatalf("training run failed: %v", err)
	}

	cp, err := LoadCheckpoint(result.CheckpointPath)
	if err != nil {
		t.Fatalf("failed to load checkpoint: %v", err)
	}
	if cp.Config != cfg {
		t.Errorf("checkpoint config %+v, want %+v", cp.Config, cfg)
	}
	if cp.ValAcc != result.BestValAcc {
		t.Errorf("checkpoint val_acc %.4f, want %.4f", cp.ValAcc, result.BestValAcc)
	}

	restored, err := RestoreNetwork(cp, 99)
	if err != nil {
		t.Fatalf("failed to restore network: %v", err)
	}

	spec, _ := valSrc.Sample(0)
	want := trainer.Network().PredictProba(spec)
	got := restored.PredictProba(spec)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored prediction %v differs from trained %v", got, want)
		}
	}
}

func TestEvaluateFillsConfusionMatrix(t *testing.T) {
	cfg := emotion.DefaultFeatureConfig()
	opts := DefaultOptions()
	opts.Epochs = 1
	opts.Seed = 3

	_, valSrc := syntheticSources(t, 3, 3)

	trainer := NewTrainer(cfg, opts)
	cm := NewConfusionMatrix()
	_, acc := trainer.Evaluate(valSrc, cm)

	if acc < 0 || acc > 1 {
		t.Errorf("accuracy %.4f outside [0, 1]", acc)
	}

	rowSums := cm.RowSums()
	counts := make([]int, emotion.NumClasses)
	for i := 0; i < valSrc.Len(); i++ {
		_, idx := valSrc.Sample(i)
		counts[idx]++
	}
	for i, sum := range rowSums {
		if sum != counts[i] {
			t.Errorf("row %d sum %d, want %d", i, sum, counts[i])
		}
	}
}

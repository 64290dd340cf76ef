package train

// Training Loop
//
// One epoch = shuffled mini-batches over the training source, then a full
// pass over the validation source. After each epoch the plateau scheduler
// may decay the learning rate on stagnant validation loss, the best
// checkpoint is rewritten on strict validation-accuracy improvement, and
// early stopping halts the loop after too many epochs without one.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
	"emotion-recognition/utils"
)

// Source yields (spectrogram, class index) pairs by position.
type Source interface {
	Len() int
	Sample(i int) (*mat.Dense, int)
}

// MemorySource serves pre-computed spectrograms, used for synthetic runs
// and tests.
type MemorySource []emotion.SyntheticSample

func (m MemorySource) Len() int { return len(m) }

func (m MemorySource) Sample(i int) (*mat.Dense, int) {
	return m[i].Spec, m[i].Index
}

// Options configure one training run.
type Options struct {
	Epochs         int
	BatchSize      int
	LearningRate   float64
	Dropout        float64
	Patience       int // early stopping, on validation accuracy
	Seed           int64
	OutputDir      string
	CheckpointName string
	ResumeFrom     string // checkpoint to restore weights and optimizer from
}

// DefaultOptions mirrors the shipped training recipe.
func DefaultOptions() Options {
	return Options{
		Epochs:         50,
		BatchSize:      16,
		LearningRate:   1e-3,
		Dropout:        0.3,
		Patience:       5,
		Seed:           42,
		OutputDir:      "outputs",
		CheckpointName: "best_model.ckpt",
	}
}

// EpochStats is one row of the training history.
type EpochStats struct {
	Epoch        int     `json:"epoch"`
	TrainLoss    float64 `json:"train_loss"`
	TrainAcc     float64 `json:"train_acc"`
	ValLoss      float64 `json:"val_loss"`
	ValAcc       float64 `json:"val_acc"`
	LearningRate float64 `json:"learning_rate"`
	Seconds      float64 `json:"seconds"`
}

// Result summarizes a finished run.
type Result struct {
	BestValAcc     float64
	BestEpoch      int
	EpochsRun      int
	Stopped        bool // true when early stopping fired
	History        []EpochStats
	CheckpointPath string
}

// Trainer drives the epoch loop for one network and data split.
type Trainer struct {
	net    *nn.Network
	opts   Options
	cfg    emotion.FeatureConfig
	logger *slog.Logger
	rng    *rand.Rand
}

// NewTrainer builds a trainer around a freshly initialized network.
func NewTrainer(cfg emotion.FeatureConfig, opts Options) *Trainer {
	return &Trainer{
		net:    nn.NewEmotionClassifier(cfg.NMels, emotion.NumClasses, opts.Dropout, opts.Seed),
		opts:   opts,
		cfg:    cfg,
		logger: utils.GetLogger(),
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}
}

// Network exposes the trained model, e.g. for evaluation after Run.
func (t *Trainer) Network() *nn.Network { return t.net }

// Run executes the full training loop and returns the run summary. The
// best checkpoint and the history files land in opts.OutputDir.
func (t *Trainer) Run(ctx context.Context, trainSrc, valSrc Source) (*Result, error) {
	if trainSrc.Len() == 0 {
		return nil, fmt.Errorf("training source is empty")
	}
	if valSrc.Len() == 0 {
		return nil, fmt.Errorf("validation source is empty")
	}
	if err := utils.CreateFolder(t.opts.OutputDir); err != nil {
		return nil, err
	}

	optimizer := nn.NewAdam(t.net.Params(), t.opts.LearningRate)
	scheduler := NewPlateauScheduler()
	stopper := NewEarlyStopping(t.opts.Patience)

	checkpointPath := filepath.Join(t.opts.OutputDir, t.opts.CheckpointName)
	result := &Result{CheckpointPath: checkpointPath}

	if t.opts.ResumeFrom != "" {
		cp, err := LoadCheckpoint(t.opts.ResumeFrom)
		if err != nil {
			return nil, fmt.Errorf("failed to resume: %w", err)
		}
		if err := t.net.LoadStateMap(cp.Params); err != nil {
			return nil, fmt.Errorf("failed to resume: %w", err)
		}
		if cp.Optimizer.Step > 0 {
			optimizer.LoadState(cp.Optimizer)
		}
		// seed the stopper so a worse epoch cannot overwrite the old best
		stopper.Observe(cp.ValAcc)
		result.BestValAcc = cp.ValAcc
		t.logger.InfoContext(ctx, "resumed from checkpoint",
			slog.String("path", t.opts.ResumeFrom),
			slog.Int("epoch", cp.Epoch),
			slog.Float64("val_acc", cp.ValAcc),
		)
	}

	t.logger.InfoContext(ctx, "starting training",
		slog.Int("train_samples", trainSrc.Len()),
		slog.Int("val_samples", valSrc.Len()),
		slog.Int("epochs", t.opts.Epochs),
		slog.Int("parameters", t.net.NumParameters()),
	)

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		start := time.Now()
		trainLoss, trainAcc := t.trainEpoch(trainSrc, optimizer)
		cm := NewConfusionMatrix()
		valLoss, valAcc := t.Evaluate(valSrc, cm)

		optimizer.LR = scheduler.Observe(valLoss, optimizer.LR)

		improved, stop := stopper.Observe(valAcc)
		if improved {
			cp := Checkpoint{
				Epoch:     epoch,
				ValAcc:    valAcc,
				Config:    t.cfg,
				NClasses:  emotion.NumClasses,
				Dropout:   t.opts.Dropout,
				Params:    t.net.StateMap(),
				Optimizer: optimizer.State(),
			}
			if err := SaveCheckpoint(checkpointPath, cp); err != nil {
				return result, err
			}
			// keep the visualization in lockstep with the checkpoint
			plotPath := filepath.Join(t.opts.OutputDir, "confusion_matrix.png")
			if err := cm.SavePNG(plotPath); err != nil {
				t.logger.WarnContext(ctx, "failed to render confusion matrix",
					slog.Any("error", err))
			}
			result.BestValAcc = valAcc
			result.BestEpoch = epoch
		}

		stats := EpochStats{
			Epoch:        epoch,
			TrainLoss:    trainLoss,
			TrainAcc:     trainAcc,
			ValLoss:      valLoss,
			ValAcc:       valAcc,
			LearningRate: optimizer.LR,
			Seconds:      time.Since(start).Seconds(),
		}
		result.History = append(result.History, stats)
		result.EpochsRun = epoch

		t.logger.InfoContext(ctx, "epoch finished",
			slog.Int("epoch", epoch),
			slog.Float64("train_loss", trainLoss),
			slog.Float64("train_acc", trainAcc),
			slog.Float64("val_loss", valLoss),
			slog.Float64("val_acc", valAcc),
			slog.Float64("lr", optimizer.LR),
			slog.Bool("improved", improved),
		)

		if stop {
			result.Stopped = true
			t.logger.InfoContext(ctx, "early stopping",
				slog.Int("epoch", epoch),
				slog.Float64("best_val_acc", stopper.Best()),
			)
			break
		}
	}

	if err := t.writeRunFiles(result); err != nil {
		return result, err
	}
	return result, nil
}

func (t *Trainer) trainEpoch(src Source, optimizer *nn.Adam) (loss, acc float64) {
	order := t.rng.Perm(src.Len())

	var totalLoss float64
	var correct, batches int
	for start := 0; start < len(order); start += t.opts.BatchSize {
		end := start + t.opts.BatchSize
		if end > len(order) {
			end = len(order)
		}

		specs := make([]*mat.Dense, 0, end-start)
		targets := make([]int, 0, end-start)
		for _, idx := range order[start:end] {
			spec, label := src.Sample(idx)
			specs = append(specs, spec)
			targets = append(targets, label)
		}

		logits := t.net.Forward(specs, true)
		batchLoss, grads := nn.SoftmaxCrossEntropy(logits, targets)
		t.net.Backward(grads)
		optimizer.Step()

		totalLoss += batchLoss
		batches++
		for i, l := range logits {
			if nn.Argmax(l) == targets[i] {
				correct++
			}
		}
	}

	return totalLoss / float64(batches), float64(correct) / float64(len(order))
}

// Evaluate runs the network in evaluation mode over a source, optionally
// filling a confusion matrix.
func (t *Trainer) Evaluate(src Source, cm *ConfusionMatrix) (loss, acc float64) {
	loss, acc, _ = EvaluateNetwork(t.net, src, cm)
	return loss, acc
}

// EvaluateNetwork measures loss and accuracy of any network over a source.
// The returned predictions are index-aligned with the source.
func EvaluateNetwork(net *nn.Network, src Source, cm *ConfusionMatrix) (loss, acc float64, preds []int) {
	var totalLoss float64
	var correct int
	n := src.Len()
	preds = make([]int, n)
	for i := 0; i < n; i++ {
		spec, target := src.Sample(i)
		logits := net.Forward([]*mat.Dense{spec}, false)
		sampleLoss, _ := nn.SoftmaxCrossEntropy(logits, []int{target})
		totalLoss += sampleLoss

		pred := nn.Argmax(logits[0])
		preds[i] = pred
		if pred == target {
			correct++
		}
		if cm != nil {
			cm.Add(target, pred)
		}
	}
	return totalLoss / float64(n), float64(correct) / float64(n), preds
}

func (t *Trainer) writeRunFiles(result *Result) error {
	history, err := json.MarshalIndent(result.History, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal training history: %w", err)
	}
	historyPath := filepath.Join(t.opts.OutputDir, "training_history.json")
	if err := os.WriteFile(historyPath, history, 0644); err != nil {
		return fmt.Errorf("failed to write training history: %w", err)
	}

	modelConfig := struct {
		Emotions   []string              `json:"emotions"`
		Features   emotion.FeatureConfig `json:"features"`
		Dropout    float64               `json:"dropout"`
		Parameters int                   `json:"parameters"`
		BestEpoch  int                   `json:"best_epoch"`
		BestValAcc float64               `json:"best_val_acc"`
	}{
		Emotions:   emotion.Emotions,
		Features:   t.cfg,
		Dropout:    t.opts.Dropout,
		Parameters: t.net.NumParameters(),
		BestEpoch:  result.BestEpoch,
		BestValAcc: result.BestValAcc,
	}
	data, err := json.MarshalIndent(modelConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model config: %w", err)
	}
	configPath := filepath.Join(t.opts.OutputDir, "model_config.json")
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write model config: %w", err)
	}
	return nil
}

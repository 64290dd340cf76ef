package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"emotion-recognition/emotion"
	"emotion-recognition/train"
)

// Config holds training configuration
type Config struct {
	ManifestPath string
	DataDir      string
	OutputDir    string
	Epochs       int
	BatchSize    int
	LearningRate float64
	ValFraction  float64
	Patience     int
	Seed         int64
	Augment      bool
	Synthetic    int
	Resume       string
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("=== Emotion Classifier Training Pipeline ===\n")
	log.Printf("Output dir: %s\n", config.OutputDir)
	log.Println()

	cfg := emotion.DefaultFeatureConfig()
	startTime := time.Now()

	// Step 1: Load training data
	log.Println("Step 1: Loading training data...")
	trainSrc, valSrc := loadSources(config, cfg)
	log.Printf("Train samples: %d, validation samples: %d\n", trainSrc.Len(), valSrc.Len())
	log.Println()

	// Step 2: Train
	log.Println("Step 2: Training...")
	opts := train.DefaultOptions()
	opts.Epochs = config.Epochs
	opts.BatchSize = config.BatchSize
	opts.LearningRate = config.LearningRate
	opts.Patience = config.Patience
	opts.Seed = config.Seed
	opts.OutputDir = config.OutputDir
	opts.ResumeFrom = config.Resume

	trainer := train.NewTrainer(cfg, opts)
	result, err := trainer.Run(context.Background(), trainSrc, valSrc)
	if err != nil {
		log.Fatalf("ERROR: Training failed: %v", err)
	}

	log.Printf("Best validation accuracy: %.4f (epoch %d)\n", result.BestValAcc, result.BestEpoch)
	if result.Stopped {
		log.Printf("Training stopped early after %d epochs\n", result.EpochsRun)
	}
	log.Println()

	// Step 3: Evaluate the best checkpoint
	log.Println("Step 3: Evaluating best checkpoint...")
	cp, err := train.LoadCheckpoint(result.CheckpointPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load best checkpoint: %v", err)
	}
	best, err := train.RestoreNetwork(cp, config.Seed)
	if err != nil {
		log.Fatalf("ERROR: Failed to restore network: %v", err)
	}

	cm := train.NewConfusionMatrix()
	_, valAcc, _ := train.EvaluateNetwork(best, valSrc, cm)
	log.Printf("Validation accuracy: %.4f\n", valAcc)
	log.Printf("Confusion matrix:\n%s", cm.String())

	plotPath := filepath.Join(config.OutputDir, "confusion_matrix.png")
	if err := cm.SavePNG(plotPath); err != nil {
		log.Printf("WARNING: Failed to render confusion matrix: %v", err)
	} else {
		log.Printf("Confusion matrix plot: %s\n", plotPath)
	}

	// Step 4: Write the metadata sidecar
	metadataPath := filepath.Join(config.OutputDir, "metadata.json")
	if err := emotion.WriteMetadata(metadataPath, emotion.NewMetadata(cfg, valAcc)); err != nil {
		log.Fatalf("ERROR: Failed to write metadata: %v", err)
	}
	log.Printf("Metadata sidecar: %s\n", metadataPath)

	log.Printf("Done in %.1fs\n", time.Since(startTime).Seconds())
}

func parseFlags() Config {
	config := Config{}
	flag.StringVar(&config.ManifestPath, "manifest", "", "CSV manifest with path,label rows")
	flag.StringVar(&config.DataDir, "data-dir", ".", "Directory manifest paths are relative to")
	flag.StringVar(&config.OutputDir, "out", "outputs", "Directory for checkpoints and run files")
	flag.IntVar(&config.Epochs, "epochs", 50, "Maximum training epochs")
	flag.IntVar(&config.BatchSize, "batch", 16, "Mini-batch size")
	flag.Float64Var(&config.LearningRate, "lr", 1e-3, "Initial learning rate")
	flag.Float64Var(&config.ValFraction, "val-frac", 0.2, "Validation split fraction")
	flag.IntVar(&config.Patience, "patience", 5, "Early stopping patience (epochs)")
	flag.Int64Var(&config.Seed, "seed", 42, "Random seed")
	flag.BoolVar(&config.Augment, "augment", true, "Apply spectrogram augmentation to the training split")
	flag.IntVar(&config.Synthetic, "synthetic", 0, "Train on N synthetic samples per class instead of a manifest")
	flag.StringVar(&config.Resume, "resume", "", "Checkpoint to resume training from")
	flag.Parse()

	if config.ManifestPath == "" && config.Synthetic == 0 {
		log.Fatal("ERROR: either -manifest or -synthetic is required")
	}
	return config
}

func loadSources(config Config, cfg emotion.FeatureConfig) (train.Source, train.Source) {
	if config.Synthetic > 0 {
		set, err := emotion.SyntheticSet(cfg, config.Synthetic, config.Seed)
		if err != nil {
			log.Fatalf("ERROR: Failed to generate synthetic data: %v", err)
		}
		// the set is ordered by class, shuffle before splitting
		rng := rand.New(rand.NewSource(config.Seed))
		rng.Shuffle(len(set), func(i, j int) { set[i], set[j] = set[j], set[i] })
		split := int(float64(len(set)) * (1 - config.ValFraction))
		return train.MemorySource(set[:split]), train.MemorySource(set[split:])
	}

	dataset, err := emotion.LoadManifest(config.ManifestPath, config.DataDir, cfg)
	if err != nil {
		log.Fatalf("ERROR: Failed to load manifest: %v", err)
	}
	log.Printf("Class counts: %v (%v)\n", dataset.ClassCounts(), emotion.Emotions)

	trainSet, valSet := dataset.Split(config.ValFraction, config.Seed)
	if config.Augment {
		trainSet.SetAugmentor(emotion.NewAugmentor(config.Seed))
	}
	return trainSet, valSet
}

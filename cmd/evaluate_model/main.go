package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"emotion-recognition/emotion"
	"emotion-recognition/train"
)

// report is the JSON document written by -report.
type report struct {
	Checkpoint string               `json:"checkpoint"`
	Samples    int                  `json:"samples"`
	Loss       float64              `json:"loss"`
	Accuracy   float64              `json:"accuracy"`
	PerClass   []train.ClassMetrics `json:"per_class"`
	Confusion  [][]int              `json:"confusion"`
}

func main() {
	checkpointPath := flag.String("checkpoint", "outputs/best_model.ckpt", "Checkpoint to evaluate")
	manifestPath := flag.String("manifest", "", "CSV manifest with path,label rows")
	dataDir := flag.String("data-dir", ".", "Directory manifest paths are relative to")
	plotPath := flag.String("plot", "", "Optional confusion matrix PNG output path")
	reportPath := flag.String("report", "", "Optional JSON report output path")
	listMisses := flag.Bool("list-misses", false, "List misclassified manifest files")
	synthetic := flag.Int("synthetic", 0, "Evaluate on N synthetic samples per class instead of a manifest")
	seed := flag.Int64("seed", 42, "Random seed for synthetic data")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)

	if *manifestPath == "" && *synthetic == 0 {
		log.Fatal("ERROR: either -manifest or -synthetic is required")
	}

	cp, err := train.LoadCheckpoint(*checkpointPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load checkpoint: %v", err)
	}
	log.Printf("Loaded checkpoint: epoch %d, val_acc %.4f\n", cp.Epoch, cp.ValAcc)

	net, err := train.RestoreNetwork(cp, *seed)
	if err != nil {
		log.Fatalf("ERROR: Failed to restore network: %v", err)
	}

	var src train.Source
	var dataset *emotion.Dataset
	if *synthetic > 0 {
		set, err := emotion.SyntheticSet(cp.Config, *synthetic, *seed)
		if err != nil {
			log.Fatalf("ERROR: Failed to generate synthetic data: %v", err)
		}
		src = train.MemorySource(set)
	} else {
		dataset, err = emotion.LoadManifest(*manifestPath, *dataDir, cp.Config)
		if err != nil {
			log.Fatalf("ERROR: Failed to load manifest: %v", err)
		}
		log.Printf("Evaluating %d samples, class counts %v\n", dataset.Len(), dataset.ClassCounts())
		src = dataset
	}

	cm := train.NewConfusionMatrix()
	loss, acc, preds := train.EvaluateNetwork(net, src, cm)

	log.Printf("Loss: %.4f, accuracy: %.4f\n", loss, acc)
	log.Printf("Confusion matrix:\n%s", cm.String())
	for _, m := range cm.PerClass() {
		log.Printf("%-10s precision %.4f  recall %.4f  f1 %.4f  (%d samples)\n",
			m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}

	if *listMisses && dataset != nil {
		misses := 0
		for i, s := range dataset.Samples() {
			if preds[i] != s.Index {
				log.Printf("MISS: %s  true=%s  predicted=%s\n",
					s.Path, s.Label, emotion.Emotions[preds[i]])
				misses++
			}
		}
		log.Printf("%d of %d misclassified\n", misses, dataset.Len())
	}

	if *reportPath != "" {
		doc := report{
			Checkpoint: *checkpointPath,
			Samples:    src.Len(),
			Loss:       loss,
			Accuracy:   acc,
			PerClass:   cm.PerClass(),
			Confusion:  cm.Counts,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			log.Fatalf("ERROR: Failed to marshal report: %v", err)
		}
		if err := os.WriteFile(*reportPath, data, 0644); err != nil {
			log.Fatalf("ERROR: Failed to write report: %v", err)
		}
		log.Printf("Report: %s\n", *reportPath)
	}

	if *plotPath != "" {
		if err := cm.SavePNG(*plotPath); err != nil {
			log.Fatalf("ERROR: Failed to render confusion matrix: %v", err)
		}
		log.Printf("Confusion matrix plot: %s\n", *plotPath)
	}
}

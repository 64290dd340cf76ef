package main

import (
	"flag"
	"log"
	"os"

	"emotion-recognition/emotion"
	"emotion-recognition/export"
	"emotion-recognition/train"
)

func main() {
	checkpointPath := flag.String("checkpoint", "outputs/best_model.ckpt", "Checkpoint to export")
	onnxPath := flag.String("onnx", "outputs/emotion_classifier.onnx", "ONNX output path (empty to skip)")
	coremlPath := flag.String("coreml", "outputs/EmotionClassifier.mlmodel", "Core ML output path (empty to skip)")
	metadataPath := flag.String("metadata", "outputs/metadata.json", "Metadata sidecar path (empty to skip)")
	seed := flag.Int64("seed", 42, "Seed for network reconstruction")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)

	cp, err := train.LoadCheckpoint(*checkpointPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load checkpoint: %v", err)
	}
	log.Printf("Loaded checkpoint: epoch %d, val_acc %.4f\n", cp.Epoch, cp.ValAcc)

	net, err := train.RestoreNetwork(cp, *seed)
	if err != nil {
		log.Fatalf("ERROR: Failed to restore network: %v", err)
	}

	graph, err := export.BuildGraph(net, cp.Config, cp.ValAcc)
	if err != nil {
		log.Fatalf("ERROR: Failed to build export graph: %v", err)
	}

	exported := false
	if *onnxPath != "" {
		if err := export.WriteONNX(graph, *onnxPath); err != nil {
			log.Fatalf("ERROR: ONNX export failed: %v", err)
		}
		info, _ := os.Stat(*onnxPath)
		log.Printf("ONNX model: %s (%d bytes)\n", *onnxPath, info.Size())
		exported = true
	}

	if *coremlPath != "" {
		if err := export.WriteCoreML(graph, *coremlPath); err != nil {
			log.Fatalf("ERROR: Core ML export failed: %v", err)
		}
		info, _ := os.Stat(*coremlPath)
		log.Printf("Core ML model: %s (%d bytes)\n", *coremlPath, info.Size())
		exported = true
	}

	if *metadataPath != "" {
		if err := emotion.WriteMetadata(*metadataPath, emotion.NewMetadata(cp.Config, cp.ValAcc)); err != nil {
			log.Fatalf("ERROR: Failed to write metadata: %v", err)
		}
		log.Printf("Metadata sidecar: %s\n", *metadataPath)
	}

	if !exported {
		log.Println("Nothing to export: both -onnx and -coreml were empty")
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"emotion-recognition/infer"
)

// errorPayload is printed on any failure so callers always get JSON on
// stdout, with a safe default label.
type errorPayload struct {
	Error      string  `json:"error"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

func fail(message string) {
	out, _ := json.Marshal(errorPayload{
		Error:      message,
		Emotion:    "neutral",
		Confidence: 0.5,
	})
	fmt.Println(string(out))
	os.Exit(1)
}

func main() {
	modelPath := flag.String("model", "outputs/best_model.ckpt", "Trained checkpoint path")
	metadataPath := flag.String("metadata", "outputs/metadata.json", "Metadata sidecar path")
	seed := flag.Int64("seed", 0, "Fallback seed (0 = time-based)")
	flag.Parse()

	if flag.NArg() != 1 {
		fail("usage: classify_audio [flags] <audio-file>")
	}
	audioPath := flag.Arg(0)

	if _, err := os.Stat(audioPath); err != nil {
		fail(fmt.Sprintf("audio file not found: %s", audioPath))
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}

	service, err := infer.NewService(*modelPath, *metadataPath, s)
	if err != nil {
		fail(fmt.Sprintf("failed to initialize classifier: %v", err))
	}

	result := service.Classify(context.Background(), audioPath)

	out, err := json.Marshal(result)
	if err != nil {
		fail(fmt.Sprintf("failed to encode result: %v", err))
	}
	fmt.Println(string(out))
}

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
)

func trainedGraph(t *testing.T) *Graph {
	t.Helper()
	cfg := emotion.DefaultFeatureConfig()
	net := nn.NewEmotionClassifier(cfg.NMels, emotion.NumClasses, 0.3, 1)
	g, err := BuildGraph(net, cfg, 0.9)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	return g
}

func TestBuildGraphShapes(t *testing.T) {
	t.Parallel()

	g := trainedGraph(t)

	if len(g.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(g.Blocks))
	}
	wantChannels := []int{32, 64, 128}
	in := g.Config.NMels
	for i, block := range g.Blocks {
		if block.InChannels != in || block.OutChannels != wantChannels[i] {
			t.Errorf("block %d: channels %d->%d, want %d->%d",
				i, block.InChannels, block.OutChannels, in, wantChannels[i])
		}
		if len(block.Weight) != block.OutChannels*block.InChannels*block.Kernel {
			t.Errorf("block %d: weight length %d", i, len(block.Weight))
		}
		if len(block.Gamma) != block.OutChannels || len(block.Mean) != block.OutChannels {
			t.Errorf("block %d: batchnorm vectors sized %d/%d", i, len(block.Gamma), len(block.Mean))
		}
		in = block.OutChannels
	}

	if g.Hidden.In != 128 || g.Hidden.Out != 64 {
		t.Errorf("hidden layer %dx%d, want 128x64", g.Hidden.In, g.Hidden.Out)
	}
	if g.Output.In != 64 || g.Output.Out != emotion.NumClasses {
		t.Errorf("output layer %dx%d, want 64x%d", g.Output.In, g.Output.Out, emotion.NumClasses)
	}
}

func TestEncodeONNXValidates(t *testing.T) {
	t.Parallel()

	data, err := EncodeONNX(trainedGraph(t))
	if err != nil {
		t.Fatalf("EncodeONNX failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty encoding")
	}
	if err := ValidateONNX(data); err != nil {
		t.Fatalf("ValidateONNX rejected a fresh encoding: %v", err)
	}
}

func TestValidateONNXRejectsCorruption(t *testing.T) {
	t.Parallel()

	if err := ValidateONNX([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error for garbage bytes")
	}
	if err := ValidateONNX(nil); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestWriteONNXCreatesArtifact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := WriteONNX(trainedGraph(t), path); err != nil {
		t.Fatalf("WriteONNX failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("artifact is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if err := ValidateONNX(data); err != nil {
		t.Errorf("written artifact fails validation: %v", err)
	}
}

func TestCorruptedEncodingIsNeverWritten(t *testing.T) {
	t.Parallel()

	data, err := EncodeONNX(trainedGraph(t))
	if err != nil {
		t.Fatalf("EncodeONNX failed: %v", err)
	}
	corrupted := data[:len(data)-5] // truncates the trailing opset field

	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	if err := writeONNXArtifact(corrupted, path); err == nil {
		t.Fatal("expected validation error for truncated model")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("artifact exists after failed validation: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed write left %d files behind", len(entries))
	}
}

func TestWriteONNXLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := WriteONNX(trainedGraph(t), filepath.Join(dir, "model.onnx")); err != nil {
		t.Fatalf("WriteONNX failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestEncodeCoreMLValidates(t *testing.T) {
	t.Parallel()

	data, err := EncodeCoreML(trainedGraph(t))
	if err != nil {
		t.Fatalf("EncodeCoreML failed: %v", err)
	}
	if err := ValidateCoreML(data); err != nil {
		t.Fatalf("ValidateCoreML rejected a fresh encoding: %v", err)
	}
}

func TestWriteCoreMLCreatesArtifact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Model.mlmodel")
	if err := WriteCoreML(trainedGraph(t), path); err != nil {
		t.Fatalf("WriteCoreML failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("artifact is empty")
	}
}

func TestValidateCoreMLRejectsEmptyNetwork(t *testing.T) {
	t.Parallel()

	if err := ValidateCoreML(nil); err == nil {
		t.Error("expected error for empty model")
	}
}

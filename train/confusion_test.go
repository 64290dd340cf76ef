package train

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfusionMatrixAccuracy(t *testing.T) {
	t.Parallel()

	cm := NewConfusionMatrix()
	cm.Add(0, 0)
	cm.Add(0, 0)
	cm.Add(1, 1)
	cm.Add(2, 4)

	if got := cm.Accuracy(); got != 0.75 {
		t.Errorf("Accuracy() = %.4f, want 0.75", got)
	}

	sums := cm.RowSums()
	if sums[0] != 2 || sums[1] != 1 || sums[2] != 1 {
		t.Errorf("unexpected row sums %v", sums)
	}
}

func TestPerClassMetrics(t *testing.T) {
	t.Parallel()

	cm := NewConfusionMatrix()
	cm.Add(0, 0)
	cm.Add(0, 0)
	cm.Add(0, 1)
	cm.Add(1, 1)

	metrics := cm.PerClass()
	if len(metrics) != len(cm.Labels) {
		t.Fatalf("got %d metric rows, want %d", len(metrics), len(cm.Labels))
	}

	m0 := metrics[0]
	if m0.Support != 3 || m0.Precision != 1.0 || math.Abs(m0.Recall-2.0/3.0) > 1e-12 {
		t.Errorf("class 0 metrics %+v", m0)
	}
	m1 := metrics[1]
	if m1.Support != 1 || m1.Precision != 0.5 || m1.Recall != 1.0 {
		t.Errorf("class 1 metrics %+v", m1)
	}

	// untouched classes score zero instead of NaN
	for _, m := range metrics[2:] {
		if m.Precision != 0 || m.Recall != 0 || m.F1 != 0 {
			t.Errorf("empty class %q has nonzero metrics %+v", m.Label, m)
		}
	}
}

func TestConfusionMatrixString(t *testing.T) {
	t.Parallel()

	cm := NewConfusionMatrix()
	cm.Add(1, 3)
	rendered := cm.String()

	for _, label := range cm.Labels {
		if !strings.Contains(rendered, label) {
			t.Errorf("rendered table missing label %q", label)
		}
	}
}

func TestConfusionMatrixSavePNG(t *testing.T) {
	t.Parallel()

	cm := NewConfusionMatrix()
	for i := 0; i < len(cm.Labels); i++ {
		for j := 0; j < len(cm.Labels); j++ {
			cm.Counts[i][j] = i + j
		}
	}

	path := filepath.Join(t.TempDir(), "confusion.png")
	if err := cm.SavePNG(path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestCheckpointSaveIsAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")

	cp := Checkpoint{
		Epoch:  3,
		ValAcc: 0.8,
		Params: map[string][]float64{"w": {1, 2, 3}},
	}
	if err := SaveCheckpoint(path, cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
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

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.Epoch != 3 || loaded.ValAcc != 0.8 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if len(loaded.Params["w"]) != 3 {
		t.Errorf("parameters not preserved: %v", loaded.Params)
	}
}

func TestLoadCheckpointRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.ckpt")
	if err := os.WriteFile(path, []byte("not a checkpoint"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadCheckpoint(path); err == nil {
		t.Error("expected error for corrupt checkpoint")
	}
}

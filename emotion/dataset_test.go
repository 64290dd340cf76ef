package emotion

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func TestLoadManifestWithHeader(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "path,label\nclips/a.wav,happy\nclips/b.wav,sad\n")
	dataset, err := LoadManifest(path, "/data", DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	if dataset.Len() != 2 {
		t.Fatalf("got %d samples, want 2", dataset.Len())
	}
	samples := dataset.Samples()
	if samples[0].Path != filepath.Join("/data", "clips/a.wav") {
		t.Errorf("unexpected resolved path %q", samples[0].Path)
	}
	if samples[0].Index != 0 || samples[1].Index != 1 {
		t.Errorf("unexpected class indices %d, %d", samples[0].Index, samples[1].Index)
	}
}

func TestLoadManifestRejectsUnknownLabel(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "clips/a.wav,happy\nclips/b.wav,bored\n")
	if _, err := LoadManifest(path, ".", DefaultFeatureConfig()); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestSampleSubstitutesSilenceForMissingFile(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "does/not/exist.wav,angry\n")
	dataset, err := LoadManifest(path, t.TempDir(), DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	spec, idx := dataset.Sample(0)
	if idx != 2 {
		t.Errorf("got class index %d, want 2", idx)
	}
	rows, cols := spec.Dims()
	cfg := DefaultFeatureConfig()
	if rows != cfg.NMels || cols != cfg.TimeSteps {
		t.Fatalf("substitute shape (%d, %d), want (%d, %d)", rows, cols, cfg.NMels, cfg.TimeSteps)
	}

	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}
	if !mat.Equal(spec, extractor.Silence()) {
		t.Fatal("substitute does not match the silence spectrogram")
	}
}

func TestSplitIsDeterministicAndDisjoint(t *testing.T) {
	t.Parallel()

	path := writeManifest(t,
		"a.wav,happy\nb.wav,sad\nc.wav,angry\nd.wav,surprised\ne.wav,neutral\n"+
			"f.wav,happy\ng.wav,sad\nh.wav,angry\ni.wav,surprised\nj.wav,neutral\n")
	dataset, err := LoadManifest(path, ".", DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	train1, val1 := dataset.Split(0.3, 11)
	train2, val2 := dataset.Split(0.3, 11)

	if val1.Len() != 3 || train1.Len() != 7 {
		t.Fatalf("split sizes %d/%d, want 7/3", train1.Len(), val1.Len())
	}
	for i, s := range val1.Samples() {
		if s.Path != val2.Samples()[i].Path {
			t.Fatal("equal seeds produced different validation splits")
		}
	}
	for i, s := range train1.Samples() {
		if s.Path != train2.Samples()[i].Path {
			t.Fatal("equal seeds produced different training splits")
		}
	}

	seen := map[string]bool{}
	for _, s := range train1.Samples() {
		seen[s.Path] = true
	}
	for _, s := range val1.Samples() {
		if seen[s.Path] {
			t.Fatalf("sample %s appears in both splits", s.Path)
		}
	}
}

func TestClassCounts(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "a.wav,happy\nb.wav,happy\nc.wav,neutral\n")
	dataset, err := LoadManifest(path, ".", DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	counts := dataset.ClassCounts()
	want := []int{2, 0, 0, 0, 1}
	for i, c := range counts {
		if c != want[i] {
			t.Errorf("class %d count %d, want %d", i, c, want[i])
		}
	}
}

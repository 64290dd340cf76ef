package emotion

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSyntheticSpectrogramShapeAndRange(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	rng := rand.New(rand.NewSource(1))

	for _, label := range Emotions {
		spec, err := SyntheticSpectrogram(cfg, label, rng)
		if err != nil {
			t.Fatalf("generation failed for %q: %v", label, err)
		}
		rows, cols := spec.Dims()
		if rows != cfg.NMels || cols != cfg.TimeSteps {
			t.Fatalf("%q: shape (%d, %d), want (%d, %d)", label, rows, cols, cfg.NMels, cfg.TimeSteps)
		}
		for m := 0; m < rows; m++ {
			for ts := 0; ts < cols; ts++ {
				v := spec.At(m, ts)
				if v < dbFloor || v > 0 {
					t.Fatalf("%q: value %.3f outside [%.1f, 0]", label, v, dbFloor)
				}
			}
		}
	}

	if _, err := SyntheticSpectrogram(cfg, "bored", rng); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestSyntheticSetIsBalancedAndSeeded(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	set, err := SyntheticSet(cfg, 3, 9)
	if err != nil {
		t.Fatalf("SyntheticSet failed: %v", err)
	}
	if len(set) != 3*NumClasses {
		t.Fatalf("got %d samples, want %d", len(set), 3*NumClasses)
	}

	counts := make([]int, NumClasses)
	for _, s := range set {
		counts[s.Index]++
	}
	for i, c := range counts {
		if c != 3 {
			t.Errorf("class %d has %d samples, want 3", i, c)
		}
	}

	again, err := SyntheticSet(cfg, 3, 9)
	if err != nil {
		t.Fatalf("SyntheticSet failed: %v", err)
	}
	for i := range set {
		if !mat.Equal(set[i].Spec, again[i].Spec) {
			t.Fatal("equal seeds produced different synthetic sets")
		}
	}
}

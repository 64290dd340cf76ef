package emotion

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func sineWave(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

func TestSpectrogramShapeIsFixed(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}

	lengths := []int{
		cfg.SampleRate / 4,      // shorter than the 1s minimum
		cfg.TargetSamples(),     // exact
		cfg.TargetSamples() * 3, // longer, center-trimmed
	}
	for _, n := range lengths {
		spec, err := extractor.FromSamples(sineWave(440, cfg.SampleRate, n))
		if err != nil {
			t.Fatalf("extraction failed for %d samples: %v", n, err)
		}
		rows, cols := spec.Dims()
		if rows != cfg.NMels || cols != cfg.TimeSteps {
			t.Errorf("input of %d samples produced shape (%d, %d), want (%d, %d)",
				n, rows, cols, cfg.NMels, cfg.TimeSteps)
		}
	}
}

func TestSpectrogramValuesWithinDBRange(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	samples := make([]float64, cfg.TargetSamples())
	for i := range samples {
		samples[i] = rng.NormFloat64() * 0.1
	}

	spec, err := extractor.FromSamples(samples)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}

	rows, cols := spec.Dims()
	for m := 0; m < rows; m++ {
		for ts := 0; ts < cols; ts++ {
			v := spec.At(m, ts)
			if v < dbFloor || v > 0 {
				t.Fatalf("value %.3f at (%d, %d) outside [%.1f, 0]", v, m, ts, dbFloor)
			}
		}
	}
}

func TestSpectrogramIsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}

	samples := sineWave(330, cfg.SampleRate, cfg.TargetSamples())
	first, err := extractor.FromSamples(samples)
	if err != nil {
		t.Fatalf("first extraction failed: %v", err)
	}
	second, err := extractor.FromSamples(samples)
	if err != nil {
		t.Fatalf("second extraction failed: %v", err)
	}

	rows, cols := first.Dims()
	for m := 0; m < rows; m++ {
		for ts := 0; ts < cols; ts++ {
			if first.At(m, ts) != second.At(m, ts) {
				t.Fatalf("extraction not deterministic at (%d, %d)", m, ts)
			}
		}
	}
}

func TestSilenceMatchesZeroBufferExtraction(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}

	want, err := extractor.FromSamples(make([]float64, cfg.TargetSamples()))
	if err != nil {
		t.Fatalf("zero-buffer extraction failed: %v", err)
	}

	spec := extractor.Silence()
	if !mat.Equal(spec, want) {
		t.Fatal("Silence() differs from extracting an all-zero clip")
	}

	// zero power normalizes against its own clamped peak: filled frames
	// sit at 0 dB, the padding frames past the last STFT frame at the floor
	rows, cols := spec.Dims()
	if v := spec.At(0, 0); v != 0 {
		t.Errorf("first silence frame %.3f dB, want 0", v)
	}
	if v := spec.At(rows-1, cols-1); v != dbFloor {
		t.Errorf("last silence frame %.3f dB, want %.1f", v, dbFloor)
	}
}

func TestSilenceReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	extractor, err := NewExtractor(DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}

	first := extractor.Silence()
	first.Set(0, 0, -42)
	second := extractor.Silence()
	if second.At(0, 0) == -42 {
		t.Error("mutating one silence tensor leaked into the next")
	}
}

func TestMelFilterBankCoversSpectrum(t *testing.T) {
	t.Parallel()

	cfg := DefaultFeatureConfig()
	bank := melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate)
	if len(bank) != cfg.NMels {
		t.Fatalf("got %d filters, want %d", len(bank), cfg.NMels)
	}

	for m, filter := range bank {
		var sum float64
		for _, w := range filter {
			if w < 0 {
				t.Fatalf("filter %d has negative weight", m)
			}
			sum += w
		}
		if sum == 0 {
			t.Errorf("filter %d is all-zero", m)
		}
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Parallel()

	bad := DefaultFeatureConfig()
	bad.NFFT = 1000 // not a power of two
	if err := bad.Validate(); err == nil {
		t.Error("expected error for non-power-of-two n_fft")
	}

	bad = DefaultFeatureConfig()
	bad.HopLength = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero hop length")
	}
}

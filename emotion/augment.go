package emotion

// Training-Time Augmentation
//
// Label-preserving spectrogram perturbations: additive Gaussian noise, a
// random gain factor, and SpecAugment-style time and frequency masking.
// Augmentation is stochastic and must only run on the training split; the
// dataset requires the flag to be set explicitly per split.

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Augmentor applies randomized perturbations to a spectrogram. With every
// gate disabled (zero noise, unity gain, zero mask probabilities) Apply is
// the identity transform.
type Augmentor struct {
	NoiseStddev  float64
	GainMin      float64
	GainMax      float64
	TimeMaskProb float64
	FreqMaskProb float64
	MaxTimeMask  int // widest time mask, exclusive
	MaxFreqMask  int // tallest frequency mask, exclusive

	rng *rand.Rand
}

// NewAugmentor returns an augmentor with the standard training policy.
func NewAugmentor(seed int64) *Augmentor {
	return &Augmentor{
		NoiseStddev:  0.01,
		GainMin:      0.9,
		GainMax:      1.1,
		TimeMaskProb: 0.5,
		FreqMaskProb: 0.5,
		MaxTimeMask:  5,
		MaxFreqMask:  8,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Apply returns a perturbed copy of the spectrogram. The output shape
// always equals the input shape; values may leave the input's numeric range.
func (a *Augmentor) Apply(spec *mat.Dense) *mat.Dense {
	rows, cols := spec.Dims()
	out := mat.DenseCopyOf(spec)

	if a.NoiseStddev > 0 {
		for m := 0; m < rows; m++ {
			for t := 0; t < cols; t++ {
				out.Set(m, t, out.At(m, t)+a.rng.NormFloat64()*a.NoiseStddev)
			}
		}
	}

	if a.GainMin != 1 || a.GainMax != 1 {
		gain := a.GainMin + a.rng.Float64()*(a.GainMax-a.GainMin)
		out.Scale(gain, out)
	}

	if a.TimeMaskProb > 0 && a.rng.Float64() < a.TimeMaskProb {
		width := 1 + a.rng.Intn(maxInt(1, a.MaxTimeMask-1))
		start := a.rng.Intn(maxInt(1, cols-width))
		for t := start; t < start+width && t < cols; t++ {
			for m := 0; m < rows; m++ {
				out.Set(m, t, 0)
			}
		}
	}

	if a.FreqMaskProb > 0 && a.rng.Float64() < a.FreqMaskProb {
		height := 1 + a.rng.Intn(maxInt(1, a.MaxFreqMask-1))
		start := a.rng.Intn(maxInt(1, rows-height))
		for m := start; m < start+height && m < rows; m++ {
			for t := 0; t < cols; t++ {
				out.Set(m, t, 0)
			}
		}
	}

	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

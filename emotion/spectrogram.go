package emotion

// Log-Mel Spectrogram Extraction
//
// Converts a raw waveform into the fixed-shape feature tensor the network
// consumes. Pipeline:
//
// 1. Pad short clips to a 1 second minimum
// 2. Trim from center (or zero-pad at the end) to the exact target length
// 3. Peak-normalize amplitude
// 4. Short-time Fourier transform with a Hann window (centered frames,
//    reflect padding), power spectrum per frame
// 5. Mel filter bank (triangular filters, HTK scale) over the power bins
// 6. Power to dB referenced to the clip's own maximum, floored at -80 dB
// 7. Pad or truncate the time axis to exactly TimeSteps frames
//
// The output shape is (NMels, TimeSteps) for every input, regardless of the
// source duration. That guarantee is what lets the network fix its input
// layout at build time.

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"
)

const (
	dbFloor  = -80.0
	powerEps = 1e-10
)

// Extractor converts waveforms into log-mel spectrograms. It precomputes
// the Hann window and mel filter bank for its configuration and is safe for
// concurrent use.
type Extractor struct {
	cfg     FeatureConfig
	window  []float64
	melBank [][]float64 // NMels rows of NFFT/2+1 filter weights
	silence *mat.Dense
}

// NewExtractor builds an extractor for the given configuration.
func NewExtractor(cfg FeatureConfig) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.NFFT),
		melBank: melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate),
	}
	silence, err := e.FromSamples(make([]float64, cfg.TargetSamples()))
	if err != nil {
		return nil, err
	}
	e.silence = silence
	return e, nil
}

// Config returns the extractor's feature configuration.
func (e *Extractor) Config() FeatureConfig { return e.cfg }

// FromSamples computes the (NMels, TimeSteps) log-mel spectrogram of a mono
// waveform already at the target sample rate.
func (e *Extractor) FromSamples(samples []float64) (*mat.Dense, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}

	clip := e.fitToTarget(samples)
	peakNormalize(clip)

	frames := e.stftPower(clip)
	spec := mat.NewDense(e.cfg.NMels, e.cfg.TimeSteps, nil)

	// mel projection, clamped to the fixed frame count
	limit := len(frames)
	if limit > e.cfg.TimeSteps {
		limit = e.cfg.TimeSteps
	}
	maxPower := powerEps
	for t := 0; t < limit; t++ {
		for m := 0; m < e.cfg.NMels; m++ {
			var sum float64
			filter := e.melBank[m]
			for k, w := range filter {
				if w != 0 {
					sum += w * frames[t][k]
				}
			}
			spec.Set(m, t, sum)
			if sum > maxPower {
				maxPower = sum
			}
		}
	}

	// power -> dB referenced to the clip's own peak; padded frames stay at
	// the floor so short clips and long clips share the same scale
	for m := 0; m < e.cfg.NMels; m++ {
		for t := 0; t < e.cfg.TimeSteps; t++ {
			if t >= limit {
				spec.Set(m, t, dbFloor)
				continue
			}
			power := spec.At(m, t)
			if power < powerEps {
				power = powerEps
			}
			db := 10 * math.Log10(power/maxPower)
			if db < dbFloor {
				db = dbFloor
			}
			spec.Set(m, t, db)
		}
	}

	return spec, nil
}

// Silence returns the spectrogram of an all-zero clip, used as the
// substitute when a source file cannot be decoded. It is precomputed at
// construction from a real zero buffer, so substituted samples are exactly
// what FromSamples would produce for digital silence: filled frames at
// 0 dB (zero power normalizes against its own clamped peak) and padding
// frames at the floor.
func (e *Extractor) Silence() *mat.Dense {
	return mat.DenseCopyOf(e.silence)
}

// fitToTarget pads a clip to the minimum length, then center-trims or
// end-pads it to the exact target sample count.
func (e *Extractor) fitToTarget(samples []float64) []float64 {
	minLen := e.cfg.MinSamples()
	if len(samples) < minLen {
		padded := make([]float64, minLen)
		copy(padded, samples)
		samples = padded
	}

	target := e.cfg.TargetSamples()
	switch {
	case len(samples) > target:
		start := (len(samples) - target) / 2
		clip := make([]float64, target)
		copy(clip, samples[start:start+target])
		return clip
	case len(samples) < target:
		clip := make([]float64, target)
		copy(clip, samples)
		return clip
	default:
		clip := make([]float64, target)
		copy(clip, samples)
		return clip
	}
}

// stftPower returns the per-frame power spectrum (NFFT/2+1 bins) using
// centered frames with reflect padding.
func (e *Extractor) stftPower(samples []float64) [][]float64 {
	nfft := e.cfg.NFFT
	hop := e.cfg.HopLength
	half := nfft / 2

	padded := reflectPad(samples, half)
	frameCount := 1 + len(samples)/hop

	bins := half + 1
	frames := make([][]float64, 0, frameCount)
	buffer := make([]float64, nfft)

	for f := 0; f < frameCount; f++ {
		offset := f * hop
		if offset+nfft > len(padded) {
			break
		}
		for i := 0; i < nfft; i++ {
			buffer[i] = padded[offset+i] * e.window[i]
		}

		spectrum := fft.FFTReal(buffer)
		power := make([]float64, bins)
		for k := 0; k < bins; k++ {
			mag := cmplx.Abs(spectrum[k])
			power[k] = mag * mag
		}
		frames = append(frames, power)
	}

	return frames
}

func hannWindow(size int) []float64 {
	window := make([]float64, size)
	if size == 1 {
		window[0] = 1
		return window
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos((2*math.Pi*float64(i))/float64(size-1)))
	}
	return window
}

// reflectPad mirrors pad samples around each end of the signal.
func reflectPad(samples []float64, pad int) []float64 {
	n := len(samples)
	out := make([]float64, n+2*pad)
	copy(out[pad:], samples)
	for i := 0; i < pad; i++ {
		src := i + 1
		if src >= n {
			src = n - 1
		}
		out[pad-1-i] = samples[src]

		src = n - 2 - i
		if src < 0 {
			src = 0
		}
		out[pad+n+i] = samples[src]
	}
	return out
}

func peakNormalize(samples []float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	inv := 1 / peak
	for i := range samples {
		samples[i] *= inv
	}
}

// melFilterBank builds NMels triangular filters over NFFT/2+1 linear bins,
// spanning 0 Hz to the Nyquist frequency on the HTK mel scale.
func melFilterBank(nMels, nfft, sampleRate int) [][]float64 {
	bins := nfft/2 + 1
	nyquist := float64(sampleRate) / 2

	melLow := hzToMel(0)
	melHigh := hzToMel(nyquist)

	// nMels+2 equally spaced mel points define the triangle edges
	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		melPoints[i] = melLow + (melHigh-melLow)*float64(i)/float64(nMels+1)
	}

	binFreqs := make([]float64, bins)
	for k := range binFreqs {
		binFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	bank := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		left := melToHz(melPoints[m])
		center := melToHz(melPoints[m+1])
		right := melToHz(melPoints[m+2])

		filter := make([]float64, bins)
		for k, freq := range binFreqs {
			switch {
			case freq <= left || freq >= right:
				// outside the triangle
			case freq <= center:
				filter[k] = (freq - left) / (center - left)
			default:
				filter[k] = (right - freq) / (right - center)
			}
		}
		bank[m] = filter
	}
	return bank
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

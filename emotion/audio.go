package emotion

// Audio Loading
//
// Decodes an audio file into mono float64 samples at the configured sample
// rate. WAV files are parsed directly and resampled in-process; everything
// else is converted through FFmpeg first.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"emotion-recognition/wav"
)

// LoadAudio decodes path into mono samples at cfg.SampleRate.
func LoadAudio(path string, cfg FeatureConfig) ([]float64, error) {
	wavPath := path
	cleanup := false

	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		converted, err := wav.ConvertToWAV(path, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", path, err)
		}
		wavPath = converted
		cleanup = converted != path
	}
	if cleanup {
		defer os.Remove(wavPath)
	}

	info, err := wav.ReadWavInfo(wavPath)
	if err != nil && !cleanup {
		// a .wav the direct parser rejects (float, 24-bit, compressed):
		// rewrite it to 16-bit PCM through FFmpeg and retry
		if reformatted, rerr := wav.ReformatWAV(wavPath, 1); rerr == nil {
			defer os.Remove(reformatted)
			info, err = wav.ReadWavInfo(reformatted)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wav %s: %w", path, err)
	}

	samples, err := wav.WavBytesToSamples(info.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode samples from %s: %w", path, err)
	}
	samples = wav.DownmixToMono(samples, info.Channels)

	if info.SampleRate != cfg.SampleRate {
		samples, err = wav.Resample(samples, info.SampleRate, cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to resample %s: %w", path, err)
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio data in %s", path)
	}
	return samples, nil
}

package wav

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// CheckFFmpegAvailable reports whether the ffmpeg binary can be found.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

// ConvertToWAV converts any audio file FFmpeg understands into a temporary
// 16-bit PCM WAV with the requested channel count. The caller owns the
// returned file and should remove it when done. Plain WAV input is passed
// through untouched when FFmpeg is unavailable.
func ConvertToWAV(path string, channels int) (string, error) {
	if channels < 1 {
		channels = 1
	}

	if err := CheckFFmpegAvailable(); err != nil {
		if strings.EqualFold(filepath.Ext(path), ".wav") {
			return path, nil
		}
		return "", err
	}

	return ffmpegToPCM16(path, channels)
}

// ReformatWAV force-rewrites a WAV file into 16-bit PCM with the given
// channel count. Unlike ConvertToWAV there is no passthrough: callers use
// it when the file's current WAV encoding is unsupported, so returning the
// input unchanged would be useless.
func ReformatWAV(path string, channels int) (string, error) {
	if channels < 1 {
		channels = 1
	}
	if err := CheckFFmpegAvailable(); err != nil {
		return "", err
	}
	return ffmpegToPCM16(path, channels)
}

func ffmpegToPCM16(path string, channels int) (string, error) {
	outPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("conv_%d%s", time.Now().UnixNano(), ".wav"))

	cmd := exec.Command("ffmpeg",
		"-y",
		"-i", path,
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(channels),
		"-loglevel", "error",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg convert %s: %w (%s)", path, err, strings.TrimSpace(string(out)))
	}

	return outPath, nil
}

// Resample converts mono samples from srcRate to dstRate using the pure Go
// soxr-style resampler. Same-rate input is returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate == dstRate {
		return samples, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", srcRate, dstRate)
	}

	config := &resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	rs, err := resampling.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := rs.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return out, nil
}

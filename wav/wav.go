package wav

// WAV Reading and Writing
//
// Minimal RIFF/WAVE support for the audio pipeline: reading mono or stereo
// 16-bit PCM files into float64 sample buffers and writing PCM buffers back
// out. Anything that is not already 16-bit PCM WAV goes through the FFmpeg
// conversion path in convert.go first.

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// WavInfo describes a decoded WAV file.
type WavInfo struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Duration   float64
	Data       []byte // raw PCM bytes from the data chunk
}

// ReadWavInfo parses the RIFF header of a WAV file and returns the raw PCM
// payload together with the format metadata.
func ReadWavInfo(path string) (*WavInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav file: %w", err)
	}
	if len(raw) < 44 {
		return nil, errors.New("file too short to be a valid WAV")
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, errors.New("missing RIFF/WAVE header")
	}

	info := &WavInfo{}
	pos := 12
	var haveFmt bool
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(raw) {
			chunkSize = len(raw) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(raw[body : body+2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported audio format %d (want PCM)", audioFormat)
			}
			info.Channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			info.BitDepth = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
			haveFmt = true
		case "data":
			info.Data = raw[body : body+chunkSize]
		}

		// chunks are word aligned
		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++
		}
	}

	if !haveFmt || info.Data == nil {
		return nil, errors.New("missing fmt or data chunk")
	}
	if info.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (want 16)", info.BitDepth)
	}
	if info.Channels < 1 || info.SampleRate <= 0 {
		return nil, errors.New("invalid wav format metadata")
	}

	bytesPerSecond := info.SampleRate * info.Channels * 2
	info.Duration = float64(len(info.Data)) / float64(bytesPerSecond)
	return info, nil
}

// WavBytesToSamples converts raw 16-bit little-endian PCM into float64
// samples in [-1, 1). Stereo data should be downmixed before this call.
func WavBytesToSamples(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, errors.New("odd PCM byte count")
	}
	samples := make([]float64, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float64(v) / 32768.0
	}
	return samples, nil
}

// SamplesToBytes converts float64 samples into 16-bit little-endian PCM,
// clipping anything outside [-1, 1].
func SamplesToBytes(samples []float64) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// DownmixToMono averages interleaved channels into a single channel.
func DownmixToMono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// WriteWavFile writes raw PCM bytes with a standard 44-byte RIFF header.
func WriteWavFile(path string, data []byte, sampleRate, channels, bitsPerSample int) error {
	if sampleRate <= 0 || channels < 1 {
		return errors.New("invalid wav parameters")
	}
	if bitsPerSample == 0 {
		bitsPerSample = 16
	}

	var buf bytes.Buffer
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write wav file: %w", err)
	}
	return nil
}

// WriteWavSamples writes mono float64 samples as a 16-bit PCM WAV file.
func WriteWavSamples(path string, samples []float64, sampleRate int) error {
	return WriteWavFile(path, SamplesToBytes(samples), sampleRate, 1, 16)
}

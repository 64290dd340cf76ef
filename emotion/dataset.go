package emotion

// Dataset Adapter
//
// Maps a labeled CSV manifest (path,label) onto (spectrogram, class index)
// pairs. Label validation is strict: a manifest row with a label outside
// the fixed 5-class set fails dataset construction. Decode failures at
// sample time degrade to a silence spectrogram with a warning, so a single
// corrupt file cannot abort a long training run.

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"emotion-recognition/utils"
)

// LabeledSample is one manifest row resolved against the data directory.
type LabeledSample struct {
	Path  string
	Label string
	Index int
}

// Dataset yields feature tensors and class indices for a set of labeled
// audio clips.
type Dataset struct {
	samples   []LabeledSample
	extractor *Extractor
	augmentor *Augmentor // nil outside the training split
}

// LoadManifest reads a CSV manifest with columns (path, label), resolves
// paths against dataDir and validates every label against the fixed set.
func LoadManifest(csvPath, dataDir string, cfg FeatureConfig) (*Dataset, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", csvPath, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest %s is empty", csvPath)
	}

	// optional header row
	if len(records[0]) >= 2 && records[0][0] == "path" && records[0][1] == "label" {
		records = records[1:]
	}

	samples := make([]LabeledSample, 0, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("manifest %s row %d: expected (path,label), got %d fields", csvPath, i+1, len(record))
		}
		label := record[1]
		idx, err := LabelIndex(label)
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: %w", csvPath, i+1, err)
		}
		samples = append(samples, LabeledSample{
			Path:  filepath.Join(dataDir, record[0]),
			Label: label,
			Index: idx,
		})
	}

	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}

	return &Dataset{samples: samples, extractor: extractor}, nil
}

// NewDataset wraps pre-resolved samples, mainly for tests and synthetic runs.
func NewDataset(samples []LabeledSample, cfg FeatureConfig) (*Dataset, error) {
	for _, s := range samples {
		if _, err := LabelIndex(s.Label); err != nil {
			return nil, err
		}
	}
	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Dataset{samples: samples, extractor: extractor}, nil
}

// SetAugmentor enables training-time augmentation. Must stay nil on
// validation and test splits.
func (d *Dataset) SetAugmentor(a *Augmentor) { d.augmentor = a }

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Config returns the feature configuration the dataset extracts with.
func (d *Dataset) Config() FeatureConfig { return d.extractor.Config() }

// Samples returns the underlying manifest rows.
func (d *Dataset) Samples() []LabeledSample { return d.samples }

// Sample returns the feature tensor and class index for position i. A clip
// that cannot be decoded is replaced by silence rather than failing the
// caller; the substitution is logged.
func (d *Dataset) Sample(i int) (*mat.Dense, int) {
	s := d.samples[i]

	spec, err := d.load(s.Path)
	if err != nil {
		logger := utils.GetLogger()
		logger.WarnContext(context.Background(), "substituting silence for undecodable clip",
			slog.String("path", s.Path),
			slog.Any("error", err),
		)
		spec = d.extractor.Silence()
	}

	if d.augmentor != nil {
		spec = d.augmentor.Apply(spec)
	}
	return spec, s.Index
}

func (d *Dataset) load(path string) (*mat.Dense, error) {
	samples, err := LoadAudio(path, d.extractor.Config())
	if err != nil {
		return nil, err
	}
	return d.extractor.FromSamples(samples)
}

// ClassCounts returns per-label sample counts in the fixed class order.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, NumClasses)
	for _, s := range d.samples {
		counts[s.Index]++
	}
	return counts
}

// Split partitions the dataset into train and validation subsets with a
// seeded shuffle. The validation subset never inherits the augmentor.
func (d *Dataset) Split(valFraction float64, seed int64) (*Dataset, *Dataset) {
	order := rand.New(rand.NewSource(seed)).Perm(len(d.samples))

	valSize := int(float64(len(d.samples)) * valFraction)
	if valSize < 0 {
		valSize = 0
	}
	if valSize > len(d.samples) {
		valSize = len(d.samples)
	}

	valSamples := make([]LabeledSample, 0, valSize)
	trainSamples := make([]LabeledSample, 0, len(d.samples)-valSize)
	for i, idx := range order {
		if i < valSize {
			valSamples = append(valSamples, d.samples[idx])
		} else {
			trainSamples = append(trainSamples, d.samples[idx])
		}
	}

	train := &Dataset{samples: trainSamples, extractor: d.extractor, augmentor: d.augmentor}
	val := &Dataset{samples: valSamples, extractor: d.extractor}
	return train, val
}

// Batches returns index batches in a seeded shuffled order.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) [][]int {
	if batchSize <= 0 {
		batchSize = 1
	}
	order := rng.Perm(len(d.samples))

	var batches [][]int
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		batches = append(batches, order[start:end])
	}
	return batches
}

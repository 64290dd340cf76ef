package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
)

// Checkpoint is the full training snapshot written whenever validation
// accuracy improves. It carries the feature configuration so inference and
// export never have to guess the input shape.
type Checkpoint struct {
	Epoch     int                  `msgpack:"epoch"`
	ValAcc    float64              `msgpack:"val_acc"`
	Config    emotion.FeatureConfig `msgpack:"config"`
	NClasses  int                  `msgpack:"n_classes"`
	Dropout   float64              `msgpack:"dropout"`
	Params    map[string][]float64 `msgpack:"params"`
	Optimizer nn.AdamState         `msgpack:"optimizer"`
}

// SaveCheckpoint writes the snapshot atomically: encode to a temp file in
// the target directory, then rename over the destination. A crash mid-write
// never leaves a truncated checkpoint behind.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := msgpack.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a snapshot written by SaveCheckpoint.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var cp Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	if cp.Params == nil {
		return cp, fmt.Errorf("checkpoint %s has no parameters", path)
	}
	return cp, nil
}

// RestoreNetwork rebuilds the network a checkpoint was taken from and
// loads its weights.
func RestoreNetwork(cp Checkpoint, seed int64) (*nn.Network, error) {
	nClasses := cp.NClasses
	if nClasses == 0 {
		nClasses = emotion.NumClasses
	}
	net := nn.NewEmotionClassifier(cp.Config.NMels, nClasses, cp.Dropout, seed)
	if err := net.LoadStateMap(cp.Params); err != nil {
		return nil, fmt.Errorf("failed to restore network: %w", err)
	}
	return net, nil
}

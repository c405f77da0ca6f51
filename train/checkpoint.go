// Package train drives the training loop, evaluation and inference for the
// dual-tower forecaster. The trainer exclusively owns the model parameters
// while it runs; checkpoints are the only way state leaves it.
package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/pkg/types"
)

const checkpointVersion = 1

// Checkpoint is the durable snapshot of a training run: the trainable
// weights, the training-time normalization statistics, the frozen text
// model's identity (not its weights — those live behind the embedding API),
// and enough metadata to reproduce and validate a load.
type Checkpoint struct {
	Version   int    `json:"version"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`

	Epoch   int     `json:"epoch"`
	ValLoss float64 `json:"val_loss"`

	// TextModel identifies the pretrained representation model the run was
	// trained against. A predictor wired to a different model is rejected.
	TextModel string `json:"text_model"`

	Network model.NetworkConfig    `json:"network"`
	State   map[string][][]float64 `json:"state"`
	Norm    *model.Normalizer      `json:"norm"`

	Window         int       `json:"window"`
	TextLookback   int       `json:"text_lookback"`
	TargetFeatures []int     `json:"target_features"`
	TargetWeights  []float64 `json:"target_weights"`
}

// SaveCheckpoint writes the checkpoint atomically: the JSON goes to a
// temporary file in the destination directory which is then renamed into
// place, so readers never observe a partial checkpoint.
func SaveCheckpoint(path string, ck *Checkpoint) error {
	data, err := json.Marshal(ck)
	if err != nil {
		return &types.PersistenceError{Op: "encode", Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.PersistenceError{Op: "write", Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &types.PersistenceError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "publish", Path: path, Err: err}
	}
	return nil
}

// LoadCheckpoint reads and validates a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.PersistenceError{Op: "read", Path: path, Err: err}
	}
	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, &types.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	if ck.Version != checkpointVersion {
		return nil, &types.PersistenceError{
			Op: "decode", Path: path,
			Err: fmt.Errorf("unsupported checkpoint version %d", ck.Version),
		}
	}
	if ck.Norm == nil || len(ck.State) == 0 {
		return nil, &types.PersistenceError{
			Op: "decode", Path: path,
			Err: fmt.Errorf("checkpoint missing state or normalization statistics"),
		}
	}
	return &ck, nil
}

// RestoreNetwork rebuilds the trainable network from a checkpoint.
func (ck *Checkpoint) RestoreNetwork() (*model.Network, error) {
	// The rng only seeds weights that LoadState immediately overwrites.
	net, err := model.NewNetwork(ck.Network, newRand(0))
	if err != nil {
		return nil, err
	}
	if err := net.LoadState(ck.State); err != nil {
		return nil, err
	}
	return net, nil
}

func stamp() string { return time.Now().UTC().Format(time.RFC3339) }

package train

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// tinyNetConfig is small enough that a full run takes milliseconds.
func tinyNetConfig() model.NetworkConfig {
	return model.NetworkConfig{
		Features:   1,
		Horizon:    2,
		Targets:    1,
		TextDim:    4,
		EncoderDim: 3,
		FusionDim:  3,
	}
}

func tinyMeta() Meta {
	return Meta{Window: 4, TextLookback: 2, TargetFeatures: []int{0}, TextModel: "test-model"}
}

func tinyTrainConfig(dir string) Config {
	return Config{
		BatchSize:     2,
		Epochs:        10,
		LearningRate:  1e-3,
		Patience:      2,
		TargetWeights: []float64{1},
		Seed:          7,
		CheckpointDir: dir,
	}
}

// tinySamples cuts n synthetic samples with 4-month windows, 2-month single-
// target horizons and pre-filled embeddings.
func tinySamples(n int) []*types.Sample {
	out := make([]*types.Sample, n)
	for s := 0; s < n; s++ {
		window := make([][]float64, 4)
		for i := range window {
			window[i] = []float64{math.Sin(float64(s+i)) + float64(s)*0.1}
		}
		out[s] = &types.Sample{
			ProjectID:     "proj",
			AnchorMonth:   types.Month(24000 + s),
			Window:        window,
			Target:        [][]float64{{float64(s) + 4}, {float64(s) + 5}},
			TextEmbedding: []float32{0.1, 0.2, 0.3, 0.4},
		}
	}
	return out
}

func newTinyNetwork(t *testing.T) *model.Network {
	t.Helper()
	net, err := model.NewNetwork(tinyNetConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	return net
}

func TestTrainerRunsToBudget(t *testing.T) {
	cfg := tinyTrainConfig(t.TempDir())
	cfg.Epochs = 3
	cfg.Patience = 0 // disabled
	trainer, err := New(newTinyNetwork(t), cfg, tinyMeta(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := trainer.Run(tinySamples(6), tinySamples(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != BudgetExhausted {
		t.Errorf("reason %q, want %q", res.Reason, BudgetExhausted)
	}
	if res.EpochsRun != 3 {
		t.Errorf("EpochsRun = %d, want 3", res.EpochsRun)
	}
	if res.RunID == "" {
		t.Error("missing run ID")
	}
	if res.BestEpoch < 1 || res.BestEpoch > 3 {
		t.Errorf("BestEpoch = %d out of range", res.BestEpoch)
	}
	if !isFinite(res.BestValLoss) {
		t.Errorf("BestValLoss = %v", res.BestValLoss)
	}
}

func TestTrainerEarlyStopsAfterPatienceExceeded(t *testing.T) {
	// A learning rate this small leaves every weight bit-identical across
	// steps, so the validation loss never strictly improves after epoch 1.
	// With patience 2 the run must halt after epoch 1+2+1 = 4.
	cfg := tinyTrainConfig(t.TempDir())
	cfg.LearningRate = 1e-30
	cfg.Patience = 2
	trainer, err := New(newTinyNetwork(t), cfg, tinyMeta(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := trainer.Run(tinySamples(6), tinySamples(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != EarlyStopped {
		t.Fatalf("reason %q, want %q", res.Reason, EarlyStopped)
	}
	if res.BestEpoch != 1 {
		t.Errorf("BestEpoch = %d, want 1", res.BestEpoch)
	}
	if res.EpochsRun != 4 {
		t.Errorf("EpochsRun = %d, want 4 (best + patience + 1)", res.EpochsRun)
	}

	// The best checkpoint must be the best epoch's, not the last one's.
	best, err := LoadCheckpoint(res.BestPath)
	if err != nil {
		t.Fatalf("LoadCheckpoint(best): %v", err)
	}
	if best.Epoch != 1 {
		t.Errorf("best checkpoint epoch %d, want 1", best.Epoch)
	}
	latest, err := LoadCheckpoint(res.LatestPath)
	if err != nil {
		t.Fatalf("LoadCheckpoint(latest): %v", err)
	}
	if latest.Epoch != 4 {
		t.Errorf("latest checkpoint epoch %d, want 4", latest.Epoch)
	}
	if best.RunID != res.RunID || latest.RunID != res.RunID {
		t.Error("checkpoints carry a foreign run ID")
	}
}

func TestTrainerHonorsStopRequestAtEpochBoundary(t *testing.T) {
	cfg := tinyTrainConfig(t.TempDir())
	cfg.Patience = 0
	trainer, err := New(newTinyNetwork(t), cfg, tinyMeta(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	trainer.RequestStop()

	res, err := trainer.Run(tinySamples(6), tinySamples(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != StopRequested {
		t.Errorf("reason %q, want %q", res.Reason, StopRequested)
	}
	// The epoch in flight completes before the request is honored.
	if res.EpochsRun != 1 {
		t.Errorf("EpochsRun = %d, want 1", res.EpochsRun)
	}
	if _, err := LoadCheckpoint(res.LatestPath); err != nil {
		t.Errorf("latest checkpoint missing after requested stop: %v", err)
	}
}

func TestTrainerSurfacesNumericalInstability(t *testing.T) {
	trainer, err := New(newTinyNetwork(t), tinyTrainConfig(t.TempDir()), tinyMeta(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	poisoned := tinySamples(6)
	poisoned[2].Window[1][0] = math.NaN()

	_, err = trainer.Run(poisoned, tinySamples(3))
	var nerr *types.NumericalInstabilityError
	if !errors.As(err, &nerr) {
		t.Fatalf("got %v, want NumericalInstabilityError", err)
	}
	if nerr.Epoch != 1 {
		t.Errorf("instability reported at epoch %d, want 1", nerr.Epoch)
	}
}

func TestTrainerChecksSampleShapes(t *testing.T) {
	trainer, err := New(newTinyNetwork(t), tinyTrainConfig(t.TempDir()), tinyMeta(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	noEmbedding := tinySamples(6)
	noEmbedding[3].TextEmbedding = nil
	_, err = trainer.Run(noEmbedding, tinySamples(3))
	var cerr *types.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("missing embedding: got %v, want ConfigurationError", err)
	}

	wrongTarget := tinySamples(6)
	wrongTarget[0].Target = [][]float64{{1}}
	_, err = trainer.Run(wrongTarget, tinySamples(3))
	if !errors.As(err, &cerr) {
		t.Fatalf("short target: got %v, want ConfigurationError", err)
	}

	_, err = trainer.Run(nil, tinySamples(3))
	if !errors.As(err, &cerr) {
		t.Fatalf("empty train split: got %v, want ConfigurationError", err)
	}
}

func TestTrainConfigValidate(t *testing.T) {
	base := tinyTrainConfig("dir")
	cases := []func(*Config){
		func(c *Config) { c.BatchSize = 0 },
		func(c *Config) { c.Epochs = 0 },
		func(c *Config) { c.LearningRate = 0 },
		func(c *Config) { c.Patience = -1 },
		func(c *Config) { c.TargetWeights = []float64{0.5, 0.5} },
		func(c *Config) { c.TargetWeights = []float64{0.9} },
		func(c *Config) { c.TargetWeights = []float64{-1} },
		func(c *Config) { c.CheckpointDir = "" },
	}
	for i, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate(1)
		var cerr *types.ConfigurationError
		if !errors.As(err, &cerr) {
			t.Errorf("case %d: got %v, want ConfigurationError", i, err)
		}
	}
	if err := base.Validate(1); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

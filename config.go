package pulsecast

import (
	"go.uber.org/zap"

	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// Default hyperparameters. All of them are overridable per Config field.
const (
	DefaultWindow       = 12
	DefaultHorizon      = 3
	DefaultTextLookback = 3
	DefaultEncoderDim   = 64
	DefaultFusionDim    = 64
	DefaultBatchSize    = 32
	DefaultEpochs       = 50
	DefaultPatience     = 5
	DefaultLearningRate = 1e-3
	DefaultSeed         = 42
	DefaultMinSamples   = 10
)

// Config wires the pipeline: the injected collaborators and every
// hyperparameter of the forecasting run.
type Config struct {
	// Store supplies the per-project monthly tables. Required.
	Store SeriesStore

	// EmbeddingClient is the frozen pretrained text tower. Required.
	// EmbeddingModel and EmbeddingDim describe it; both are recorded in
	// checkpoints and enforced at load time.
	EmbeddingClient model.EmbeddingClient
	EmbeddingModel  string
	EmbeddingDim    int

	// Logger receives run progress. Nil means silent.
	Logger *zap.SugaredLogger

	// Window geometry.
	Window       int
	Horizon      int
	TextLookback int

	// TargetFeatures indexes the forecast metrics within the feature
	// vector; TargetWeights combines their losses (defaults to uniform).
	TargetFeatures []int
	TargetWeights  []float64

	// Architecture.
	EncoderDim int
	FusionDim  int

	// Training.
	BatchSize    int
	Epochs       int
	Patience     int
	LearningRate float64

	// Split.
	TrainFrac  float64
	ValFrac    float64
	TestFrac   float64
	MinSamples int

	Seed          int64
	CheckpointDir string
}

// applyDefaults fills in default values for unset config fields.
func (c *Config) applyDefaults() {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Horizon == 0 {
		c.Horizon = DefaultHorizon
	}
	if c.TextLookback == 0 {
		c.TextLookback = DefaultTextLookback
	}
	if len(c.TargetFeatures) == 0 {
		c.TargetFeatures = []int{0}
	}
	if len(c.TargetWeights) == 0 {
		w := 1.0 / float64(len(c.TargetFeatures))
		c.TargetWeights = make([]float64, len(c.TargetFeatures))
		for i := range c.TargetWeights {
			c.TargetWeights[i] = w
		}
	}
	if c.EncoderDim == 0 {
		c.EncoderDim = DefaultEncoderDim
	}
	if c.FusionDim == 0 {
		c.FusionDim = DefaultFusionDim
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Epochs == 0 {
		c.Epochs = DefaultEpochs
	}
	if c.Patience == 0 {
		c.Patience = DefaultPatience
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.TrainFrac == 0 && c.ValFrac == 0 && c.TestFrac == 0 {
		c.TrainFrac, c.ValFrac, c.TestFrac = 0.7, 0.15, 0.15
	}
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.CheckpointDir == "" {
		c.CheckpointDir = "./checkpoints"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
}

// validate rejects configurations that can never run. Most numeric fields
// are re-checked by the component that owns them; this catches what only the
// pipeline can see.
func (c *Config) validate() error {
	if c.Store == nil {
		return &types.ConfigurationError{Field: "store", Reason: "a series store is required"}
	}
	if c.EmbeddingClient == nil {
		return &types.ConfigurationError{Field: "embedding_client", Reason: "an embedding client is required"}
	}
	if c.EmbeddingModel == "" {
		return &types.ConfigurationError{Field: "embedding_model", Reason: "the embedding model identity is required"}
	}
	if c.EmbeddingDim < 1 {
		return &types.ConfigurationError{Field: "embedding_dim", Reason: "must be >= 1"}
	}
	return nil
}

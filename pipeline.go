package pulsecast

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/pkg/types"
	"github.com/pulsecast/pulsecast/train"
)

// Pipeline composes the forecasting stages end to end: sample construction,
// split allocation, the one-time embedding pass, training with validation
// tracking, held-out evaluation, and single-project prediction.
type Pipeline struct {
	cfg     Config
	textEnc *model.TextEncoder
}

// NewPipeline validates the configuration and builds a pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		textEnc: model.NewTextEncoder(cfg.EmbeddingClient, cfg.EmbeddingModel, cfg.EmbeddingDim),
	}, nil
}

// BuildSamples loads every project from the store and cuts the pooled sample
// set. The feature arity is fixed by the first project and enforced across
// the rest. Returns the samples and the arity.
func (p *Pipeline) BuildSamples(ctx context.Context) ([]*types.Sample, int, error) {
	projects, err := p.cfg.Store.ListProjects(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		return nil, 0, &types.ConfigurationError{Field: "store", Reason: "no projects available"}
	}

	builderCfg := dataset.BuilderConfig{
		Window:         p.cfg.Window,
		Horizon:        p.cfg.Horizon,
		TextLookback:   p.cfg.TextLookback,
		TargetFeatures: p.cfg.TargetFeatures,
	}

	var pooled []*types.Sample
	features := 0
	for _, id := range projects {
		metrics, texts, err := p.cfg.Store.LoadProject(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("load project %s: %w", id, err)
		}
		if features == 0 {
			features = metrics.Arity()
		} else if metrics.Arity() != features {
			return nil, 0, &types.ConfigurationError{
				Field:  "features",
				Reason: fmt.Sprintf("project %s has %d features, pool has %d", id, metrics.Arity(), features),
			}
		}
		samples, err := dataset.BuildSamples(metrics, texts, builderCfg)
		if err != nil {
			return nil, 0, err
		}
		p.cfg.Logger.Debugw("project samples built",
			"project", id, "months", metrics.Len(), "samples", len(samples))
		pooled = append(pooled, samples...)
	}
	p.cfg.Logger.Infow("sample pool built", "projects", len(projects), "samples", len(pooled))
	return pooled, features, nil
}

// Train runs the whole protocol: build, split, embed, train, and evaluate
// the best checkpoint on the test split. Returns the training summary and
// the held-out report.
func (p *Pipeline) Train(ctx context.Context) (*train.Result, *types.EvaluationReport, error) {
	pooled, features, err := p.BuildSamples(ctx)
	if err != nil {
		return nil, nil, err
	}

	split, err := dataset.Allocate(pooled, p.splitConfig())
	if err != nil {
		return nil, nil, err
	}
	p.cfg.Logger.Infow("split allocated",
		"train", len(split.Train), "val", len(split.Val), "test", len(split.Test))

	// The text tower is frozen, so each sample's text window is embedded
	// exactly once and the vector reused across every epoch.
	if err := p.textEnc.EmbedSamples(ctx, pooled); err != nil {
		return nil, nil, err
	}

	net, err := model.NewNetwork(model.NetworkConfig{
		Features:   features,
		Horizon:    p.cfg.Horizon,
		Targets:    len(p.cfg.TargetFeatures),
		TextDim:    p.cfg.EmbeddingDim,
		EncoderDim: p.cfg.EncoderDim,
		FusionDim:  p.cfg.FusionDim,
	}, rand.New(rand.NewSource(p.cfg.Seed)))
	if err != nil {
		return nil, nil, err
	}

	trainer, err := train.New(net, p.trainConfig(), p.trainMeta(), p.cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	result, err := trainer.Run(split.Train, split.Val)
	if err != nil {
		return nil, nil, err
	}

	report, err := p.evaluateCheckpoint(result.BestPath, split.Test)
	if err != nil {
		return nil, nil, err
	}
	return result, report, nil
}

// Evaluate re-derives the test split (same seed, same input order) and
// scores the checkpoint at path against it.
func (p *Pipeline) Evaluate(ctx context.Context, checkpointPath string) (*types.EvaluationReport, error) {
	pooled, _, err := p.BuildSamples(ctx)
	if err != nil {
		return nil, err
	}
	split, err := dataset.Allocate(pooled, p.splitConfig())
	if err != nil {
		return nil, err
	}
	if err := p.textEnc.EmbedSamples(ctx, split.Test); err != nil {
		return nil, err
	}
	return p.evaluateCheckpoint(checkpointPath, split.Test)
}

// Predict loads the checkpoint at path and forecasts the next months for one
// project from its latest window in the store.
func (p *Pipeline) Predict(ctx context.Context, checkpointPath, projectID string) (*types.Forecast, error) {
	ck, err := train.LoadCheckpoint(checkpointPath)
	if err != nil {
		return nil, err
	}
	predictor, err := train.NewPredictor(ck, p.cfg.EmbeddingClient, p.cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	metrics, texts, err := p.cfg.Store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	forecast, err := predictor.Predict(ctx, metrics, texts)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Infow("forecast produced",
		"project", projectID,
		"anchor", forecast.AnchorMonth.String(),
		"horizon", len(forecast.Values))
	return forecast, nil
}

func (p *Pipeline) evaluateCheckpoint(path string, test []*types.Sample) (*types.EvaluationReport, error) {
	ck, err := train.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	evaluator, err := train.NewEvaluator(ck)
	if err != nil {
		return nil, err
	}
	report, err := evaluator.Evaluate(test)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Infow("evaluation finished",
		"checkpoint", path,
		"samples", report.Samples,
		"mae", report.Global.MAE,
		"rmse", report.Global.RMSE,
		"mape", report.Global.MAPE,
		"r2", report.Global.R2,
	)
	return report, nil
}

func (p *Pipeline) splitConfig() dataset.SplitConfig {
	return dataset.SplitConfig{
		TrainFrac:  p.cfg.TrainFrac,
		ValFrac:    p.cfg.ValFrac,
		TestFrac:   p.cfg.TestFrac,
		Seed:       p.cfg.Seed,
		MinSamples: p.cfg.MinSamples,
	}
}

func (p *Pipeline) trainConfig() train.Config {
	return train.Config{
		BatchSize:     p.cfg.BatchSize,
		Epochs:        p.cfg.Epochs,
		LearningRate:  p.cfg.LearningRate,
		Patience:      p.cfg.Patience,
		TargetWeights: p.cfg.TargetWeights,
		Seed:          p.cfg.Seed,
		CheckpointDir: p.cfg.CheckpointDir,
	}
}

func (p *Pipeline) trainMeta() train.Meta {
	return train.Meta{
		Window:         p.cfg.Window,
		TextLookback:   p.cfg.TextLookback,
		TargetFeatures: p.cfg.TargetFeatures,
		TextModel:      p.cfg.EmbeddingModel,
	}
}

package train

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/nn"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// Config holds the training hyperparameters.
type Config struct {
	BatchSize    int
	Epochs       int
	LearningRate float64
	// Patience is the number of consecutive non-improving epochs tolerated
	// before early stop; the run halts once the stall counter exceeds it.
	// Zero disables early stopping.
	Patience int
	// TargetWeights combines the per-target losses; must sum to 1.
	TargetWeights []float64
	Seed          int64
	CheckpointDir string
}

// Validate surfaces impossible hyperparameters before the first epoch.
func (c Config) Validate(targets int) error {
	if c.BatchSize < 1 {
		return &types.ConfigurationError{Field: "batch_size", Reason: "must be >= 1"}
	}
	if c.Epochs < 1 {
		return &types.ConfigurationError{Field: "epochs", Reason: "must be >= 1"}
	}
	if c.LearningRate <= 0 {
		return &types.ConfigurationError{Field: "learning_rate", Reason: "must be > 0"}
	}
	if c.Patience < 0 {
		return &types.ConfigurationError{Field: "patience", Reason: "must be >= 0"}
	}
	if len(c.TargetWeights) != targets {
		return &types.ConfigurationError{
			Field:  "target_weights",
			Reason: fmt.Sprintf("%d weights for %d targets", len(c.TargetWeights), targets),
		}
	}
	var sum float64
	for _, w := range c.TargetWeights {
		if w < 0 {
			return &types.ConfigurationError{Field: "target_weights", Reason: "weights must be non-negative"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return &types.ConfigurationError{
			Field:  "target_weights",
			Reason: fmt.Sprintf("must sum to 1.0, got %v", sum),
		}
	}
	if c.CheckpointDir == "" {
		return &types.ConfigurationError{Field: "checkpoint_dir", Reason: "must not be empty"}
	}
	return nil
}

// Meta carries the dataset-side settings that belong in the checkpoint so
// evaluation and prediction can mirror them exactly.
type Meta struct {
	Window         int
	TextLookback   int
	TargetFeatures []int
	TextModel      string
}

// StopReason records how a training run ended.
type StopReason string

const (
	// BudgetExhausted means the configured epoch budget ran out.
	BudgetExhausted StopReason = "budget_exhausted"
	// EarlyStopped means the stall counter exceeded the patience.
	EarlyStopped StopReason = "early_stopped"
	// StopRequested means RequestStop was honored at an epoch boundary.
	StopRequested StopReason = "stop_requested"
)

// Result summarises a finished training run.
type Result struct {
	RunID       string
	EpochsRun   int
	BestEpoch   int
	BestValLoss float64
	Duration    time.Duration
	Reason      StopReason
	BestPath    string
	LatestPath  string
}

// Trainer owns the model parameters for the duration of a run and drives the
// epoch loop: forward, loss, backward over the trainable set, validation,
// checkpoint on improvement. It is single-threaded by construction, which is
// the entire locking discipline for the mutable parameters.
type Trainer struct {
	cfg  Config
	meta Meta
	net  *model.Network
	log  *zap.SugaredLogger

	stopRequested atomic.Bool
}

// New builds a trainer around an initialised network. A nil logger is
// replaced with a nop logger.
func New(net *model.Network, cfg Config, meta Meta, log *zap.SugaredLogger) (*Trainer, error) {
	if err := cfg.Validate(net.Config.Targets); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Trainer{cfg: cfg, meta: meta, net: net, log: log}, nil
}

// RequestStop asks the run to finish. The request is honored at the next
// epoch boundary only; a batch in flight always completes first.
func (t *Trainer) RequestStop() {
	t.stopRequested.Store(true)
}

// Run executes the training loop over the train and validation splits and
// returns the run summary. The best checkpoint (lowest validation loss) and
// the most recent checkpoint are left under the configured directory.
func (t *Trainer) Run(trainSet, valSet []*types.Sample) (*Result, error) {
	if err := t.checkSamples(trainSet, "train"); err != nil {
		return nil, err
	}
	if err := t.checkSamples(valSet, "validation"); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()

	// Normalization statistics come from the training split only and are
	// applied unchanged everywhere else; they are part of the checkpoint.
	norm := model.FitNormalizer(trainSet, t.net.Config.Features)
	trainWin, trainTgt := t.normalize(norm, trainSet)
	valWin, valTgt := t.normalize(norm, valSet)

	rng := newRand(t.cfg.Seed)
	solver := nn.NewAdam(t.cfg.LearningRate)
	params := t.net.Params()

	bestVal := math.Inf(1)
	bestEpoch := 0
	stall := 0
	reason := BudgetExhausted
	epochsRun := 0

	bestPath := t.cfg.CheckpointDir + "/best.json"
	latestPath := t.cfg.CheckpointDir + "/latest.json"

	t.log.Infow("training started",
		"run_id", runID,
		"train_samples", len(trainSet),
		"val_samples", len(valSet),
		"epochs", t.cfg.Epochs,
		"batch_size", t.cfg.BatchSize,
	)

	order := make([]int, len(trainSet))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		var batches int
		for start := 0; start < len(order); start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]

			g := nn.NewGraph(true)
			var total *nn.Mat
			for _, idx := range batch {
				outs := t.net.Forward(g, trainWin[idx], trainSet[idx].TextEmbedding)
				loss := t.sampleLoss(g, outs, trainTgt[idx])
				if total == nil {
					total = loss
				} else {
					total = g.Add(total, loss)
				}
			}
			batchLoss := g.Scale(total, 1/float64(len(batch)))

			if !isFinite(batchLoss.W[0]) {
				first := trainSet[batch[0]]
				return nil, &types.NumericalInstabilityError{
					Epoch:     epoch,
					Batch:     batches,
					ProjectID: first.ProjectID,
					Anchor:    first.AnchorMonth,
					Loss:      batchLoss.W[0],
				}
			}

			batchLoss.DW[0] = 1
			g.Backward()
			solver.Step(params)

			epochLoss += batchLoss.W[0]
			batches++
		}
		epochLoss /= float64(batches)

		valLoss := t.validate(valWin, valTgt, valSet)
		if !isFinite(valLoss) {
			return nil, &types.NumericalInstabilityError{
				Epoch: epoch,
				Batch: -1,
				Loss:  valLoss,
			}
		}
		epochsRun = epoch

		improved := valLoss < bestVal
		if improved {
			bestVal = valLoss
			bestEpoch = epoch
			stall = 0
			if err := t.saveWithRetry(bestPath, t.checkpoint(runID, epoch, valLoss, norm)); err != nil {
				return nil, err
			}
		} else {
			stall++
		}
		if err := t.saveWithRetry(latestPath, t.checkpoint(runID, epoch, valLoss, norm)); err != nil {
			return nil, err
		}

		t.log.Infow("epoch finished",
			"run_id", runID,
			"epoch", epoch,
			"train_loss", epochLoss,
			"val_loss", valLoss,
			"improved", improved,
			"stall", stall,
		)

		if t.cfg.Patience > 0 && stall > t.cfg.Patience {
			reason = EarlyStopped
			break
		}
		if t.stopRequested.Load() {
			reason = StopRequested
			break
		}
	}

	res := &Result{
		RunID:       runID,
		EpochsRun:   epochsRun,
		BestEpoch:   bestEpoch,
		BestValLoss: bestVal,
		Duration:    time.Since(started),
		Reason:      reason,
		BestPath:    bestPath,
		LatestPath:  latestPath,
	}
	t.log.Infow("training finished",
		"run_id", runID,
		"reason", string(reason),
		"epochs_run", res.EpochsRun,
		"best_epoch", res.BestEpoch,
		"best_val_loss", res.BestValLoss,
		"duration", res.Duration.String(),
	)
	return res, nil
}

// sampleLoss builds the weighted mean-squared error of one sample inside the
// graph: per target, mean over the horizon, combined by the configured
// per-target weights.
func (t *Trainer) sampleLoss(g *nn.Graph, outs []*nn.Mat, target [][]float64) *nn.Mat {
	horizon := t.net.Config.Horizon
	var total *nn.Mat
	for m, out := range outs {
		col := make([]float64, horizon)
		for h := 0; h < horizon; h++ {
			col[h] = target[h][m]
		}
		diff := g.Sub(out, nn.ColVec(col))
		sq := g.Eltmul(diff, diff)
		weighted := g.Scale(g.Sum(sq), t.cfg.TargetWeights[m]/float64(horizon))
		if total == nil {
			total = weighted
		} else {
			total = g.Add(total, weighted)
		}
	}
	return total
}

// validate runs the forward computation over the validation split with
// parameter updates disabled (no tape is recorded) and returns the mean loss.
func (t *Trainer) validate(wins [][][]float64, tgts [][][]float64, samples []*types.Sample) float64 {
	var sum float64
	for i := range samples {
		g := nn.NewGraph(false)
		outs := t.net.Forward(g, wins[i], samples[i].TextEmbedding)
		sum += t.sampleLoss(g, outs, tgts[i]).W[0]
	}
	return sum / float64(len(samples))
}

func (t *Trainer) normalize(norm *model.Normalizer, samples []*types.Sample) (wins, tgts [][][]float64) {
	wins = make([][][]float64, len(samples))
	tgts = make([][][]float64, len(samples))
	for i, s := range samples {
		wins[i] = norm.NormalizeWindow(s.Window)
		tgts[i] = norm.NormalizeTarget(s.Target, t.meta.TargetFeatures)
	}
	return wins, tgts
}

// checkSamples validates the split against the network shape before training
// starts; a mismatch here is a configuration error, not a data error.
func (t *Trainer) checkSamples(samples []*types.Sample, name string) error {
	if len(samples) == 0 {
		return &types.ConfigurationError{Field: name, Reason: "split is empty"}
	}
	for _, s := range samples {
		if len(s.Window) == 0 || len(s.Window[0]) != t.net.Config.Features {
			return &types.ConfigurationError{
				Field:  "features",
				Reason: fmt.Sprintf("sample %s window arity does not match network features %d", s.Key(), t.net.Config.Features),
			}
		}
		if len(s.Target) != t.net.Config.Horizon || len(s.Target[0]) != t.net.Config.Targets {
			return &types.ConfigurationError{
				Field:  "horizon",
				Reason: fmt.Sprintf("sample %s target shape does not match network %dx%d", s.Key(), t.net.Config.Horizon, t.net.Config.Targets),
			}
		}
		if len(s.TextEmbedding) != t.net.Config.TextDim {
			return &types.ConfigurationError{
				Field:  "text_dim",
				Reason: fmt.Sprintf("sample %s has embedding of %d dims, network expects %d", s.Key(), len(s.TextEmbedding), t.net.Config.TextDim),
			}
		}
	}
	return nil
}

func (t *Trainer) checkpoint(runID string, epoch int, valLoss float64, norm *model.Normalizer) *Checkpoint {
	return &Checkpoint{
		Version:        checkpointVersion,
		RunID:          runID,
		CreatedAt:      stamp(),
		Epoch:          epoch,
		ValLoss:        valLoss,
		TextModel:      t.meta.TextModel,
		Network:        t.net.Config,
		State:          t.net.State(),
		Norm:           norm,
		Window:         t.meta.Window,
		TextLookback:   t.meta.TextLookback,
		TargetFeatures: t.meta.TargetFeatures,
		TargetWeights:  t.cfg.TargetWeights,
	}
}

// saveWithRetry writes a checkpoint, retrying once on failure for transient
// I/O before surfacing the error as fatal.
func (t *Trainer) saveWithRetry(path string, ck *Checkpoint) error {
	err := SaveCheckpoint(path, ck)
	if err == nil {
		return nil
	}
	t.log.Warnw("checkpoint write failed, retrying once", "path", path, "error", err)
	if err = SaveCheckpoint(path, ck); err == nil {
		return nil
	}
	return err
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

package train

import (
	"math"

	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/nn"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// Evaluator computes held-out accuracy metrics for one checkpoint. All
// metrics are computed on de-normalized values, i.e. in the raw units of the
// target metrics.
type Evaluator struct {
	ck  *Checkpoint
	net *model.Network
}

// NewEvaluator restores the network from a checkpoint.
func NewEvaluator(ck *Checkpoint) (*Evaluator, error) {
	net, err := ck.RestoreNetwork()
	if err != nil {
		return nil, err
	}
	return &Evaluator{ck: ck, net: net}, nil
}

// Evaluate runs the forward computation over the test split and produces the
// report: MAE, RMSE, MAPE and R² globally and per forecast step. Targets of
// exactly zero are excluded from the MAPE denominator (and counted in the
// report) while still contributing to the other three metrics. R² is
// computed against the mean of the test targets in the slice at hand.
func (e *Evaluator) Evaluate(test []*types.Sample) (*types.EvaluationReport, error) {
	if len(test) == 0 {
		return nil, &types.ConfigurationError{Field: "test", Reason: "split is empty"}
	}
	horizon := e.net.Config.Horizon

	// Predicted/actual pairs, pooled globally and sliced per horizon step.
	var globalPred, globalObs []float64
	stepPred := make([][]float64, horizon)
	stepObs := make([][]float64, horizon)

	for _, s := range test {
		if len(s.TextEmbedding) != e.net.Config.TextDim {
			return nil, &types.ConfigurationError{
				Field:  "text_dim",
				Reason: "test sample " + s.Key() + " has no embedding of the checkpoint's dimension",
			}
		}
		g := nn.NewGraph(false)
		outs := e.net.Forward(g, e.ck.Norm.NormalizeWindow(s.Window), s.TextEmbedding)
		for m, out := range outs {
			feature := e.ck.TargetFeatures[m]
			for h := 0; h < horizon; h++ {
				pred := e.ck.Norm.Denormalize(feature, out.W[h])
				obs := s.Target[h][m]
				globalPred = append(globalPred, pred)
				globalObs = append(globalObs, obs)
				stepPred[h] = append(stepPred[h], pred)
				stepObs[h] = append(stepObs[h], obs)
			}
		}
	}

	report := &types.EvaluationReport{
		Samples:   len(test),
		ByHorizon: make([]types.StepMetrics, horizon),
		RunID:     e.ck.RunID,
	}
	var excluded int
	report.Global, excluded = computeMetrics(globalPred, globalObs)
	report.MAPEExcluded = excluded
	for h := 0; h < horizon; h++ {
		report.ByHorizon[h], _ = computeMetrics(stepPred[h], stepObs[h])
	}
	return report, nil
}

// computeMetrics applies the four formulas to one slice of prediction/target
// pairs. Returns the metrics and the count of zero-valued targets the MAPE
// denominator skipped.
func computeMetrics(pred, obs []float64) (types.StepMetrics, int) {
	n := float64(len(obs))
	var sumAbs, sumSq, sumPct, obsSum float64
	var pctN int
	for i, o := range obs {
		d := pred[i] - o
		sumAbs += math.Abs(d)
		sumSq += d * d
		obsSum += o
		if o != 0 {
			sumPct += math.Abs(d / o)
			pctN++
		}
	}
	m := types.StepMetrics{
		MAE:  sumAbs / n,
		RMSE: math.Sqrt(sumSq / n),
	}
	if pctN > 0 {
		m.MAPE = sumPct / float64(pctN) * 100
	}

	mean := obsSum / n
	var ssTot float64
	for _, o := range obs {
		d := o - mean
		ssTot += d * d
	}
	if ssTot > 0 {
		m.R2 = 1 - sumSq/ssTot
	}
	return m, len(obs) - pctN
}

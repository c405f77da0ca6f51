package train

import (
	"context"
	"fmt"

	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/model"
	"github.com/pulsecast/pulsecast/nn"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// Predictor loads a checkpoint and forecasts the next H months for one
// project from its latest valid window. It owns its own copy of the model
// parameters, separate from any trainer's.
type Predictor struct {
	ck      *Checkpoint
	net     *model.Network
	textEnc *model.TextEncoder
}

// NewPredictor restores the network and wires the frozen text tower. The
// embedding client must serve the same pretrained model the checkpoint was
// trained against; a mismatch is refused rather than silently degrading the
// forecasts.
func NewPredictor(ck *Checkpoint, client model.EmbeddingClient, clientModel string) (*Predictor, error) {
	if clientModel != ck.TextModel {
		return nil, &types.ConfigurationError{
			Field:  "text_model",
			Reason: fmt.Sprintf("checkpoint was trained with %q, embedding client serves %q", ck.TextModel, clientModel),
		}
	}
	net, err := ck.RestoreNetwork()
	if err != nil {
		return nil, err
	}
	return &Predictor{
		ck:      ck,
		net:     net,
		textEnc: model.NewTextEncoder(client, ck.TextModel, ck.Network.TextDim),
	}, nil
}

// Predict forecasts from the window ending at the project's latest month.
// The window must hold exactly W consecutive months — a shorter series or a
// gap inside the window is rejected, never truncated or interpolated,
// mirroring the sample builder's validity rule. Normalization uses the
// statistics captured from the training split and persisted in the
// checkpoint; it is never recomputed from the input's own window.
func (p *Predictor) Predict(ctx context.Context, metrics *dataset.MetricSeries, texts *dataset.TextSeries) (*types.Forecast, error) {
	if metrics.Arity() != p.net.Config.Features {
		return nil, &types.ConfigurationError{
			Field:  "features",
			Reason: fmt.Sprintf("project %s has %d features, checkpoint expects %d", metrics.ProjectID, metrics.Arity(), p.net.Config.Features),
		}
	}
	if metrics.Len() < p.ck.Window {
		return nil, &types.DataValidityError{
			ProjectID: metrics.ProjectID,
			Month:     metrics.Last(),
			Reason:    fmt.Sprintf("only %d months available, window needs %d", metrics.Len(), p.ck.Window),
		}
	}

	anchor := metrics.Last().Add(1)
	start := anchor.Add(-p.ck.Window)
	if !metrics.HasRange(start, p.ck.Window) {
		return nil, &types.DataValidityError{
			ProjectID: metrics.ProjectID,
			Month:     anchor,
			Reason:    fmt.Sprintf("gap inside the %d-month window ending %s", p.ck.Window, metrics.Last()),
		}
	}

	window := make([][]float64, p.ck.Window)
	for i := 0; i < p.ck.Window; i++ {
		vals, _ := metrics.At(start.Add(i))
		row := make([]float64, len(vals))
		copy(row, vals)
		window[i] = row
	}

	textVec, err := p.textEnc.Embed(ctx, dataset.TextWindow(texts, anchor, p.ck.TextLookback))
	if err != nil {
		return nil, err
	}

	g := nn.NewGraph(false)
	outs := p.net.Forward(g, p.ck.Norm.NormalizeWindow(window), textVec)

	horizon := p.net.Config.Horizon
	values := make([][]float64, horizon)
	months := make([]types.Month, horizon)
	for h := 0; h < horizon; h++ {
		months[h] = anchor.Add(h)
		row := make([]float64, len(outs))
		for m, out := range outs {
			row[m] = p.ck.Norm.Denormalize(p.ck.TargetFeatures[m], out.W[h])
		}
		values[h] = row
	}
	return &types.Forecast{
		ProjectID:   metrics.ProjectID,
		AnchorMonth: anchor,
		Months:      months,
		Values:      values,
	}, nil
}

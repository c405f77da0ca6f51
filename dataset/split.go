package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// SplitConfig controls the pooled train/val/test partition.
type SplitConfig struct {
	TrainFrac float64
	ValFrac   float64
	TestFrac  float64
	// Seed drives the shuffle; identical seed and input order give the
	// identical split.
	Seed int64
	// MinSamples is the smallest pooled size the fractions may be applied
	// to. Below it the subsets are too small to mean anything.
	MinSamples int
}

// Validate checks the fractions before any shuffling happens.
func (c SplitConfig) Validate() error {
	if c.TrainFrac <= 0 || c.ValFrac <= 0 || c.TestFrac <= 0 {
		return &types.ConfigurationError{Field: "split_fractions", Reason: "all three fractions must be positive"}
	}
	if sum := c.TrainFrac + c.ValFrac + c.TestFrac; math.Abs(sum-1.0) > 1e-9 {
		return &types.ConfigurationError{
			Field:  "split_fractions",
			Reason: fmt.Sprintf("must sum to 1.0, got %v", sum),
		}
	}
	if c.MinSamples < 3 {
		return &types.ConfigurationError{Field: "min_samples", Reason: "must be >= 3"}
	}
	return nil
}

// Allocate partitions the pooled samples into disjoint train/val/test subsets
// by a seeded shuffle. The split is sample-level and random across projects:
// the aim is cross-project generalization, not temporal backtesting, so no
// time ordering is preserved. Sizes are round(train*N) and round(val*N) with
// the remainder going to test.
func Allocate(samples []*types.Sample, cfg SplitConfig) (*types.Split, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(samples)
	if n < cfg.MinSamples {
		return nil, &types.ConfigurationError{
			Field:  "samples",
			Reason: fmt.Sprintf("%d pooled samples, need at least %d for a meaningful split", n, cfg.MinSamples),
		}
	}

	nTrain := int(math.Round(cfg.TrainFrac * float64(n)))
	nVal := int(math.Round(cfg.ValFrac * float64(n)))
	if nTrain < 1 || nVal < 1 || nTrain+nVal >= n {
		return nil, &types.ConfigurationError{
			Field:  "split_fractions",
			Reason: fmt.Sprintf("fractions leave an empty subset for %d samples", n),
		}
	}

	perm := rand.New(rand.NewSource(cfg.Seed)).Perm(n)
	split := &types.Split{
		Train: make([]*types.Sample, 0, nTrain),
		Val:   make([]*types.Sample, 0, nVal),
		Test:  make([]*types.Sample, 0, n-nTrain-nVal),
	}
	for i, idx := range perm {
		switch {
		case i < nTrain:
			split.Train = append(split.Train, samples[idx])
		case i < nTrain+nVal:
			split.Val = append(split.Val, samples[idx])
		default:
			split.Test = append(split.Test, samples[idx])
		}
	}
	return split, nil
}

// Package quota estimates storage usage and guards writes against the
// configured safety margin.
package quota

import (
	"context"
	"fmt"

	"docvault/internal/vaulterr"
)

// DefaultSafetyMargin keeps writes from pushing usage past 98% of the pool.
const DefaultSafetyMargin = 0.02

// Estimate is a point-in-time view of the local storage pool.
// AvailableBytes is the size of the whole pool, not the free remainder.
type Estimate struct {
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// PercentUsed returns used/available as a percentage, or 0 when unlimited.
func (e Estimate) PercentUsed() float64 {
	if e.AvailableBytes <= 0 {
		return 0
	}
	return float64(e.UsedBytes) / float64(e.AvailableBytes) * 100
}

// Unlimited reports whether the estimate carries no usable ceiling.
func (e Estimate) Unlimited() bool {
	return e.AvailableBytes <= 0
}

// Estimator reports usage for the storage pool.
type Estimator interface {
	Estimate(ctx context.Context) (Estimate, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context) (Estimate, error)

func (f EstimatorFunc) Estimate(ctx context.Context) (Estimate, error) {
	return f(ctx)
}

// Fixed always reports the same estimate.
type Fixed Estimate

func (f Fixed) Estimate(context.Context) (Estimate, error) {
	return Estimate(f), nil
}

// LimitEstimator combines a configured byte limit with a usage source,
// typically the summed size of stored blobs.
type LimitEstimator struct {
	LimitBytes int64
	Usage      func(ctx context.Context) (int64, error)
}

func (l LimitEstimator) Estimate(ctx context.Context) (Estimate, error) {
	var used int64
	if l.Usage != nil {
		u, err := l.Usage(ctx)
		if err != nil {
			return Estimate{}, fmt.Errorf("measure usage: %w", err)
		}
		used = u
	}
	return Estimate{UsedBytes: used, AvailableBytes: l.LimitBytes}, nil
}

// Guard rejects writes that would bring usage within SafetyMargin of the pool size.
type Guard struct {
	SafetyMargin float64
}

func (g Guard) margin() float64 {
	if g.SafetyMargin <= 0 || g.SafetyMargin >= 1 {
		return DefaultSafetyMargin
	}
	return g.SafetyMargin
}

// Check returns a quota error when used+size would reach (1-margin)*available.
// An unlimited estimate always passes.
func (g Guard) Check(est Estimate, size int64) error {
	if est.Unlimited() {
		return nil
	}
	ceiling := float64(est.AvailableBytes) * (1 - g.margin())
	if float64(est.UsedBytes+size) >= ceiling {
		return vaulterr.Quota("check quota", fmt.Errorf(
			"storing %d bytes would use %d of %d bytes, above the %.0f%% limit; delete unused files to free space",
			size, est.UsedBytes+size, est.AvailableBytes, (1-g.margin())*100))
	}
	return nil
}

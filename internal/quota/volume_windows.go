//go:build windows

package quota

import "context"

// VolumeEstimator is unlimited on Windows; configure blobs.quota_bytes instead.
type VolumeEstimator struct {
	Path string
}

func (v VolumeEstimator) Estimate(context.Context) (Estimate, error) {
	return Estimate{}, nil
}

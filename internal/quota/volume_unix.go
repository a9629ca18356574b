//go:build !windows

package quota

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// VolumeEstimator measures the filesystem holding Path. The pool is what is
// already used plus what an unprivileged writer may still claim.
type VolumeEstimator struct {
	Path string
}

func (v VolumeEstimator) Estimate(context.Context) (Estimate, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(v.Path, &stat); err != nil {
		return Estimate{}, fmt.Errorf("statfs %s: %w", v.Path, err)
	}
	bsize := int64(stat.Bsize) //nolint:unconvert
	total := int64(stat.Blocks) * bsize
	free := int64(stat.Bfree) * bsize
	avail := int64(stat.Bavail) * bsize
	used := total - free
	return Estimate{UsedBytes: used, AvailableBytes: used + avail}, nil
}

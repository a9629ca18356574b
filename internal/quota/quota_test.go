package quota

import (
	"context"
	"errors"
	"testing"

	"docvault/internal/vaulterr"
)

const mb = 1 << 20

func TestGuardCheck(t *testing.T) {
	g := Guard{}
	tests := []struct {
		name    string
		est     Estimate
		size    int64
		wantErr bool
	}{
		{name: "near full rejects", est: Estimate{UsedBytes: 98 * mb, AvailableBytes: 100 * mb}, size: 3 * mb, wantErr: true},
		{name: "past ceiling rejects", est: Estimate{UsedBytes: 97 * mb, AvailableBytes: 100 * mb}, size: 2 * mb, wantErr: true},
		{name: "plenty of room", est: Estimate{UsedBytes: 10 * mb, AvailableBytes: 100 * mb}, size: 3 * mb},
		{name: "unlimited", est: Estimate{UsedBytes: 10 * mb}, size: 1 << 40},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Check(tc.est, tc.size)
			if tc.wantErr {
				if !errors.Is(err, vaulterr.ErrQuotaExceeded) {
					t.Fatalf("expected quota error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGuardCustomMargin(t *testing.T) {
	g := Guard{SafetyMargin: 0.5}
	if err := g.Check(Estimate{UsedBytes: 40, AvailableBytes: 100}, 5); err != nil {
		t.Fatalf("expected 45%% to pass: %v", err)
	}
	if err := g.Check(Estimate{UsedBytes: 40, AvailableBytes: 100}, 10); err == nil {
		t.Fatal("expected 50% to be rejected")
	}
}

func TestLimitEstimator(t *testing.T) {
	est := LimitEstimator{
		LimitBytes: 100,
		Usage:      func(context.Context) (int64, error) { return 25, nil },
	}
	got, err := est.Estimate(context.Background())
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got.UsedBytes != 25 || got.AvailableBytes != 100 {
		t.Fatalf("unexpected estimate %+v", got)
	}
	if got.PercentUsed() != 25 {
		t.Fatalf("expected 25%%, got %v", got.PercentUsed())
	}

	failing := LimitEstimator{LimitBytes: 1, Usage: func(context.Context) (int64, error) { return 0, errors.New("boom") }}
	if _, err := failing.Estimate(context.Background()); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestVolumeEstimator(t *testing.T) {
	est, err := VolumeEstimator{Path: t.TempDir()}.Estimate(context.Background())
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.AvailableBytes < est.UsedBytes || est.UsedBytes < 0 {
		t.Fatalf("implausible volume estimate %+v", est)
	}
}

// Package vault is the composition root: it owns the long-lived stores and
// opens them lazily, once, on first use.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"docvault/internal/atomicfile"
	"docvault/internal/blobstore"
	"docvault/internal/config"
	"docvault/internal/docstore"
	"docvault/internal/gc"
	"docvault/internal/metrics"
	"docvault/internal/offline"
	"docvault/internal/quota"
	"docvault/internal/store"
	"docvault/internal/syncqueue"
	"docvault/internal/vaulterr"
)

const (
	casDirName     = "blobs"
	offlineIndex   = "offline/index.json"
	openFlightName = "open"
)

// Options wires a Vault.
type Options struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Estimator overrides the quota source derived from config.
	Estimator quota.Estimator
}

// Components are the opened stores.
type Components struct {
	DB        *store.Store
	Writer    *atomicfile.Writer
	Blobs     *blobstore.Store
	Documents *docstore.Store
	GC        *gc.Collector
	Offline   *offline.Cache
	Queue     *syncqueue.Queue
	// CAS is set when blobs live on disk.
	CAS *blobstore.LocalCAS
}

// Vault hands out the stores of one data directory.
type Vault struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	estimator quota.Estimator

	group singleflight.Group
	mu    sync.Mutex
	comps *Components
}

// New creates a vault. Nothing is opened until first use.
func New(opts Options) (*Vault, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Config.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Vault{
		cfg:       opts.Config,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		estimator: opts.Estimator,
	}, nil
}

// Config returns the configuration the vault was built with.
func (v *Vault) Config() *config.Config {
	return v.cfg
}

// Open returns the opened components. Concurrent first callers share one
// open; a failed open is not remembered, so the next call retries.
func (v *Vault) Open(ctx context.Context) (*Components, error) {
	v.mu.Lock()
	comps := v.comps
	v.mu.Unlock()
	if comps != nil {
		return comps, nil
	}

	res, err, _ := v.group.Do(openFlightName, func() (any, error) {
		v.mu.Lock()
		if v.comps != nil {
			c := v.comps
			v.mu.Unlock()
			return c, nil
		}
		v.mu.Unlock()

		c, err := v.open(ctx)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.comps = c
		v.mu.Unlock()
		return c, nil
	})
	if err != nil {
		v.Observe("open vault", err)
		return nil, err
	}
	return res.(*Components), nil
}

// IsAvailable reports whether the stores can be opened and answer.
func (v *Vault) IsAvailable(ctx context.Context) bool {
	comps, err := v.Open(ctx)
	if err != nil {
		return false
	}
	return comps.DB.Ping(ctx) == nil
}

// Observe logs err, as a warning when the database is merely busy. It
// returns err unchanged.
func (v *Vault) Observe(op string, err error) error {
	if err == nil {
		return nil
	}
	if store.IsBusy(err) {
		v.logger.Warn("database busy", "op", op, "error", err)
		return err
	}
	v.logger.Debug("vault operation failed", "op", op, "error", err)
	return err
}

// Close releases the database. The vault may be opened again afterwards.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.comps == nil {
		return nil
	}
	err := v.comps.DB.Close()
	v.comps = nil
	return err
}

func (v *Vault) open(ctx context.Context) (*Components, error) {
	cfg := v.cfg
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, vaulterr.Unavailable("create data dir", err)
	}
	writer, err := atomicfile.NewOS(cfg.DataDir, v.logger)
	if err != nil {
		return nil, vaulterr.Unavailable("open data dir", err)
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, vaulterr.Unavailable("open database", err)
	}
	comps := &Components{DB: db, Writer: writer}
	fail := func(err error) (*Components, error) {
		_ = db.Close()
		return nil, err
	}

	var content blobstore.ContentStore
	switch cfg.Blobs.Backend {
	case config.BlobBackendLocalCAS:
		casWriter, err := atomicfile.NewOS(filepath.Join(cfg.DataDir, casDirName), v.logger)
		if err != nil {
			return fail(vaulterr.Unavailable("open blob directory", err))
		}
		cas, err := blobstore.NewLocalCAS(casWriter, cfg.Atomic.Validate)
		if err != nil {
			return fail(err)
		}
		comps.CAS = cas
		content = cas
	default:
		sqliteContent, err := blobstore.NewSQLiteContent(db)
		if err != nil {
			return fail(err)
		}
		content = sqliteContent
	}

	blobs, err := blobstore.New(blobstore.Options{
		Meta:      db,
		Content:   content,
		Estimator: v.quotaEstimator(db),
		Guard:     quota.Guard{SafetyMargin: cfg.Blobs.SafetyMargin},
		Metrics:   v.metrics,
		Logger:    v.logger,
	})
	if err != nil {
		return fail(err)
	}
	comps.Blobs = blobs

	docs, err := docstore.New(writer, docstore.Options{
		Validate: cfg.Atomic.Validate,
		Backup:   cfg.Atomic.Backup,
	}, v.logger)
	if err != nil {
		return fail(err)
	}
	comps.Documents = docs

	collector, err := gc.New(gc.Config{
		Corpus:    docs,
		Blobs:     blobs,
		Writer:    writer,
		CachePath: cfg.GC.CachePath,
		BatchSize: cfg.GC.BatchSize,
		Metrics:   v.metrics,
		Logger:    v.logger,
	})
	if err != nil {
		return fail(err)
	}
	if err := collector.LoadCache(); err != nil {
		v.logger.Warn("load gc reference cache", "error", err)
	}
	comps.GC = collector

	cache, err := offline.Open(ctx, offline.Options{
		Payloads:   db,
		Writer:     writer,
		IndexPath:  offlineIndex,
		MaxBytes:   cfg.Offline.MaxBytes,
		MaxEntries: cfg.Offline.MaxEntries,
		Metrics:    v.metrics,
		Logger:     v.logger,
	})
	if err != nil {
		return fail(err)
	}
	comps.Offline = cache

	queue, err := syncqueue.New(syncqueue.Options{Store: db, Metrics: v.metrics, Logger: v.logger})
	if err != nil {
		return fail(err)
	}
	comps.Queue = queue

	v.logger.Debug("vault opened", "data_dir", cfg.DataDir, "blob_backend", cfg.Blobs.Backend)
	return comps, nil
}

func (v *Vault) quotaEstimator(db *store.Store) quota.Estimator {
	if v.estimator != nil {
		return v.estimator
	}
	if v.cfg.Blobs.QuotaBytes > 0 {
		return quota.LimitEstimator{
			LimitBytes: v.cfg.Blobs.QuotaBytes,
			Usage: func(ctx context.Context) (int64, error) {
				usage, err := db.BlobUsage(ctx)
				return usage.TotalBytes, err
			},
		}
	}
	return quota.VolumeEstimator{Path: v.cfg.DataDir}
}

// RecoveryReport summarizes a startup recovery pass.
type RecoveryReport struct {
	TempFilesRemoved     int `json:"temp_files_removed"`
	OrphanContentRemoved int `json:"orphan_content_removed"`
}

// Recover removes temp files left by interrupted writes and blob content
// that lost its metadata row. Per-directory failures are joined and the
// pass keeps going.
func (v *Vault) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	comps, err := v.Open(ctx)
	if err != nil {
		return report, err
	}

	var errs []error
	n, err := comps.Documents.Recover(ctx)
	report.TempFilesRemoved += n
	if err != nil {
		errs = append(errs, err)
	}
	for _, dir := range []string{".", filepath.Dir(offlineIndex), filepath.Dir(v.cfg.GC.CachePath)} {
		n, err := comps.Writer.CleanupStaleTempFiles(dir, atomicfile.DefaultTempSuffix)
		report.TempFilesRemoved += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if comps.CAS != nil {
		n, err := comps.CAS.CleanupTemp(ctx)
		report.TempFilesRemoved += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	pruned, err := comps.Blobs.PruneOrphanContent(ctx)
	report.OrphanContentRemoved = pruned
	if err != nil {
		errs = append(errs, err)
	}

	v.logger.Info("recovery finished", "temp_files_removed", report.TempFilesRemoved, "orphan_content_removed", report.OrphanContentRemoved)
	return report, errors.Join(errs...)
}

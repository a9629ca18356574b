// Package metrics exposes Prometheus instruments for the docvault stores.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry (CLI one-shots, tests).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docvault"

// Blob save outcomes.
const (
	SaveStored        = "stored"
	SaveDeduplicated  = "deduplicated"
	SaveQuotaRejected = "quota_rejected"
	SaveFailed        = "failed"
)

// Metrics holds every docvault instrument.
type Metrics struct {
	BlobSaves         *prometheus.CounterVec // docvault_blob_saves_total{result}
	BlobBytesStored   prometheus.Counter     // docvault_blob_bytes_stored_total
	BlobsDeleted      prometheus.Counter     // docvault_blobs_deleted_total
	StorageUsedBytes  prometheus.Gauge       // docvault_storage_used_bytes
	StorageQuotaBytes prometheus.Gauge       // docvault_storage_quota_bytes (0 = unlimited)

	GCRuns           *prometheus.CounterVec // docvault_gc_runs_total{result}
	GCBytesFreed     prometheus.Counter     // docvault_gc_bytes_freed_total
	GCDeleteFailures prometheus.Counter     // docvault_gc_delete_failures_total
	GCDuration       prometheus.Histogram   // docvault_gc_duration_seconds
	GCCacheHits      prometheus.Counter     // docvault_gc_reference_cache_hits_total

	OfflineEvictions prometheus.Counter // docvault_offline_evictions_total
	OfflineEntries   prometheus.Gauge   // docvault_offline_entries
	OfflineBytes     prometheus.Gauge   // docvault_offline_bytes

	QueueDepth prometheus.Gauge // docvault_queue_operations

	HTTPRequests *prometheus.CounterVec   // docvault_http_requests_total{method,status}
	HTTPDuration *prometheus.HistogramVec // docvault_http_request_duration_seconds{method}
}

// New registers all instruments with registry. A nil registry uses the
// default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		BlobSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_saves_total",
			Help:      "Blob save attempts by result",
		}, []string{"result"}),
		BlobBytesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_bytes_stored_total",
			Help:      "Bytes written for new blobs",
		}),
		BlobsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blobs_deleted_total",
			Help:      "Blobs removed from the store",
		}),
		StorageUsedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_used_bytes",
			Help:      "Bytes used in the storage pool at the last estimate",
		}),
		StorageQuotaBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_quota_bytes",
			Help:      "Size of the storage pool (0 = unlimited)",
		}),
		GCRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_runs_total",
			Help:      "Garbage collection runs by result",
		}, []string{"result"}),
		GCBytesFreed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_bytes_freed_total",
			Help:      "Bytes reclaimed by garbage collection",
		}),
		GCDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_delete_failures_total",
			Help:      "Orphan deletions that failed",
		}),
		GCDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gc_duration_seconds",
			Help:      "Garbage collection run duration",
			Buckets:   prometheus.DefBuckets,
		}),
		GCCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_reference_cache_hits_total",
			Help:      "Documents whose references were reused without reloading",
		}),
		OfflineEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_evictions_total",
			Help:      "Offline cache entries evicted under size or count pressure",
		}),
		OfflineEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_entries",
			Help:      "Documents held in the offline cache",
		}),
		OfflineBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_bytes",
			Help:      "Stored bytes held in the offline cache",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_operations",
			Help:      "Operations waiting in the sync queue",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status",
		}, []string{"method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordBlobSave records one save outcome.
func (m *Metrics) RecordBlobSave(result string, bytes int64) {
	if m == nil {
		return
	}
	m.BlobSaves.WithLabelValues(result).Inc()
	if result == SaveStored && bytes > 0 {
		m.BlobBytesStored.Add(float64(bytes))
	}
}

// RecordBlobDeleted counts one removed blob.
func (m *Metrics) RecordBlobDeleted() {
	if m == nil {
		return
	}
	m.BlobsDeleted.Inc()
}

// UpdateStorage updates the storage pool gauges.
func (m *Metrics) UpdateStorage(usedBytes, quotaBytes int64) {
	if m == nil {
		return
	}
	m.StorageUsedBytes.Set(float64(usedBytes))
	m.StorageQuotaBytes.Set(float64(quotaBytes))
}

// RecordGC records one collection run.
func (m *Metrics) RecordGC(err error, bytesFreed int64, failed int, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else if failed > 0 {
		result = "partial"
	}
	m.GCRuns.WithLabelValues(result).Inc()
	m.GCBytesFreed.Add(float64(bytesFreed))
	m.GCDeleteFailures.Add(float64(failed))
	m.GCDuration.Observe(d.Seconds())
}

// RecordGCCacheHits counts reference cache reuse.
func (m *Metrics) RecordGCCacheHits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GCCacheHits.Add(float64(n))
}

// RecordEviction counts one offline cache eviction.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.OfflineEvictions.Inc()
}

// UpdateOffline updates the offline cache gauges.
func (m *Metrics) UpdateOffline(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.OfflineEntries.Set(float64(entries))
	m.OfflineBytes.Set(float64(bytes))
}

// SetQueueDepth updates the queued operations gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

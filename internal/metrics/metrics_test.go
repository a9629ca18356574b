package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordBlobSave(SaveStored, 10)
	m.RecordBlobDeleted()
	m.UpdateStorage(1, 2)
	m.RecordGC(nil, 1, 0, time.Second)
	m.RecordGCCacheHits(3)
	m.RecordEviction()
	m.UpdateOffline(1, 2)
	m.SetQueueDepth(4)
	m.RecordHTTP("GET", 200, time.Millisecond)
}

func TestRecordBlobSave(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordBlobSave(SaveStored, 100)
	m.RecordBlobSave(SaveDeduplicated, 100)
	m.RecordBlobSave(SaveStored, 50)

	if v := testutil.ToFloat64(m.BlobSaves.WithLabelValues(SaveStored)); v != 2 {
		t.Errorf("stored saves = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.BlobBytesStored); v != 150 {
		t.Errorf("bytes stored = %v, want 150", v)
	}
}

func TestRecordGC(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordGC(nil, 10, 0, time.Second)
	m.RecordGC(nil, 5, 2, time.Second)
	m.RecordGC(errors.New("boom"), 0, 0, time.Second)

	for result, want := range map[string]float64{"ok": 1, "partial": 1, "error": 1} {
		if v := testutil.ToFloat64(m.GCRuns.WithLabelValues(result)); v != want {
			t.Errorf("gc runs %s = %v, want %v", result, v, want)
		}
	}
	if v := testutil.ToFloat64(m.GCBytesFreed); v != 15 {
		t.Errorf("bytes freed = %v, want 15", v)
	}
	if v := testutil.ToFloat64(m.GCDeleteFailures); v != 2 {
		t.Errorf("delete failures = %v, want 2", v)
	}
}

func TestUpdateGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.UpdateOffline(3, 1200)
	m.SetQueueDepth(7)
	m.UpdateStorage(600, 1000)

	if v := testutil.ToFloat64(m.OfflineEntries); v != 3 {
		t.Errorf("offline entries = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.OfflineBytes); v != 1200 {
		t.Errorf("offline bytes = %v, want 1200", v)
	}
	if v := testutil.ToFloat64(m.QueueDepth); v != 7 {
		t.Errorf("queue depth = %v, want 7", v)
	}
	if v := testutil.ToFloat64(m.StorageQuotaBytes); v != 1000 {
		t.Errorf("quota = %v, want 1000", v)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 404: "4xx", 507: "5xx"}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}

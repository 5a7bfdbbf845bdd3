package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	sectionsCreatedTotal atomic.Uint64
	syncSucceededTotal   atomic.Uint64
	syncFailedTotal      atomic.Uint64
	uploadsIssuedTotal   atomic.Uint64
	uploadsDeletedTotal  atomic.Uint64

	syncDuration = newHistogram([]float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500})
)

// IncSectionsCreated increments the created sections counter.
func IncSectionsCreated() {
	sectionsCreatedTotal.Add(1)
}

// IncSyncSucceeded increments the successful resource sync counter.
func IncSyncSucceeded() {
	syncSucceededTotal.Add(1)
}

// IncSyncFailed increments the failed resource sync counter.
func IncSyncFailed() {
	syncFailedTotal.Add(1)
}

// IncUploadsIssued increments the upload destination counter.
func IncUploadsIssued() {
	uploadsIssuedTotal.Add(1)
}

// IncUploadsDeleted increments the discarded upload counter.
func IncUploadsDeleted() {
	uploadsDeletedTotal.Add(1)
}

// ObserveSyncDurationMs records a resource sync duration in milliseconds.
func ObserveSyncDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	syncDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "sections_created_total", "Total sections created", sectionsCreatedTotal.Load())
	writeCounter(&buf, "resource_sync_succeeded_total", "Total resource syncs applied", syncSucceededTotal.Load())
	writeCounter(&buf, "resource_sync_failed_total", "Total resource syncs rejected or failed", syncFailedTotal.Load())
	writeCounter(&buf, "upload_destinations_issued_total", "Total upload destinations issued", uploadsIssuedTotal.Load())
	writeCounter(&buf, "uploads_deleted_total", "Total uploaded objects deleted", uploadsDeletedTotal.Load())
	writeHistogram(&buf, "resource_sync_duration_ms", "Resource sync duration in milliseconds", syncDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

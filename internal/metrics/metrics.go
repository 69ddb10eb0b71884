// Package metrics holds the Prometheus collectors for the storage pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pan_storage"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics is a prometheus.Collector for file and chunk operations.
type Metrics struct {
	bytesStored     *prometheus.CounterVec
	chunkSaves      *prometheus.CounterVec
	merges          *prometheus.CounterVec
	mergeDuration   prometheus.Histogram
	dedupLookups    *prometheus.CounterVec
	idFailures      prometheus.Counter
	chunksCollected prometheus.Counter
}

// New returns a Metrics whose collectors are not yet registered.
func New() *Metrics {
	return &Metrics{
		bytesStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_stored_total",
				Help:      "Bytes written to the storage backend.",
			}, []string{"kind"},
		),
		chunkSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_saves_total",
				Help:      "Chunk save attempts.",
			}, []string{"result"},
		),
		merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Chunk merge attempts.",
			}, []string{"result"},
		),
		mergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "merge_duration_seconds",
				Help:      "Time taken to merge the chunks of one upload.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		dedupLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_lookups_total",
				Help:      "Instant upload lookups by outcome.",
			}, []string{"outcome"},
		),
		idFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "id_generation_failures_total",
				Help:      "ID generation failures, usually clock regression.",
			},
		),
		chunksCollected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_chunks_collected_total",
				Help:      "Expired chunk records removed by the janitor.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.bytesStored.Describe(ch)
	m.chunkSaves.Describe(ch)
	m.merges.Describe(ch)
	m.mergeDuration.Describe(ch)
	m.dedupLookups.Describe(ch)
	m.idFailures.Describe(ch)
	m.chunksCollected.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.bytesStored.Collect(ch)
	m.chunkSaves.Collect(ch)
	m.merges.Collect(ch)
	m.mergeDuration.Collect(ch)
	m.dedupLookups.Collect(ch)
	m.idFailures.Collect(ch)
	m.chunksCollected.Collect(ch)
}

// Handler returns an HTTP handler exposing reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewRegistry returns a registry holding m plus the Go and process collectors.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		m,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// BytesStored records n bytes written as a whole file, chunk or merge.
func (m *Metrics) BytesStored(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesStored.WithLabelValues(kind).Add(float64(n))
}

// ChunkSaved records a chunk save attempt.
func (m *Metrics) ChunkSaved(err error) {
	if m == nil {
		return
	}
	m.chunkSaves.WithLabelValues(result(err)).Inc()
}

// Merged records a merge attempt that started at start.
func (m *Metrics) Merged(start time.Time, err error) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.mergeDuration.Observe(time.Since(start).Seconds())
	}
}

// DedupLookup records an instant upload lookup.
func (m *Metrics) DedupLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.dedupLookups.WithLabelValues(outcome).Inc()
}

// IDFailure records a failed ID generation.
func (m *Metrics) IDFailure() {
	if m == nil {
		return
	}
	m.idFailures.Inc()
}

// ChunksCollected records n expired chunk records removed.
func (m *Metrics) ChunksCollected(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksCollected.Add(float64(n))
}

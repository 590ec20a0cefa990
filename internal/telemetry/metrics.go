// Package telemetry exposes Prometheus metrics for song scans.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
)

// Metrics holds the scan collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal        *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	SongsLoaded       prometheus.Gauge
	ScanIssues        *prometheus.CounterVec
	ArchivesExtracted prometheus.Counter
	ArchivesReused    prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "songloader",
			Name:      "scans_total",
			Help:      "Completed song scans by mode and outcome.",
		}, []string{"mode", "outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "songloader",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed song scans.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SongsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "songloader",
			Name:      "songs_loaded",
			Help:      "Songs in the live catalog.",
		}),
		ScanIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "songloader",
			Name:      "scan_issues_total",
			Help:      "Per-item scan issues by kind.",
		}, []string{"kind"}),
		ArchivesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "songloader",
			Name:      "archives_extracted_total",
			Help:      "Archives unpacked into the cache.",
		}),
		ArchivesReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "songloader",
			Name:      "archives_reused_total",
			Help:      "Archives whose cached extraction was reused.",
		}),
	}

	m.registry.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.SongsLoaded,
		m.ScanIssues,
		m.ArchivesExtracted,
		m.ArchivesReused,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one finished refresh. It has the catalog.ResultSink
// signature.
func (m *Metrics) Observe(result *catalog.ScanResult, summary catalog.LoadSummary) {
	mode := "incremental"
	if summary.Full {
		mode = "full"
	}

	outcome := "ok"
	switch {
	case summary.Cancelled:
		outcome = "cancelled"
	case summary.Error != "":
		outcome = "error"
	}
	m.ScansTotal.WithLabelValues(mode, outcome).Inc()

	if outcome != "ok" || result == nil {
		return
	}

	m.ScanDuration.Observe(summary.Duration.Seconds())
	m.SongsLoaded.Set(float64(summary.Count))

	for _, issue := range result.Issues {
		m.ScanIssues.WithLabelValues(catalog.IssueKind(issue)).Inc()
	}
	if result.Archives != nil {
		m.ArchivesExtracted.Add(float64(result.Archives.Extracted))
		m.ArchivesReused.Add(float64(result.Archives.Reused))
	}
}

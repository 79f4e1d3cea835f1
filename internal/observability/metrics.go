package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the hail pipeline.
type Metrics struct {
	ProductsConsumed  prometheus.Counter
	ProductsProcessed prometheus.Counter
	ProductErrors     *prometheus.CounterVec // labels: kind={source_unavailable,malformed_input,projection,store_write,unknown}
	HailEvents        prometheus.Counter
	EventsPublished   prometheus.Counter
	PipelineRunning   prometheus.Gauge

	ScanDuration     prometheus.Histogram
	EventsPerScan    prometheus.Histogram
	MaxReflectivity  prometheus.Gauge
	GridCache        *prometheus.CounterVec // labels: result={hit,miss}
	GridBuildSeconds prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProductsConsumed,
		m.ProductsProcessed,
		m.ProductErrors,
		m.HailEvents,
		m.EventsPublished,
		m.PipelineRunning,
		m.ScanDuration,
		m.EventsPerScan,
		m.MaxReflectivity,
		m.GridCache,
		m.GridBuildSeconds,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so multiple
// tests can each build their own set.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProductsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "products_consumed_total",
			Help:      "Total product notifications read from the source.",
		}),
		ProductsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "products_processed_total",
			Help:      "Total products scanned to completion, with or without detections.",
		}),
		ProductErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "product_errors_total",
			Help:      "Products skipped because of an error, by error kind.",
		}, []string{"kind"}),
		HailEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "hail_events_total",
			Help:      "Total hail pixels appended to the event log.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "events_published_total",
			Help:      "Total hail events written to the sink topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hail_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hail_etl",
			Name:      "scan_duration_seconds",
			Help:      "Duration of one load-mask-extract-store cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EventsPerScan: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hail_etl",
			Name:      "events_per_scan",
			Help:      "Number of hail pixels detected per scan.",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		MaxReflectivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hail_etl",
			Name:      "last_scan_max_dbzh",
			Help:      "Highest finite reflectivity in the most recent scan.",
		}),
		GridCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hail_etl",
			Name:      "grid_cache_total",
			Help:      "Projected grid cache lookups by result.",
		}, []string{"result"}),
		GridBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hail_etl",
			Name:      "grid_build_duration_seconds",
			Help:      "Time to project a full grid on a cache miss.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

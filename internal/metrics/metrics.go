package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkboost",
			Name:      "documents_total",
			Help:      "Documents assembled by mode (preview, full) and result",
		},
		[]string{"mode", "result"},
	)

	documentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inkboost",
			Name:      "document_duration_seconds",
			Help:      "Wall time of one document assembly by mode",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	pagesEnhanced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkboost",
			Name:      "pages_enhanced_total",
			Help:      "Total pages run through the enhancer",
		},
	)

	pageLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inkboost",
			Name:      "page_enhance_duration_seconds",
			Help:      "Duration of enhancing a single rasterized page",
			Buckets:   prometheus.DefBuckets,
		},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkboost",
			Name:      "jobs_total",
			Help:      "Queued jobs finished by result (success, failed, cancelled)",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inkboost",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream and dlq",
		},
		[]string{"type"},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(documentsTotal, documentLatency, pagesEnhanced, pageLatency, jobsTotal, queueDepth)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveDocument(mode, result string, dur time.Duration) {
	documentsTotal.WithLabelValues(mode, result).Inc()
	documentLatency.WithLabelValues(mode).Observe(dur.Seconds())
}

func ObservePage(dur time.Duration) {
	pagesEnhanced.Inc()
	pageLatency.Observe(dur.Seconds())
}

func IncJob(result string) { jobsTotal.WithLabelValues(result).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

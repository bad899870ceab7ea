package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Retrieval metrics
	SearchRequests *CounterVec   // labels: model
	SearchLatency  *HistogramVec // labels: model
	SearchErrors   *CounterVec   // labels: model, code

	// Ingestion metrics
	DocumentsIndexed *Counter
	Diagnostics      *Counter
	IngestDuration   *Histogram

	// Evaluation metrics
	Evaluations *CounterVec // labels: model
	MeanNDCG    *GaugeVec   // labels: model, k
	Topics      *GaugeVec   // labels: model

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes

	startTime time.Time
}

// New creates a metrics instance with every metric registered.
func New() *Metrics {
	return &Metrics{
		SearchRequests: NewCounterVec(
			"rice_eval_search_requests_total",
			"Total number of index searches",
			[]string{"model"},
		),
		SearchLatency: NewHistogramVec(
			"rice_eval_search_latency_ms",
			"Index search latency in milliseconds",
			[]string{"model"},
			nil,
		),
		SearchErrors: NewCounterVec(
			"rice_eval_search_errors_total",
			"Total number of failed index searches",
			[]string{"model", "code"},
		),

		DocumentsIndexed: NewCounter(
			"rice_eval_documents_indexed_total",
			"Total number of corpus documents added to the index",
			nil,
		),
		Diagnostics: NewCounter(
			"rice_eval_diagnostics_total",
			"Total number of skipped input records",
			nil,
		),
		IngestDuration: NewHistogram(
			"rice_eval_ingest_duration_ms",
			"Corpus ingestion time in milliseconds, including commit",
			[]float64{100, 1000, 10000, 60000, 300000, 1800000},
			nil,
		),

		Evaluations: NewCounterVec(
			"rice_eval_evaluations_total",
			"Total number of evaluated runs",
			[]string{"model"},
		),
		MeanNDCG: NewGaugeVec(
			"rice_eval_mean_ndcg",
			"Mean nDCG of the latest evaluated run",
			[]string{"model", "k"},
		),
		Topics: NewGaugeVec(
			"rice_eval_topics",
			"Number of topics in the latest evaluated run",
			[]string{"model"},
		),

		BusEventsPublished: NewCounterVec(
			"rice_eval_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"rice_eval_bus_event_latency_ms",
			"Event publish latency in milliseconds",
			[]string{"topic"},
			nil,
		),
		BusErrors: NewCounterVec(
			"rice_eval_bus_errors_total",
			"Total number of failed publishes",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"rice_eval_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"rice_eval_http_duration_ms",
			"HTTP request duration in milliseconds",
			[]string{"method", "path"},
			nil,
		),
		HTTPRequestsInFlight: NewGauge(
			"rice_eval_http_requests_in_flight",
			"Number of HTTP requests being served",
			nil,
		),

		GoroutineCount: NewGauge("rice_eval_goroutines", "Number of goroutines", nil),
		MemoryUsage:    NewGauge("rice_eval_memory_bytes", "Allocated heap bytes", nil),

		startTime: time.Now(),
	}
}

// ObserveSearch records one index search.
func (m *Metrics) ObserveSearch(model string, elapsed time.Duration, err error) {
	m.SearchRequests.WithLabels(model).Inc()
	m.SearchLatency.WithLabels(model).Observe(float64(elapsed.Microseconds()) / 1000)
	if err != nil {
		m.SearchErrors.WithLabels(model, errorCode(err)).Inc()
	}
}

// RecordIngest records a finished corpus ingestion.
func (m *Metrics) RecordIngest(documents, diagnostics int, elapsed time.Duration) {
	m.DocumentsIndexed.Add(int64(documents))
	m.Diagnostics.Add(int64(diagnostics))
	m.IngestDuration.Observe(float64(elapsed.Milliseconds()))
}

// RecordEvaluation records the outcome of evaluating one model's run.
func (m *Metrics) RecordEvaluation(model string, topics int, meanNDCG map[int]float64) {
	m.Evaluations.WithLabels(model).Inc()
	m.Topics.WithLabels(model).Set(float64(topics))
	for k, v := range meanNDCG {
		m.MeanNDCG.WithLabels(model, strconv.Itoa(k)).Set(v)
	}
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, elapsed time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(elapsed.Microseconds()) / 1000)
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records HTTP request metrics. Called by HTTPMiddleware.
func (m *Metrics) RecordHTTP(method, path string, status int, elapsed time.Duration) {
	normalized := normalizePath(path)
	m.HTTPRequests.WithLabels(method, normalized, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalized).Observe(float64(elapsed.Microseconds()) / 1000)
}

// Uptime returns the time since New.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// collectSystemMetrics refreshes the runtime gauges.
func (m *Metrics) collectSystemMetrics() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemoryUsage.Set(float64(mem.Alloc))
}

// errorCode labels an error by its application code.
func errorCode(err error) string {
	for _, code := range []string{
		errors.CodeQueryParse,
		errors.CodeIndex,
		errors.CodeUnavailable,
		errors.CodeValidation,
	} {
		if errors.HasCode(err, code) {
			return code
		}
	}
	return "generic"
}

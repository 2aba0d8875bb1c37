package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "leaderboard"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Sync   = "sync"
	RPC    = "rpc"
	HTTP   = "http"
	Faucet = "faucet"
	Sinks  = "sinks"
)

// Chunk outcome label values.
const (
	ChunkOK      = "ok"
	ChunkSkipped = "skipped"
	ChunkAborted = "aborted"
)

// Labels holds constant labels applied to all metrics.
type Labels struct {
	ChainID     uint64 // EVM chain ID of the game contract
	Environment string // Deployment environment (e.g., "production", "staging")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.ChainID != 0 {
		labels["chain_id"] = strconv.FormatUint(l.ChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	return labels
}

type Metrics struct {
	// Synchronizer progress
	checkpoint  prometheus.Gauge
	head        prometheus.Gauge
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	chunks      *prometheus.CounterVec
	logsFetched prometheus.Counter

	// Event handling
	eventsProcessed prometheus.Counter
	eventsSkipped   *prometheus.CounterVec
	upsertErrors    prometheus.Counter
	sinkErrors      *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// HTTP API
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Faucet
	faucetDrips     *prometheus.CounterVec
	rateLimitHits   *prometheus.CounterVec
	checkpointFails prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// For metrics with constant labels (e.g., chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	latencyBuckets := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	m := &Metrics{
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "checkpoint_block",
			Help:      "Last block persisted to the sync checkpoint",
		}),
		head: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "head_block",
			Help:      "Chain head observed at the start of the last run",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "runs_total",
			Help:      "Total synchronizer runs by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full synchronizer pass",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "chunks_total",
			Help:      "Block range chunks scanned by outcome",
		}, []string{"outcome"}),
		logsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "logs_fetched_total",
			Help:      "Raw logs returned by eth_getLogs",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "events_processed_total",
			Help:      "Score events that improved a stored best score",
		}),
		eventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "events_skipped_total",
			Help:      "Logs skipped by reason",
		}, []string{"reason"}),
		upsertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "upsert_errors_total",
			Help:      "Leaderboard persistence failures",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sinks,
			Name:      "errors_total",
			Help:      "Event publisher failures by sink",
		}, []string{"sink"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: HTTP,
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status class",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: HTTP,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   latencyBuckets,
		}, []string{"route", "method"}),
		faucetDrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Faucet,
			Name:      "drips_total",
			Help:      "Faucet transfers by status",
		}, []string{"status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Faucet,
			Name:      "rate_limit_total",
			Help:      "Faucet requests rejected by the rate limiter",
		}, []string{"type"}),
		checkpointFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sync,
			Name:      "checkpoint_write_errors_total",
			Help:      "Checkpoint writes that failed after all retries",
		}),
	}

	err := errors.Join(
		reg.Register(m.checkpoint),
		reg.Register(m.head),
		reg.Register(m.runs),
		reg.Register(m.runDuration),
		reg.Register(m.chunks),
		reg.Register(m.logsFetched),
		reg.Register(m.eventsProcessed),
		reg.Register(m.eventsSkipped),
		reg.Register(m.upsertErrors),
		reg.Register(m.sinkErrors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.httpRequests),
		reg.Register(m.httpDuration),
		reg.Register(m.faucetDrips),
		reg.Register(m.rateLimitHits),
		reg.Register(m.checkpointFails),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun records the outcome and duration of a synchronizer pass.
func (m *Metrics) RecordRun(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(durationSeconds)
}

// SetHead records the chain head seen by the synchronizer.
func (m *Metrics) SetHead(head uint64) {
	if m == nil {
		return
	}
	m.head.Set(float64(head))
}

// SetCheckpoint records the last persisted checkpoint block.
func (m *Metrics) SetCheckpoint(block uint64) {
	if m == nil {
		return
	}
	m.checkpoint.Set(float64(block))
}

// IncCheckpointFailure counts a checkpoint write that could not be persisted.
func (m *Metrics) IncCheckpointFailure() {
	if m == nil {
		return
	}
	m.checkpointFails.Inc()
}

// RecordChunk records a scanned chunk and the number of logs it returned.
func (m *Metrics) RecordChunk(outcome string, logs int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(outcome).Inc()
	if logs > 0 {
		m.logsFetched.Add(float64(logs))
	}
}

// IncEventsProcessed counts an event that was written to the leaderboard.
func (m *Metrics) IncEventsProcessed() {
	if m == nil {
		return
	}
	m.eventsProcessed.Inc()
}

// IncEventSkipped counts a log that was not written, labelled by reason.
func (m *Metrics) IncEventSkipped(reason string) {
	if m == nil {
		return
	}
	m.eventsSkipped.WithLabelValues(reason).Inc()
}

// IncUpsertError counts a leaderboard persistence failure.
func (m *Metrics) IncUpsertError() {
	if m == nil {
		return
	}
	m.upsertErrors.Inc()
}

// IncSinkError counts a failure to publish an event to a secondary sink.
func (m *Metrics) IncSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordHTTPRequest records a served API request.
func (m *Metrics) RecordHTTPRequest(route, method string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, StatusClass(statusCode)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(durationSeconds)
}

// RecordFaucetDrip records a faucet transfer attempt.
func (m *Metrics) RecordFaucetDrip(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.faucetDrips.WithLabelValues(status).Inc()
}

// IncRateLimitHit counts a request rejected by a limiter of the given type ("ip", "address").
func (m *Metrics) IncRateLimitHit(limitType string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(limitType).Inc()
}

// StatusClass buckets an HTTP status code into 2xx/3xx/4xx/5xx.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

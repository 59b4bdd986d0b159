package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// previewLen bounds how much user-derived text a log line may carry.
const previewLen = 80

// Recorder is the single telemetry sink: a structured logger plus
// process-wide request aggregates. Recording never fails upward; a
// request must not break because its telemetry did.
type Recorder struct {
	log zerolog.Logger

	requestsTotal   prometheus.Counter
	requestsSuccess prometheus.Counter
	requestDuration prometheus.Histogram
	engineCalls     *prometheus.CounterVec

	mu           sync.Mutex
	total        uint64
	succeeded    uint64
	totalLatency time.Duration
}

// Stats is a point-in-time snapshot of the request aggregates.
type Stats struct {
	Total        uint64
	Succeeded    uint64
	SuccessRatio float64
	AvgLatency   time.Duration
}

// NewRecorder creates a recorder and registers its instruments on reg.
func NewRecorder(log zerolog.Logger, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		log: log,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lecturelens_requests_total",
			Help: "Total analysis requests handled.",
		}),
		requestsSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lecturelens_requests_success_total",
			Help: "Analysis requests that produced a success envelope.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lecturelens_request_duration_seconds",
			Help:    "End-to-end request processing time.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturelens_engine_calls_total",
			Help: "External engine call attempts by outcome.",
		}, []string{"engine", "outcome"}),
	}
	reg.MustRegister(r.requestsTotal, r.requestsSuccess, r.requestDuration, r.engineCalls)
	return r
}

// Info starts an info-level event carrying the request id.
func (r *Recorder) Info(requestID string) *zerolog.Event {
	return r.log.Info().Str("request_id", requestID)
}

// Error starts an error-level event carrying the request id.
func (r *Recorder) Error(requestID string) *zerolog.Event {
	return r.log.Error().Str("request_id", requestID)
}

// RecordRequest updates the process-wide aggregates. It must be called
// exactly once per request, from the request's cleanup phase, regardless
// of outcome.
func (r *Recorder) RecordRequest(duration time.Duration, success bool, requestID string) {
	r.requestsTotal.Inc()
	if success {
		r.requestsSuccess.Inc()
	}
	r.requestDuration.Observe(duration.Seconds())

	r.mu.Lock()
	r.total++
	if success {
		r.succeeded++
	}
	r.totalLatency += duration
	r.mu.Unlock()
}

// RecordEngineCall counts one external engine attempt.
func (r *Recorder) RecordEngineCall(engine, outcome string) {
	r.engineCalls.WithLabelValues(engine, outcome).Inc()
}

// Snapshot returns the current request aggregates.
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Total: r.total, Succeeded: r.succeeded}
	if r.total > 0 {
		s.SuccessRatio = float64(r.succeeded) / float64(r.total)
		s.AvgLatency = r.totalLatency / time.Duration(r.total)
	}
	return s
}

// Sanitize renders user-originated text safe for logs: newlines collapsed
// and the whole thing truncated to a short preview. Raw transcript or
// analysis content must never reach persistent logs.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return string(runes[:previewLen]) + "..."
}

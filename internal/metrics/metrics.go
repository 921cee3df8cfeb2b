// Package metrics records per-method call durations and error counts and
// serves them in Prometheus exposition format.
//
// The Recorder owns its registry instead of using the process-global one,
// so tests (and any future second extractor in the same process) get fully
// isolated metric state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rpcextractor"

// LabelMethod is the single label dimension on every instrument; values are
// the catalog's method names.
const LabelMethod = "rpc_method"

var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

type Recorder struct {
	registry *prometheus.Registry

	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_fetch_duration_seconds",
			Help:      "Time it took to fetch data from the RPC endpoint.",
			Buckets:   durationBuckets,
		}, []string{LabelMethod}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_fetch_errors_total",
			Help:      "Number of errors while fetching data from the RPC endpoint.",
		}, []string{LabelMethod}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_publish_errors_total",
			Help:      "Number of errors while publishing events to NATS.",
		}, []string{LabelMethod}),
	}
	r.registry.MustRegister(r.fetchDuration, r.fetchErrors, r.publishErrors)
	return r
}

// ObserveFetch records the duration of one resolved call, success or failure.
func (r *Recorder) ObserveFetch(method string, elapsed time.Duration) {
	r.fetchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (r *Recorder) IncFetchError(method string) {
	r.fetchErrors.WithLabelValues(method).Inc()
}

func (r *Recorder) IncPublishError(method string) {
	r.publishErrors.WithLabelValues(method).Inc()
}

// Registry exposes the instance registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler returns the exposition handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

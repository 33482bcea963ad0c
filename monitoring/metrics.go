package monitoring

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fraudguard/inference"
)

const namespace = "fraudguard"

// Metrics holds every Prometheus collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	predictions      *prometheus.CounterVec
	inferenceErrors  *prometheus.CounterVec
	fraudProbability prometheus.Histogram
	modelAvailable   prometheus.Gauge
	artifactChanges  prometheus.Counter

	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Completed inferences by verdict",
		}, []string{"verdict"}),
		inferenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Rejected or failed inferences by reason",
		}, []string{"reason"}),
		fraudProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fraud_probability",
			Help:      "Distribution of the model's fraud probability",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		modelAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_available",
			Help:      "1 when the model artifact loaded, 0 otherwise",
		}),
		artifactChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_changes_total",
			Help:      "Changes seen on the artifact file since startup",
		}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path", "status"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetModelAvailable records the startup load outcome.
func (m *Metrics) SetModelAvailable(ok bool) {
	if ok {
		m.modelAvailable.Set(1)
		return
	}
	m.modelAvailable.Set(0)
}

// ArtifactChanged counts one change event on the artifact file.
func (m *Metrics) ArtifactChanged() {
	m.artifactChanges.Inc()
}

// ObservePrediction implements inference.Observer.
func (m *Metrics) ObservePrediction(result inference.PredictionResult) {
	m.predictions.WithLabelValues(result.Verdict.String()).Inc()
	m.fraudProbability.Observe(result.Probabilities.Fraud)
}

// ObserveFailure implements inference.Observer.
func (m *Metrics) ObserveFailure(err error) {
	m.inferenceErrors.WithLabelValues(FailureReason(err)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
}

// FailureReason buckets inference errors into a small label set.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, inference.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, inference.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, inference.ErrInvalidModelOutput):
		return "invalid_model_output"
	default:
		return "other"
	}
}

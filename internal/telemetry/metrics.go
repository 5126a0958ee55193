package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadre-oss/statecast/internal/state"
)

const namespace = "statecast"

// Metrics collects runtime metrics on a private Prometheus registry. It
// implements event.Metrics and realtime.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	eventsAccepted *prometheus.CounterVec
	eventsRejected prometheus.Counter
	listenerFaults prometheus.Counter
	subscribers    prometheus.Gauge
	currentState   *prometheus.GaugeVec
	superseded     prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInflight   prometheus.Gauge
	sseClients     prometheus.Gauge
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_accepted_total",
			Help:      "Total accepted state transitions",
		}, []string{"state"}),
		eventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_rejected_total",
			Help:      "Total emits rejected by validation",
		}),
		listenerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "listener_faults_total",
			Help:      "Total listener and hook failures",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Current number of hub subscribers",
		}),
		currentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_state",
			Help:      "1 for the current state, 0 otherwise",
		}, []string{"state"}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "superseded_total",
			Help:      "Events dropped from delivery by debouncing",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "sse_clients",
			Help:      "Connected stream clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsAccepted, m.eventsRejected, m.listenerFaults, m.subscribers,
		m.currentState, m.superseded,
		m.httpRequests, m.httpDuration, m.httpInflight, m.sseClients,
	)
	for _, s := range state.All {
		m.currentState.WithLabelValues(string(s)).Set(0)
	}
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// EventAccepted counts a transition and marks st as current.
func (m *Metrics) EventAccepted(st state.State) {
	m.eventsAccepted.WithLabelValues(string(st)).Inc()
	for _, s := range state.All {
		v := 0.0
		if s == st {
			v = 1
		}
		m.currentState.WithLabelValues(string(s)).Set(v)
	}
}

// EventRejected counts a validation failure.
func (m *Metrics) EventRejected() { m.eventsRejected.Inc() }

// ListenerFault counts a failed listener or hook.
func (m *Metrics) ListenerFault() { m.listenerFaults.Inc() }

// SubscribersChanged records the hub's subscriber count.
func (m *Metrics) SubscribersChanged(n int) { m.subscribers.Set(float64(n)) }

// DeliverySuperseded counts an event skipped by realtime debouncing.
func (m *Metrics) DeliverySuperseded() { m.superseded.Inc() }

// SSEConnected tracks stream clients; call the returned func on disconnect.
func (m *Metrics) SSEConnected() func() {
	m.sseClients.Inc()
	return m.sseClients.Dec
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streaming handlers keep working.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments requests for Prometheus
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInflight.Inc()
		next.ServeHTTP(sr, r)
		m.httpInflight.Dec()

		// route pattern is only known after routing
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		m.httpRequests.WithLabelValues(path, r.Method, status).Inc()
		m.httpDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

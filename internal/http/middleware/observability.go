package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"laundry-dispatch/internal/logx"
)

// actorHeader carries the id of the calling customer, provider or courier.
const actorHeader = "X-Actor-ID"

var requestLabels = []string{"method", "route", "status"}

// HTTPMetrics holds the request metrics of the public API.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics creates unregistered request metrics.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route template and status.",
		}, requestLabels),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency. Tracking streams are excluded.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, requestLabels),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served, open tracking streams included.",
		}),
	}
}

// Collectors returns the collectors to register.
func (m *HTTPMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Requests, m.Duration, m.InFlight}
}

// Observability records request metrics and writes one access log entry per
// request. Server errors log at error level, client errors at warn.
func Observability(logger logx.Logger, m *HTTPMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m != nil {
				m.InFlight.Inc()
				defer m.InFlight.Dec()
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := routeTemplate(r) // шаблон, а не сырой путь: иначе кардинальность меток
			code := ww.Status()
			if m != nil {
				status := strconv.Itoa(code)
				m.Requests.WithLabelValues(r.Method, route, status).Inc()
				if !isStream(ww) {
					m.Duration.WithLabelValues(r.Method, route, status).Observe(elapsed.Seconds())
				}
			}

			fields := []logx.Field{
				logx.String("req_id", chimw.GetReqID(r.Context())),
				logx.String("method", r.Method),
				logx.String("route", route),
				logx.Int("status", code),
				logx.Duration("duration", elapsed),
			}
			if actor := r.Header.Get(actorHeader); actor != "" {
				fields = append(fields, logx.String("actor", actor))
			}
			switch {
			case code >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case code >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

func isStream(w http.ResponseWriter) bool {
	return w.Header().Get("Content-Type") == "text/event-stream"
}

func routeTemplate(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

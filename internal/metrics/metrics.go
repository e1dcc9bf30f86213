package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compost",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the external API by method and outcome",
	}, []string{"method", "outcome"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "compost",
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of requests sent to the external API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	cascadeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compost",
		Name:      "cascade_runs_total",
		Help:      "Owner cascade deletions by result and failed phase",
	}, []string{"result", "phase"})

	cascadeDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compost",
		Name:      "cascade_deleted_records_total",
		Help:      "Records deleted by cascade runs per phase",
	}, []string{"phase"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "compost",
		Name:      "sessions_created_minus_closed",
		Help:      "Sessions opened minus sessions closed since process start",
	})
)

// ObserveUpstream registra una llamada a la API externa
func ObserveUpstream(method string, status int, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case status >= 500:
		outcome = "http_5xx"
	case status >= 400:
		outcome = "http_4xx"
	case status < 200 || status > 299:
		outcome = "http_other"
	}
	upstreamRequests.WithLabelValues(method, outcome).Inc()
	upstreamDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// CascadeFinished registra el resultado de un borrado en cascada
func CascadeFinished(failedPhase string) {
	if failedPhase == "" {
		cascadeRuns.WithLabelValues("completed", "").Inc()
		return
	}
	cascadeRuns.WithLabelValues("failed", failedPhase).Inc()
}

// RecordDeleted suma un registro eliminado en la fase indicada
func RecordDeleted(phase string) {
	cascadeDeletes.WithLabelValues(phase).Inc()
}

// SessionOpened y SessionClosed mantienen el gauge de sesiones
func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// Handler expone las métricas para Prometheus
func Handler() http.Handler {
	return promhttp.Handler()
}

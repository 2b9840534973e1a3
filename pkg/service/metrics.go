package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appflagd_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		}, []string{"route", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appflagd_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appflagd_resolutions_total",
			Help: "Flag resolutions by reason",
		}, []string{"reason"},
	)
	streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appflagd_stream_subscribers",
		Help: "Open flag stream connections",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, resolutionsTotal, streamSubscribers)
}

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *rec) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, strconv.Itoa(rr.code)).Inc()
	})
}

func metricsHandler() http.Handler { return promhttp.Handler() }

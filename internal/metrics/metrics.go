// Package metrics exposes Prometheus collectors for the fulfillment service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	purchasesTotal             *prometheus.CounterVec
	webhookEventsTotal         *prometheus.CounterVec
	scrapesTotal               *prometheus.CounterVec
	reportsTotal               *prometheus.CounterVec
	pipelineDurationSeconds    *prometheus.HistogramVec
	activePipelines            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	tempCartsSweptTotal        prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		purchasesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitereport_purchases_total",
				Help: "Purchases reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		webhookEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitereport_webhook_events_total",
				Help: "Order events received, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitereport_scrapes_total",
				Help: "Scrape attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		reportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitereport_reports_total",
				Help: "Report generation attempts, labeled by report type and outcome.",
			},
			[]string{"report_type", "outcome"},
		)

		pipelineDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitereport_pipeline_duration_seconds",
				Help:    "Fulfillment pipeline wall time, labeled by final status.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		)

		activePipelines = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitereport_active_pipelines",
				Help: "Number of fulfillment pipelines currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitereport_rate_limit_delay_seconds",
				Help:    "Outbound rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		tempCartsSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitereport_temp_carts_swept_total",
				Help: "Expired temporary carts removed by the sweeper.",
			},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePurchase counts a purchase that reached status.
func ObservePurchase(status string) {
	Init()
	purchasesTotal.WithLabelValues(status).Inc()
}

// ObserveWebhook counts an order event by outcome (accepted, duplicate, rejected, error).
func ObserveWebhook(outcome string) {
	Init()
	webhookEventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape counts a scrape attempt.
func ObserveScrape(strategy, outcome string) {
	Init()
	scrapesTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveReport counts a report generation attempt.
func ObserveReport(reportType, outcome string) {
	Init()
	reportsTotal.WithLabelValues(reportType, outcome).Inc()
}

// ObservePipeline records how long a pipeline ran before landing in status.
func ObservePipeline(status string, duration time.Duration) {
	Init()
	pipelineDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActivePipelines increments the active pipelines gauge.
func IncActivePipelines() {
	Init()
	activePipelines.Inc()
}

// DecActivePipelines decrements the active pipelines gauge.
func DecActivePipelines() {
	Init()
	activePipelines.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveTempCartsSwept counts removed temporary carts.
func ObserveTempCartsSwept(n int64) {
	if n <= 0 {
		return
	}
	Init()
	tempCartsSweptTotal.Add(float64(n))
}

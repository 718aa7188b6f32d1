// Package metrics exposes Prometheus collectors for the watcher service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	watcherSessionsTotal      *prometheus.CounterVec
	watcherPollsTotal         *prometheus.CounterVec
	watcherAvailabilityEvents *prometheus.CounterVec
	watcherNotificationsTotal *prometheus.CounterVec
	captchaSolvesTotal        *prometheus.CounterVec
	captchaSolveSeconds       prometheus.Histogram
	watcherActiveSessions     prometheus.Gauge
	proxyCheckoutWaitSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		watcherSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watcher_sessions_total",
				Help: "Total number of booking-site sessions, labeled by category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		watcherPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watcher_polls_total",
				Help: "Total number of calendar polls, labeled by category and result.",
			},
			[]string{"category", "result"},
		)

		watcherAvailabilityEvents = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watcher_availability_events_total",
				Help: "Total availability transitions, labeled by category and kind.",
			},
			[]string{"category", "kind"},
		)

		watcherNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watcher_notifications_total",
				Help: "Total notification sends, labeled by channel and status.",
			},
			[]string{"channel", "status"},
		)

		captchaSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captcha_solves_total",
				Help: "Total captcha solve attempts, labeled by provider and status.",
			},
			[]string{"provider", "status"},
		)

		captchaSolveSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "captcha_solve_seconds",
				Help:    "Histogram of end-to-end captcha solve latencies.",
				Buckets: []float64{5, 10, 15, 20, 30, 45, 60, 120},
			},
		)

		watcherActiveSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "watcher_active_sessions",
				Help: "Number of browser sessions currently open.",
			},
		)

		proxyCheckoutWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxy_checkout_wait_seconds",
				Help:    "Histogram of time spent waiting for a free proxy.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSession increments the session counter for the given outcome.
func ObserveSession(category, outcome string) {
	watcherSessionsTotal.WithLabelValues(category, outcome).Inc()
}

// ObservePoll increments the poll counter for the given result.
func ObservePoll(category, result string) {
	watcherPollsTotal.WithLabelValues(category, result).Inc()
}

// ObserveAvailabilityEvent increments the availability transition counter.
func ObserveAvailabilityEvent(category, kind string) {
	watcherAvailabilityEvents.WithLabelValues(category, kind).Inc()
}

// ObserveNotification increments the notification counter.
func ObserveNotification(channel, status string) {
	watcherNotificationsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveCaptchaSolve records one solve attempt and its latency.
func ObserveCaptchaSolve(provider, status string, duration time.Duration) {
	captchaSolvesTotal.WithLabelValues(provider, status).Inc()
	captchaSolveSeconds.Observe(duration.Seconds())
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	watcherActiveSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	watcherActiveSessions.Dec()
}

// ObserveProxyCheckoutWait records how long a proxy checkout blocked.
func ObserveProxyCheckoutWait(duration time.Duration) {
	proxyCheckoutWaitSeconds.Observe(duration.Seconds())
}

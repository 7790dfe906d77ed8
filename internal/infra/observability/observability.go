// Package observability holds the Prometheus metrics exported on /metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sync Metrics ───────────────────────────────────────────────────────────

// SyncRequests counts sync API calls by method, scope and HTTP status.
var SyncRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "star",
	Subsystem: "sync",
	Name:      "requests_total",
	Help:      "Total sync requests by method, scope and status code.",
}, []string{"method", "scope", "status"})

// SyncDuration tracks how long the store took to answer a sync call.
var SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "star",
	Subsystem: "sync",
	Name:      "duration_seconds",
	Help:      "Sync request latency by method and scope.",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"method", "scope"})

// ObserveSync records one finished sync request.
func ObserveSync(method, scope string, status int, d time.Duration) {
	SyncRequests.WithLabelValues(method, scope, strconv.Itoa(status)).Inc()
	SyncDuration.WithLabelValues(method, scope).Observe(d.Seconds())
}

// ─── Family Metrics ─────────────────────────────────────────────────────────

// FamiliesCreated counts families registered through the API.
var FamiliesCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "star",
	Subsystem: "family",
	Name:      "created_total",
	Help:      "Total families created.",
})

// ─── Event Stream Metrics ───────────────────────────────────────────────────

// EventSubscribers is the number of open balance event streams.
var EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "star",
	Subsystem: "events",
	Name:      "subscribers",
	Help:      "Current number of connected balance event streams.",
})

// EventsDropped counts events skipped because a subscriber was too slow.
var EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "star",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "Balance events dropped for slow subscribers.",
})

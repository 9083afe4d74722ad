// Package metrics exposes Prometheus counters for store traffic, bindings,
// notices and HTTP requests. Every helper is a no-op until Init is called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "stojala_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	storeWrites    *prometheus.CounterVec
	storeSnapshots *prometheus.CounterVec
	liveBindings   *prometheus.GaugeVec
	notices        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	reconciled     prometheus.Counter
)

// Init registers the metrics with the default registry. It is safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		storeWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_writes_total",
				Help: "Store writes by collection, operation and result",
			},
			[]string{"collection", "op", "result"},
		)
		storeSnapshots = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_snapshots_total",
				Help: "Snapshots delivered to bindings by collection and result",
			},
			[]string{"collection", "result"},
		)
		liveBindings = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "bindings_active",
				Help: "Open live subscriptions by collection",
			},
			[]string{"collection"},
		)
		notices = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notices_total",
				Help: "Notices shown by severity",
			},
			[]string{"severity"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
		reconciled = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconciled_reports_total",
				Help: "Pending reports completed by the reconciler",
			},
		)

		prometheus.MustRegister(
			storeWrites,
			storeSnapshots,
			liveBindings,
			notices,
			httpRequests,
			httpLatency,
			reconciled,
		)
	})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveWrite counts one store write.
func ObserveWrite(collection, op string, err error) {
	if storeWrites != nil {
		storeWrites.WithLabelValues(collection, op, result(err)).Inc()
	}
}

// ObserveSnapshot counts one delivered snapshot.
func ObserveSnapshot(collection string, err error) {
	if storeSnapshots != nil {
		storeSnapshots.WithLabelValues(collection, result(err)).Inc()
	}
}

// BindingOpened tracks a new live subscription.
func BindingOpened(collection string) {
	if liveBindings != nil {
		liveBindings.WithLabelValues(collection).Inc()
	}
}

// BindingClosed tracks a torn down live subscription.
func BindingClosed(collection string) {
	if liveBindings != nil {
		liveBindings.WithLabelValues(collection).Dec()
	}
}

// IncNotice counts a shown notice.
func IncNotice(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if notices != nil {
		notices.WithLabelValues(severity).Inc()
	}
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, status string, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, status).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// AddReconciled counts reports finished by the reconciler.
func AddReconciled(n int) {
	if reconciled != nil && n > 0 {
		reconciled.Add(float64(n))
	}
}

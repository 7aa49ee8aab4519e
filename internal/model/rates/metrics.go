package rates

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	histogramFetchTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "currency_rates",
			Subsystem: "gateway",
			Name:      "histogram_fetch_time_seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	counterCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "currency_rates",
			Subsystem: "cache",
			Name:      "lookups_total",
		},
		[]string{"result"},
	)

	counterRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "currency_rates",
			Subsystem: "engine",
			Name:      "refreshes_total",
		},
		[]string{"outcome"},
	)

	gaugeCurrentRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "currency_rates",
			Subsystem: "engine",
			Name:      "current_rate",
		},
		[]string{"source", "target"},
	)

	counterSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "currency_rates",
			Subsystem: "engine",
			Name:      "superseded_resolutions_total",
		},
	)
)

func observeFetch(elapsed time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	histogramFetchTime.WithLabelValues(status).Observe(elapsed.Seconds())
}

func observeCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	counterCacheLookups.WithLabelValues(result).Inc()
}

func observeRefresh(o RefreshOutcome) {
	counterRefreshes.WithLabelValues(o.Kind.String()).Inc()
}

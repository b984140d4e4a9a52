package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	applies  *prometheus.CounterVec
	commits  *prometheus.CounterVec
	releases *prometheus.CounterVec
	catalog  *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// metrics returns the lazily registered engine metrics.
func metrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			applies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "engine",
				Name:      "applies_total",
				Help:      "Discount applications segmented by the offer kind reserved.",
			}, []string{"result"}),
			commits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "engine",
				Name:      "commits_total",
				Help:      "Reservation commits segmented by outcome.",
			}, []string{"outcome"}),
			releases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "engine",
				Name:      "releases_total",
				Help:      "Reservation releases segmented by outcome.",
			}, []string{"outcome"}),
			catalog: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promo",
				Subsystem: "catalog",
				Name:      "changes_total",
				Help:      "Admin catalog changes segmented by operation and result.",
			}, []string{"operation", "result"}),
		}
		prometheus.MustRegister(
			engineRegistry.applies,
			engineRegistry.commits,
			engineRegistry.releases,
			engineRegistry.catalog,
		)
	})
	return engineRegistry
}

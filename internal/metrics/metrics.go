// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsync",
		Name:      "active_document_sessions",
		Help:      "Number of documents currently held in memory",
	})

	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsync",
		Name:      "open_connections",
		Help:      "Number of open collaboration sockets",
	})

	UpdatesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Name:      "document_updates_total",
		Help:      "Total number of document updates applied and relayed",
	})

	SnapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Name:      "snapshot_saves_total",
		Help:      "Total number of successful snapshot writes",
	})

	SnapshotSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Name:      "snapshot_save_failures_total",
		Help:      "Total number of snapshot writes that failed after retry",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

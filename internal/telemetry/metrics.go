// Package telemetry provides application-level observability for the audit service.
//
// All metrics are registered against the default Prometheus registry and served
// on a side-channel HTTP listener started by cmd/server (default port 9090),
// separate from the main API server so the scrape path stays off the public
// ingress. Label sets are intentionally small and bounded: record kind, action,
// and login status are closed enums, never user-supplied strings.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit pipeline metrics.
//
// AuditRecordsTotal counts records accepted by the primary store, labelled by
// record kind (operate, login, password_change) and action (create, update,
// delete, or "-" where the kind has no action dimension).
var (
	AuditRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_records_total",
		Help: "Audit records persisted to the primary store",
	}, []string{"kind", "action"})

	AuditBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_relation_batch_size",
		Help:    "Number of records per relation-change batch insert",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	MirrorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_mirror_failures_total",
		Help: "Failed mirror writes to the secondary log stream, by category",
	}, []string{"category"})

	LoginEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_login_events_total",
		Help: "Authentication events recorded, by outcome",
	}, []string{"status"})

	UnusualLoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_unusual_logins_total",
		Help: "Logins flagged by the unusual-location check",
	})

	ArchiveExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_archive_exports_total",
		Help: "Archive export job runs, by result",
	}, []string{"result"})
)

// DBConnectionsOpen reports the database pool state, polled every 30 s.
var DBConnectionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "db_connections_open",
	Help: "Open database connections, by state (in_use, idle)",
}, []string{"state"})

// StartDBStatsCollector polls db.Stats() on a fixed interval and exports the
// pool gauges. The goroutine runs for the life of the process.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := db.Stats()
			DBConnectionsOpen.WithLabelValues("in_use").Set(float64(stats.InUse))
			DBConnectionsOpen.WithLabelValues("idle").Set(float64(stats.Idle))
		}
	}()
	slog.Debug("database stats collector started")
}

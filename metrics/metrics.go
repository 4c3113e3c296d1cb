// Package metrics exports backup operation counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stupid-simple/dbbackup/backup"
)

const namespace = "ssdb"

var _ backup.Observer = (*Collector)(nil)

// Collector records store and restore outcomes. It implements
// backup.Observer.
type Collector struct {
	created     *prometheus.CounterVec
	failed      *prometheus.CounterVec
	deleted     prometheus.Counter
	lastSize    prometheus.Gauge
	lastSuccess *prometheus.GaugeVec
	restores    *prometheus.CounterVec
	freedBytes  prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		created: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_created_total",
			Help:      "Backups written to the backup directory.",
		}, []string{"type"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_failed_total",
			Help:      "Backup attempts that did not produce an artifact.",
		}, []string{"type", "reason"}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_deleted_total",
			Help:      "Backups removed by request or retention.",
		}),
		lastSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_last_size_bytes",
			Help:      "Size of the most recent backup.",
		}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_last_success_timestamp_seconds",
			Help:      "Creation time of the most recent backup.",
		}, []string{"type"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore attempts by result.",
		}, []string{"result"}),
		freedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_deleted_bytes_total",
			Help:      "Bytes released by deleted backups.",
		}),
	}
}

func (c *Collector) BackupCreated(r backup.Record) {
	c.created.WithLabelValues(string(r.Type)).Inc()
	c.lastSize.Set(float64(r.FileSize))
	c.lastSuccess.WithLabelValues(string(r.Type)).Set(float64(r.CreatedAt.Unix()))
}

func (c *Collector) BackupFailed(t backup.Type, err error) {
	c.failed.WithLabelValues(string(t), reason(err)).Inc()
}

func (c *Collector) BackupDeleted(r backup.Record) {
	c.deleted.Inc()
	c.freedBytes.Add(float64(r.FileSize))
}

func (c *Collector) RestoreFinished(_ backup.Record, err error) {
	c.restores.WithLabelValues(reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, backup.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, backup.ErrNotFound):
		return "not_found"
	case errors.Is(err, backup.ErrReinitFailed):
		return "reinit_failed"
	case errors.Is(err, backup.ErrRestoreFailed):
		return "restore_failed"
	case errors.Is(err, backup.ErrBackupFailed):
		return "backup_failed"
	default:
		return "error"
	}
}

// Package metrics exposes Prometheus counters for scans, check-ins and imports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the attendance service reports to.
type Recorder interface {
	RecordScan(outcome string)
	RecordStatusChange(source, status string)
	RecordImport(source string, accepted, rejected int)
	RecordCascade(removed int)
	RecordClear(removed int)
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	scans         *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	imported      *prometheus.CounterVec
	rejectedRows  *prometheus.CounterVec
	cascaded      prometheus.Counter
	cleared       prometheus.Counter
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_scans_total",
			Help: "Scanner ticks by outcome",
		}, []string{"outcome"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_status_changes_total",
			Help: "Attendance logs written, by source and status",
		}, []string{"source", "status"}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_imported_records_total",
			Help: "Records merged by import source",
		}, []string{"source"}),
		rejectedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_import_rejected_rows_total",
			Help: "Rows skipped during import validation",
		}, []string{"source"}),
		cascaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_cascade_deleted_logs_total",
			Help: "Logs removed because their student was deleted",
		}),
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_cleared_logs_total",
			Help: "Logs removed by clear operations",
		}),
	}

	reg.MustRegister(
		c.scans,
		c.statusChanges,
		c.imported,
		c.rejectedRows,
		c.cascaded,
		c.cleared,
	)

	return c
}

// RecordScan counts one scanner tick.
func (c *Collector) RecordScan(outcome string) {
	c.scans.WithLabelValues(outcome).Inc()
}

// RecordStatusChange counts a written log.
func (c *Collector) RecordStatusChange(source, status string) {
	c.statusChanges.WithLabelValues(source, status).Inc()
}

// RecordImport counts merged and rejected records of one import.
func (c *Collector) RecordImport(source string, accepted, rejected int) {
	c.imported.WithLabelValues(source).Add(float64(accepted))
	c.rejectedRows.WithLabelValues(source).Add(float64(rejected))
}

// RecordCascade counts logs removed with their student.
func (c *Collector) RecordCascade(removed int) {
	c.cascaded.Add(float64(removed))
}

// RecordClear counts logs removed by a clear.
func (c *Collector) RecordClear(removed int) {
	c.cleared.Add(float64(removed))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordScan(string) {}

func (Nop) RecordStatusChange(string, string) {}

func (Nop) RecordImport(string, int, int) {}

func (Nop) RecordCascade(int) {}

func (Nop) RecordClear(int) {}

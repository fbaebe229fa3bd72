package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnitStatus label values for rollup_units_total.
const (
	UnitStatusSuccess = "success"
	UnitStatusFailed  = "failed"
	UnitStatusSkipped = "skipped"
)

// RollupMetrics carries the prometheus instruments for partition
// provisioning and snapshot rollup.
type RollupMetrics struct {
	unitsTotal        *prometheus.CounterVec
	unitDuration      *prometheus.HistogramVec
	unitRetries       *prometheus.CounterVec
	partitionsCreated *prometheus.CounterVec
	eventsAppended    *prometheus.CounterVec
	rowsFiltered      *prometheus.CounterVec
}

var (
	rollupOnce    sync.Once
	rollupMetrics *RollupMetrics
)

// Rollup returns the process-wide rollup metrics, registering them on the
// default registerer on first use.
func Rollup() *RollupMetrics {
	rollupOnce.Do(func() {
		rollupMetrics = newRollupMetrics(prometheus.DefaultRegisterer)
	})
	return rollupMetrics
}

func newRollupMetrics(reg prometheus.Registerer) *RollupMetrics {
	factory := promauto.With(reg)
	return &RollupMetrics{
		unitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppulse_rollup_units_total",
			Help: "Reconciliation units by entity type and terminal status.",
		}, []string{"entity_type", "status"}),
		unitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shoppulse_rollup_unit_duration_seconds",
			Help:    "Wall time of a single (entity type, date) reconciliation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity_type"}),
		unitRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppulse_rollup_unit_retries_total",
			Help: "Transient-error retries per entity type.",
		}, []string{"entity_type"}),
		partitionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppulse_partitions_created_total",
			Help: "Physical partitions created, by logical table.",
		}, []string{"table"}),
		eventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppulse_events_appended_total",
			Help: "Events appended to the log by entity type and kind.",
		}, []string{"entity_type", "kind"}),
		rowsFiltered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppulse_reconcile_rows_filtered_total",
			Help: "Source rows dropped for data-quality reasons.",
		}, []string{"entity_type", "reason"}),
	}
}

func (m *RollupMetrics) IncUnit(entityType, status string) {
	m.unitsTotal.WithLabelValues(entityType, status).Inc()
}

func (m *RollupMetrics) ObserveUnitDuration(entityType string, d time.Duration) {
	m.unitDuration.WithLabelValues(entityType).Observe(d.Seconds())
}

func (m *RollupMetrics) IncUnitRetry(entityType string) {
	m.unitRetries.WithLabelValues(entityType).Inc()
}

func (m *RollupMetrics) IncPartitionCreated(table string) {
	m.partitionsCreated.WithLabelValues(table).Inc()
}

func (m *RollupMetrics) IncEventAppended(entityType, kind string) {
	m.eventsAppended.WithLabelValues(entityType, kind).Inc()
}

func (m *RollupMetrics) IncRowFiltered(entityType, reason string) {
	m.rowsFiltered.WithLabelValues(entityType, reason).Inc()
}

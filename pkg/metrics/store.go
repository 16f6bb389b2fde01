package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for store lifecycle and deferred cleanup.
type StoreMetrics interface {
	// RecordStoreCreated records the creation of a store of the given kind.
	RecordStoreCreated(kind string)

	// RecordStoreDeleted records the deletion of a store.
	RecordStoreDeleted()

	// SetPresentStores updates the number of locally present stores.
	SetPresentStores(count int)

	// RecordCleanupRows records rows removed by deferred cleanup.
	//
	// Parameters:
	//   - table: table the rows were purged from
	//   - rows: number of rows removed
	RecordCleanupRows(table string, rows int)

	// SetPendingCleanups updates the number of stores awaiting deferred cleanup.
	SetPendingCleanups(count int)
}

type storeMetrics struct {
	created         *prometheus.CounterVec
	deleted         prometheus.Counter
	present         prometheus.Gauge
	cleanupRows     *prometheus.CounterVec
	pendingCleanups prometheus.Gauge
}

// NewStoreMetrics creates a new Prometheus-backed StoreMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() StoreMetrics {
	if !IsEnabled() {
		return NewNoopStoreMetrics()
	}

	reg := GetRegistry()

	return &storeMetrics{
		created: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_stores_created_total",
				Help: "Total number of stores created by kind",
			},
			[]string{"kind"},
		),
		deleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosync_stores_deleted_total",
				Help: "Total number of stores deleted",
			},
		),
		present: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosync_stores_present",
				Help: "Current number of locally present stores",
			},
		),
		cleanupRows: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_cleanup_rows_total",
				Help: "Total number of rows removed by deferred cleanup by table",
			},
			[]string{"table"},
		),
		pendingCleanups: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosync_cleanup_pending_stores",
				Help: "Current number of stores awaiting deferred cleanup",
			},
		),
	}
}

func (m *storeMetrics) RecordStoreCreated(kind string) {
	m.created.WithLabelValues(kind).Inc()
}

func (m *storeMetrics) RecordStoreDeleted() {
	m.deleted.Inc()
}

func (m *storeMetrics) SetPresentStores(count int) {
	m.present.Set(float64(count))
}

func (m *storeMetrics) RecordCleanupRows(table string, rows int) {
	m.cleanupRows.WithLabelValues(table).Add(float64(rows))
}

func (m *storeMetrics) SetPendingCleanups(count int) {
	m.pendingCleanups.Set(float64(count))
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordStoreCreated(string)      {}
func (noopStoreMetrics) RecordStoreDeleted()            {}
func (noopStoreMetrics) SetPresentStores(int)           {}
func (noopStoreMetrics) RecordCleanupRows(string, int) {}
func (noopStoreMetrics) SetPendingCleanups(int)         {}

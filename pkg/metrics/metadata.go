package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetadataMetrics provides observability for the directory service.
//
// This interface is optional - if not provided to the directory service,
// operations proceed without metrics collection (zero overhead).
//
// Example usage:
//
//	// With metrics enabled
//	m := metrics.NewMetadataMetrics()
//	svc := ds.New(db, stores, ds.Options{Files: phy, Metrics: m})
//
//	// Without metrics (no-op)
//	svc := ds.New(db, stores, ds.Options{Files: phy})
type MetadataMetrics interface {
	// RecordOperation records a completed directory service mutation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "CreateOA", "SetOAParentAndName")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordCacheHit records a cache hit.
	//
	// Parameters:
	//   - cacheType: Type of cache ("path", "oa")
	RecordCacheHit(cacheType string)

	// RecordCacheMiss records a cache miss.
	//
	// Parameters:
	//   - cacheType: Type of cache ("path", "oa")
	RecordCacheMiss(cacheType string)

	// RecordInvalidation records a cache invalidation.
	//
	// Parameters:
	//   - cacheType: Type of cache ("path", "oa")
	//   - scope: "entry" for surgical invalidation, "all" for blanket invalidation
	RecordInvalidation(cacheType, scope string)

	// RecordNotification records one listener notification fan-out.
	//
	// Parameters:
	//   - kind: Notification kind (e.g., "created", "moved", "expelled")
	RecordNotification(kind string)
}

// metadataMetrics is the Prometheus implementation of MetadataMetrics.
type metadataMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	invalidations     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

// NewMetadataMetrics creates a new Prometheus-backed MetadataMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewMetadataMetrics() MetadataMetrics {
	if !IsEnabled() {
		return NewNoopMetadataMetrics()
	}

	reg := GetRegistry()

	return &metadataMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_metadata_operations_total",
				Help: "Total number of directory service mutations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittosync_metadata_operation_duration_seconds",
				Help: "Duration of directory service mutations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
				},
			},
			[]string{"operation"},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_metadata_cache_hits_total",
				Help: "Total number of metadata cache hits by cache type",
			},
			[]string{"cache_type"},
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_metadata_cache_misses_total",
				Help: "Total number of metadata cache misses by cache type",
			},
			[]string{"cache_type"},
		),
		invalidations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_metadata_cache_invalidations_total",
				Help: "Total number of metadata cache invalidations by cache type and scope",
			},
			[]string{"cache_type", "scope"},
		),
		notifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_metadata_notifications_total",
				Help: "Total number of change notifications dispatched by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *metadataMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *metadataMetrics) RecordCacheHit(cacheType string) {
	m.cacheHits.WithLabelValues(cacheType).Inc()
}

func (m *metadataMetrics) RecordCacheMiss(cacheType string) {
	m.cacheMisses.WithLabelValues(cacheType).Inc()
}

func (m *metadataMetrics) RecordInvalidation(cacheType, scope string) {
	m.invalidations.WithLabelValues(cacheType, scope).Inc()
}

func (m *metadataMetrics) RecordNotification(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NewNoopMetadataMetrics returns a MetadataMetrics that discards everything.
func NewNoopMetadataMetrics() MetadataMetrics {
	return noopMetadataMetrics{}
}

// noopMetadataMetrics is a no-op implementation of MetadataMetrics with zero overhead.
type noopMetadataMetrics struct{}

func (noopMetadataMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopMetadataMetrics) RecordCacheHit(cacheType string)                                     {}
func (noopMetadataMetrics) RecordCacheMiss(cacheType string)                                    {}
func (noopMetadataMetrics) RecordInvalidation(cacheType, scope string)                          {}
func (noopMetadataMetrics) RecordNotification(kind string)                                      {}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AggregatorMetrics provides observability for sync-status aggregation and
// the remote status feed.
type AggregatorMetrics interface {
	// ObservePropagation records how many ancestors one status change touched.
	ObservePropagation(depth int)

	// RecordRawStatusUpdate records a raw status change applied to an object.
	RecordRawStatusUpdate()

	// RecordSubtreeRebuild records a counter rebuild after readmission or
	// restore from trash.
	//
	// Parameters:
	//   - objects: number of objects whose counters were rebuilt
	RecordSubtreeRebuild(objects int)

	// RecordFeedPull records one pull from the remote status feed.
	//
	// Parameters:
	//   - updates: number of status updates received
	//   - err: Error if the pull failed
	RecordFeedPull(updates int, err error)

	// SetEpoch records the last applied feed epoch.
	SetEpoch(epoch uint64)
}

type aggregatorMetrics struct {
	propagationDepth prometheus.Histogram
	rawUpdates       prometheus.Counter
	rebuiltObjects   prometheus.Counter
	feedPulls        *prometheus.CounterVec
	feedUpdates      prometheus.Counter
	epoch            prometheus.Gauge
}

// NewAggregatorMetrics creates a new Prometheus-backed AggregatorMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewAggregatorMetrics() AggregatorMetrics {
	if !IsEnabled() {
		return NewNoopAggregatorMetrics()
	}

	reg := GetRegistry()

	return &aggregatorMetrics{
		propagationDepth: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittosync_syncstatus_propagation_depth",
				Help:    "Number of ancestors updated per sync status change",
				Buckets: prometheus.LinearBuckets(0, 2, 10),
			},
		),
		rawUpdates: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosync_syncstatus_raw_updates_total",
				Help: "Total number of raw sync status updates",
			},
		),
		rebuiltObjects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosync_syncstatus_rebuilt_objects_total",
				Help: "Total number of objects whose aggregation state was rebuilt",
			},
		),
		feedPulls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_syncstatus_feed_pulls_total",
				Help: "Total number of pulls from the remote status feed by status",
			},
			[]string{"status"},
		),
		feedUpdates: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosync_syncstatus_feed_updates_total",
				Help: "Total number of status updates received from the remote feed",
			},
		),
		epoch: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosync_syncstatus_feed_epoch",
				Help: "Last applied remote status feed epoch",
			},
		),
	}
}

func (m *aggregatorMetrics) ObservePropagation(depth int) {
	m.propagationDepth.Observe(float64(depth))
}

func (m *aggregatorMetrics) RecordRawStatusUpdate() {
	m.rawUpdates.Inc()
}

func (m *aggregatorMetrics) RecordSubtreeRebuild(objects int) {
	m.rebuiltObjects.Add(float64(objects))
}

func (m *aggregatorMetrics) RecordFeedPull(updates int, err error) {
	m.feedPulls.WithLabelValues(status(err)).Inc()
	m.feedUpdates.Add(float64(updates))
}

func (m *aggregatorMetrics) SetEpoch(epoch uint64) {
	m.epoch.Set(float64(epoch))
}

// NewNoopAggregatorMetrics returns an AggregatorMetrics that discards everything.
func NewNoopAggregatorMetrics() AggregatorMetrics {
	return noopAggregatorMetrics{}
}

type noopAggregatorMetrics struct{}

func (noopAggregatorMetrics) ObservePropagation(int)     {}
func (noopAggregatorMetrics) RecordRawStatusUpdate()     {}
func (noopAggregatorMetrics) RecordSubtreeRebuild(int)   {}
func (noopAggregatorMetrics) RecordFeedPull(int, error) {}
func (noopAggregatorMetrics) SetEpoch(uint64)            {}

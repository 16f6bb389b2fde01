package config

import (
	"github.com/marmos91/dittosync/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Metadata, Store and Aggregator are never nil; they are no-ops when
	// metrics are disabled.
	Metadata   metrics.MetadataMetrics
	Store      metrics.StoreMetrics
	Aggregator metrics.AggregatorMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are enabled the global Prometheus registry is initialized
// before any collector is created.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Metadata:   metrics.NewNoopMetadataMetrics(),
			Store:      metrics.NewNoopStoreMetrics(),
			Aggregator: metrics.NewNoopAggregatorMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Host: cfg.Metrics.Host,
			Port: cfg.Metrics.Port,
		}),
		Metadata:   metrics.NewMetadataMetrics(),
		Store:      metrics.NewStoreMetrics(),
		Aggregator: metrics.NewAggregatorMetrics(),
	}
}

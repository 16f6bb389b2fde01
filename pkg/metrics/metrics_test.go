package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The registry is process-global and write-once, so the disabled and enabled
// phases live in a single test.
func TestRegistryLifecycle(t *testing.T) {
	require.False(t, IsEnabled())

	assert.IsType(t, noopMetadataMetrics{}, NewMetadataMetrics())
	assert.IsType(t, noopAggregatorMetrics{}, NewAggregatorMetrics())
	assert.IsType(t, noopStoreMetrics{}, NewStoreMetrics())

	InitRegistry()
	InitRegistry()
	require.True(t, IsEnabled())

	md := NewMetadataMetrics()
	md.RecordOperation("CreateOA", time.Millisecond, nil)
	md.RecordOperation("CreateOA", time.Millisecond, errors.New("boom"))
	md.RecordCacheHit("oa")
	md.RecordCacheMiss("path")
	md.RecordInvalidation("path", "all")
	md.RecordNotification("created")

	agg := NewAggregatorMetrics()
	agg.ObservePropagation(3)
	agg.RecordFeedPull(10, nil)
	agg.SetEpoch(42)

	st := NewStoreMetrics()
	st.RecordStoreCreated("plain")
	st.RecordCleanupRows("objects", 5)

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"dittosync_metadata_operations_total",
		"dittosync_metadata_cache_hits_total",
		"dittosync_metadata_notifications_total",
		"dittosync_syncstatus_propagation_depth",
		"dittosync_syncstatus_feed_epoch",
		"dittosync_stores_created_total",
		"dittosync_cleanup_rows_total",
		"go_goroutines",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestServerAddr(t *testing.T) {
	s := NewServer(ServerConfig{Host: "127.0.0.1"})
	assert.Equal(t, "127.0.0.1:9090", s.Addr())
}

func TestServerHandlerFollowsRegistry(t *testing.T) {
	s := NewServer(ServerConfig{})
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if IsEnabled() {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	} else {
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
}

package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	tracker := m.Track("authz:catalog_sync")
	tracker.Items(17)
	require.NoError(t, tracker.End(nil))

	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("authz:catalog_sync").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("authz:catalog_sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("authz:catalog_sync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("authz:catalog_sync")))
	assert.Equal(t, 17.0, testutil.ToFloat64(m.items.WithLabelValues("authz:catalog_sync")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	tracker := m.Track("auth:session_cleanup")
	tracker.Items(3)
	assert.NoError(t, tracker.End(nil))
}

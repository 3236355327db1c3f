package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderIncJobsDropped(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	rec := NewRecorder(m)

	rec.IncJobsDropped()
	rec.IncJobsDropped()

	require.InDelta(t, 2, testutil.ToFloat64(m.SchedulerJobsDropped), 0)
}

package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:integrity")))
}

func TestAddAnomaliesScopesByUnit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddAnomalies("cash_drift", 3, 2)
	m.AddAnomalies("negative_stock", 0, 1)
	m.AddAnomalies("negative_stock", 0, 0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.anomalies.WithLabelValues("cash_drift", "3")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues("negative_stock", "0")))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var m *Metrics
	m.AddAnomalies("cash_drift", 1, 1)
	require.NoError(t, m.Track("noop").End(nil))
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	return m.GetCounter().GetValue()
}

func TestTrustMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrustMetrics(reg)

	m.ObserveRecalculation("ok", 0.02)
	m.ObserveRecalculation("ok", 0.03)
	m.ObserveClassification("HIGH_RISK")
	m.ObservePersistenceError("commit")
	m.ObserveIntervention("CRITICAL_INTERVENTION")
	m.ObserveNotificationFailure("sqs")
	m.ObserveIngest("processed")

	assert.Equal(t, 2.0, counterValue(t, m.recalculations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, m.classifications.WithLabelValues("HIGH_RISK")))
	assert.Equal(t, 1.0, counterValue(t, m.interventions.WithLabelValues("CRITICAL_INTERVENTION")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestTrustMetricsNilSafe(t *testing.T) {
	var m *TrustMetrics
	m.ObserveRecalculation("ok", 0.1)
	m.ObserveClassification("NEW_USER")
	m.ObservePersistenceError("commit")
	m.ObserveIntervention("HIGH_RISK")
	m.ObserveNotificationFailure("email")
	m.ObserveIngest("failed")
}

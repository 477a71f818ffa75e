package metrics

import "github.com/prometheus/client_golang/prometheus"

// TrustMetrics exposes counters/histograms for scoring and interventions.
type TrustMetrics struct {
	recalculations     *prometheus.CounterVec
	recalcLatency      *prometheus.HistogramVec
	classifications    *prometheus.CounterVec
	persistenceErrors  *prometheus.CounterVec
	interventions      *prometheus.CounterVec
	notificationErrors *prometheus.CounterVec
	ingested           *prometheus.CounterVec
}

func NewTrustMetrics(reg prometheus.Registerer) *TrustMetrics {
	m := &TrustMetrics{
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "engine",
			Name:      "recalculations_total",
			Help:      "Total score recalculations by outcome",
		}, []string{"outcome"}),
		recalcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trust",
			Subsystem: "engine",
			Name:      "recalculation_seconds",
			Help:      "Latency of a full actor recalculation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "engine",
			Name:      "classifications_total",
			Help:      "Persisted records by risk level",
		}, []string{"risk_level"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Persistence failures by operation",
		}, []string{"op"}),
		interventions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "intervention",
			Name:      "dispatched_total",
			Help:      "Interventions dispatched by risk level",
		}, []string{"risk_level"}),
		notificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "intervention",
			Name:      "notification_failures_total",
			Help:      "Failed intervention notifications by channel",
		}, []string{"channel"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trust",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Queue messages handled by the ingest worker",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.recalculations,
		m.recalcLatency,
		m.classifications,
		m.persistenceErrors,
		m.interventions,
		m.notificationErrors,
		m.ingested,
	)
	return m
}

func (m *TrustMetrics) ObserveRecalculation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(outcome).Inc()
	m.recalcLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *TrustMetrics) ObserveClassification(level string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(level).Inc()
}

func (m *TrustMetrics) ObservePersistenceError(op string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(op).Inc()
}

func (m *TrustMetrics) ObserveIntervention(level string) {
	if m == nil {
		return
	}
	m.interventions.WithLabelValues(level).Inc()
}

func (m *TrustMetrics) ObserveNotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.notificationErrors.WithLabelValues(channel).Inc()
}

func (m *TrustMetrics) ObserveIngest(status string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(status).Inc()
}

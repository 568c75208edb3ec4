package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the lead intake pipeline.
type IntakeMetrics struct {
	submissionsTotal    *prometheus.CounterVec
	verificationTotal   *prometheus.CounterVec
	verificationLatency prometheus.Histogram
	notificationsTotal  *prometheus.CounterVec
	sinkTotal           *prometheus.CounterVec
	analyticsFailures   prometheus.Counter
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Contact submissions by terminal outcome",
		}, []string{"outcome", "reason"}),
		verificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "verification_total",
			Help:      "Bot verification calls by result",
		}, []string{"result"}),
		verificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "verification_latency_seconds",
			Help:      "Latency of bot verification calls",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "notifications_total",
			Help:      "Lead notification emails by kind and status",
		}, []string{"kind", "status"}),
		sinkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "secondary_writes_total",
			Help:      "Best-effort secondary writes (time index, mirror, archive) by status",
		}, []string{"sink", "status"}),
		analyticsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incierge",
			Subsystem: "intake",
			Name:      "analytics_failures_total",
			Help:      "Analytics events that could not be delivered",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.verificationTotal, m.verificationLatency,
		m.notificationsTotal, m.sinkTotal, m.analyticsFailures)
	return m
}

// ObserveSubmission counts a request that reached a terminal state.
func (m *IntakeMetrics) ObserveSubmission(outcome, reason string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome, reason).Inc()
}

func (m *IntakeMetrics) ObserveVerification(result string, seconds float64) {
	if m == nil {
		return
	}
	m.verificationTotal.WithLabelValues(result).Inc()
	m.verificationLatency.Observe(seconds)
}

func (m *IntakeMetrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *IntakeMetrics) ObserveSecondaryWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.sinkTotal.WithLabelValues(sink, status).Inc()
}

func (m *IntakeMetrics) ObserveAnalyticsFailure() {
	if m == nil {
		return
	}
	m.analyticsFailures.Inc()
}

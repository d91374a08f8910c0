package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "farbook"

// Result label values
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultPending  = "pending"
	ResultApproved = "approved"
	ResultError    = "error"
)

// Metrics are the connect flow counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectAttempts *prometheus.CounterVec
	polls           *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	activePollers   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Signer requests created, by result.",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_polls_total",
			Help:      "Approval status polls, by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_submissions_total",
			Help:      "Signed message submissions to the hub, by result.",
		}, []string{"result"}),
		activePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pollers",
			Help:      "Approval polling loops currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.connectAttempts, m.polls, m.submissions, m.activePollers} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Poll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) PollerStarted() {
	if m == nil {
		return
	}
	m.activePollers.Inc()
}

func (m *Metrics) PollerStopped() {
	if m == nil {
		return
	}
	m.activePollers.Dec()
}

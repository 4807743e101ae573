package attribution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess      = "success"
	OutcomeNoCommitment = "no_commitment"
	OutcomeFailure      = "failure"
)

// Metrics counts verification cycle outcomes.
type Metrics struct {
	Issuances   *prometheus.CounterVec
	Redemptions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Issuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Subsystem: "verification",
			Name:      "issuances_total",
			Help:      "Issuance preparations by protocol version and outcome.",
		}, []string{"version", "outcome"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Subsystem: "verification",
			Name:      "redemptions_total",
			Help:      "Redemption completions by protocol version and outcome.",
		}, []string{"version", "outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Subsystem: "verification",
			Name:      "failures_total",
			Help:      "Failed verification cycles by stage.",
		}, []string{"stage"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Issuances, m.Redemptions, m.Failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) issuance(v ProtocolVersion, outcome string) {
	if m == nil {
		return
	}
	m.Issuances.WithLabelValues(versionLabel(v), outcome).Inc()
}

func (m *Metrics) redemption(v ProtocolVersion, outcome string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(versionLabel(v), outcome).Inc()
}

func (m *Metrics) failure(stage Stage) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(string(stage)).Inc()
}

func versionLabel(v ProtocolVersion) string {
	if !v.Valid() {
		return "unknown"
	}
	return v.String()
}

package issuer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeDoubleSpend = "double_spend"
	OutcomeError       = "error"
)

// Metrics counts issuer requests.
type Metrics struct {
	Issued   *prometheus.CounterVec
	Redeemed *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Subsystem: "issuer",
			Name:      "issuance_requests_total",
			Help:      "Issuance requests by outcome.",
		}, []string{"outcome"}),
		Redeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attribution",
			Subsystem: "issuer",
			Name:      "redemption_requests_total",
			Help:      "Redemption requests by outcome.",
		}, []string{"outcome"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Issued, m.Redeemed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) issued(outcome string) {
	if m != nil {
		m.Issued.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) redeemed(outcome string) {
	if m != nil {
		m.Redeemed.WithLabelValues(outcome).Inc()
	}
}

// Package metrics exposes prometheus metrics for account operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/account-service/internal/domain"
)

// Collector records operation outcomes and the current session state.
type Collector struct {
	operations   *prometheus.CounterVec
	sessionState prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_operations_total",
			Help: "Account operations by name and result kind.",
		}, []string{"operation", "result"}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "account_session_state",
			Help: "0 unauthenticated, 1 authenticating, 2 authenticated.",
		}),
	}
	reg.MustRegister(c.operations, c.sessionState)
	return c
}

// ObserveOperation counts one operation; result is "ok" or the error kind.
func (c *Collector) ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if kind := domain.KindOf(err); kind != "" {
			result = string(kind)
		}
	}
	c.operations.WithLabelValues(op, result).Inc()
}

func (c *Collector) ObserveState(state domain.SessionState) {
	c.sessionState.Set(float64(state))
}

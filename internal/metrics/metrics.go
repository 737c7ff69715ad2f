// Package metrics exposes Prometheus counters for the auth flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersCreated prometheus.Counter
	SignIns      *prometheus.CounterVec
	SignOuts     prometheus.Counter
}

// New creates and registers all metrics against the given registerer.
// Production wiring passes prometheus.DefaultRegisterer; tests pass a fresh
// registry so repeated construction doesn't collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildhub_users_created_total",
			Help: "Total number of user accounts created via reconciliation",
		}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhub_sign_ins_total",
			Help: "Total sign-in attempts by method and result",
		}, []string{"method", "result"}),
		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildhub_sign_outs_total",
			Help: "Total sign-outs",
		}),
	}
}

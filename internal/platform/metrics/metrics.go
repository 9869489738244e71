package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the compliance core.
type Metrics struct {
	GateDecisions    *prometheus.CounterVec
	SessionsCreated  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsRevoked  prometheus.Counter
	ActiveSessions   prometheus.Gauge
	SweepRemovals    prometheus.Counter
	AuditEvents      *prometheus.CounterVec
	LockoutsTriggered prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		GateDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_gate_decisions_total",
			Help: "Compliance gate decisions by outcome.",
		}, []string{"outcome"}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caregate_sessions_created_total",
			Help: "Sessions created.",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caregate_sessions_expired_total",
			Help: "Sessions evicted after exceeding the inactivity timeout.",
		}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caregate_sessions_revoked_total",
			Help: "Sessions destroyed by explicit revocation.",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "caregate_active_sessions",
			Help: "Currently active sessions.",
		}),
		SweepRemovals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caregate_sweep_removals_total",
			Help: "Sessions removed by the periodic sweeper.",
		}),
		AuditEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_audit_events_total",
			Help: "Audit events accepted, by category.",
		}, []string{"category"}),
		LockoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caregate_auth_lockouts_total",
			Help: "Authentication lockouts triggered.",
		}),
	}
}

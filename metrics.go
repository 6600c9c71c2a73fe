package secrets

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application's Prometheus collectors
type Metrics struct {
	authAttempts      *prometheus.CounterVec
	identitiesCreated *prometheus.CounterVec
	secretsSubmitted  prometheus.Counter
	gateDenials       prometheus.Counter
	logouts           prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_auth_attempts_total",
			Help: "Login and registration attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		identitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_identities_created_total",
			Help: "Identities created by provider",
		}, []string{"provider"}),
		secretsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secrets_secrets_submitted_total",
			Help: "Secrets successfully stored",
		}),
		gateDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secrets_gate_denials_total",
			Help: "Anonymous requests turned away from protected routes",
		}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secrets_logouts_total",
			Help: "Sessions destroyed by logout",
		}),
	}
	reg.MustRegister(
		m.authAttempts,
		m.identitiesCreated,
		m.secretsSubmitted,
		m.gateDenials,
		m.logouts,
	)
	return m
}

// RecordAuth counts one attempt. outcome is "success" or the failure reason.
func (m *Metrics) RecordAuth(strategy Provider, result AuthResult) {
	outcome := "success"
	if !result.OK() {
		outcome = string(result.Reason)
	}
	m.authAttempts.WithLabelValues(string(strategy), outcome).Inc()
}

func (m *Metrics) RecordIdentityCreated(provider Provider) {
	m.identitiesCreated.WithLabelValues(string(provider)).Inc()
}

func (m *Metrics) RecordSecretSubmitted() { m.secretsSubmitted.Inc() }

func (m *Metrics) RecordGateDenial() { m.gateDenials.Inc() }

func (m *Metrics) RecordLogout() { m.logouts.Inc() }

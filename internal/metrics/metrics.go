// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service holds the registered collectors.
type Service struct {
	Registry *prometheus.Registry

	SignaturesTotal          *prometheus.CounterVec
	NonceAllocationsTotal    *prometheus.CounterVec
	IntentVerificationsTotal *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Service {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Service{
		Registry: registry,
		SignaturesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_signatures_total",
			Help: "Signature operations by backend provider and outcome.",
		}, []string{"provider", "outcome"}),
		NonceAllocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_nonce_allocations_total",
			Help: "Nonce allocations by chain id.",
		}, []string{"chain_id"}),
		IntentVerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_intent_verifications_total",
			Help: "Intent verifications by intent kind and rejection code.",
		}, []string{"kind", "code"}),
	}
}

// Package metrics exposes counters for the issuing and validating ports.
// Counters carry outcome labels only, never identifiers or message content.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Port labels.
const (
	PortIssue    = "issue"
	PortValidate = "validate"
)

// Validation result labels.
const (
	ResultAccepted  = "accepted"
	ResultMalformed = "malformed"
	ResultDecrypt   = "decrypt_failed"
	ResultExpired   = "expired"
	ResultMismatch  = "mismatch"
	ResultLogError  = "log_error"
)

// Connection drop reasons.
const (
	DropRateLimited  = "rate_limited"
	DropOverCapacity = "over_capacity"
	DropUnknownPort  = "unknown_port"
)

// Metrics bundles every collector of the service on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsDropped *prometheus.CounterVec
	TokensIssued       prometheus.Counter
	IssueFailures      prometheus.Counter
	ValidationsTotal   *prometheus.CounterVec
	HandlerPanics      *prometheus.CounterVec
	InFlight           prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_connections_total",
			Help: "Total number of accepted connections.",
		}, []string{"port"}),
		ConnectionsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_connections_dropped_total",
			Help: "Total number of connections closed without being served.",
		}, []string{"port", "reason"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_tokens_issued_total",
			Help: "Total number of tokens written to clients.",
		}),
		IssueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_issue_failures_total",
			Help: "Total number of issuing connections closed without a token.",
		}),
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_validations_total",
			Help: "Total number of submissions on the validating port by result.",
		}, []string{"result"}),
		HandlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_handler_panics_total",
			Help: "Total number of recovered handler panics.",
		}, []string{"port"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tokengate_connections_in_flight",
			Help: "Number of connections currently being handled.",
		}),
	}
}

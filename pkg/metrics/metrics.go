// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// NegotiationsTotal tracks negotiations created.
	NegotiationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "negotiations_total",
			Help: "Total negotiations created",
		},
	)

	// NegotiationTransitions tracks negotiation status transitions.
	NegotiationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiation_transitions_total",
			Help: "Total negotiation status transitions",
		},
		[]string{"from", "to"},
	)

	// OffersEvaluated tracks offer evaluator decisions.
	OffersEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offers_evaluated_total",
			Help: "Total offers evaluated, by decision",
		},
		[]string{"decision"},
	)

	// OfferRatio tracks the offer/asking ratio distribution.
	OfferRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offer_asking_ratio",
			Help:    "Distribution of offer amount over asking price",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0, 1.1},
		},
	)

	// MessagesTotal tracks messages appended to negotiations.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiation_messages_total",
			Help: "Total messages appended",
		},
		[]string{"role", "type"},
	)

	// DispatchAttempts tracks notification dispatch attempts.
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Notification dispatch attempts, by outcome",
		},
		[]string{"target", "outcome"},
	)

	// ResponderDuration tracks responder phrasing latency.
	ResponderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "responder_duration_seconds",
			Help:    "Automated responder phrasing duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// NATSStreamMessages tracks messages in the NATS change feed.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDecision records an evaluator decision and the observed ratio.
func RecordDecision(decision string, ratio float64) {
	OffersEvaluated.WithLabelValues(decision).Inc()
	OfferRatio.Observe(ratio)
}

// RecordTransition records a negotiation status transition.
func RecordTransition(from, to string) {
	NegotiationTransitions.WithLabelValues(from, to).Inc()
}

// RecordDispatch records one dispatch attempt outcome.
func RecordDispatch(target string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	DispatchAttempts.WithLabelValues(target, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

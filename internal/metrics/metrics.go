// ABOUTME: Prometheus collectors for turns, relay sends, and knowledge-base lookups
// ABOUTME: Registered on the default registry and served by the gateway on /metrics

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turns counts handled turns by channel and activity type.
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alexa_bridge_turns_total",
			Help: "Turns handled, by channel and activity type.",
		},
		[]string{"channel", "type"},
	)

	// TurnErrors counts turns that ended in the turn-error handler.
	TurnErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alexa_bridge_turn_errors_total",
			Help: "Turns that failed and were answered with the generic apology.",
		},
		[]string{"channel"},
	)

	// RelaySends counts monitor relay attempts by result (ok, error, dropped).
	RelaySends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alexa_bridge_relay_sends_total",
			Help: "Proactive monitor relay sends, by result.",
		},
		[]string{"result"},
	)

	// KnowledgeQueries counts knowledge-base lookups by backend and result (hit, miss, error).
	KnowledgeQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alexa_bridge_knowledge_queries_total",
			Help: "Knowledge-base lookups, by backend and result.",
		},
		[]string{"backend", "result"},
	)

	// AlexaRequests counts Alexa skill requests by request type and outcome.
	AlexaRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alexa_bridge_alexa_requests_total",
			Help: "Alexa skill requests, by request type and outcome.",
		},
		[]string{"request_type", "outcome"},
	)

	// TurnDuration observes end-to-end turn latency.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alexa_bridge_turn_duration_seconds",
			Help:    "Turn processing latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(Turns)
	prometheus.MustRegister(TurnErrors)
	prometheus.MustRegister(RelaySends)
	prometheus.MustRegister(KnowledgeQueries)
	prometheus.MustRegister(AlexaRequests)
	prometheus.MustRegister(TurnDuration)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

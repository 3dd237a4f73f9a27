// Domain metrics for the realtime backend. Label sets are closed
// enumerations (message kind, family, status, severity, source), so
// cardinality stays bounded.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// WSConnections gauges open websocket connections.
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Current number of open websocket connections.",
	})

	// WSEvents counts inbound websocket events by event name and result.
	WSEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_total",
		Help: "Inbound websocket events by event and result code.",
	}, []string{"event", "code"})

	// ChatMessages counts persisted chat messages by kind.
	ChatMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat messages persisted, by kind.",
	}, []string{"kind"})

	// ModerationFlags counts flagged content by severity.
	ModerationFlags = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_flags_total",
		Help: "Content flagged by the moderation gate, by severity.",
	}, []string{"severity"})

	// GameTransitions counts session status transitions.
	GameTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "game_transitions_total",
		Help: "Game session transitions, by family and target status.",
	}, []string{"family", "status"})

	// GameAnswers counts recorded answers by outcome (answered|timedOut).
	GameAnswers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "game_answers_total",
		Help: "Game answers recorded, by family and outcome.",
	}, []string{"family", "outcome"})

	// InsightsGenerated counts enrichment results by source (llm|fallback).
	InsightsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_generated_total",
		Help: "Session insights written, by source.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(WSConnections, WSEvents, ChatMessages, ModerationFlags,
		GameTransitions, GameAnswers, InsightsGenerated)
}

// Package metrics holds the Prometheus collectors for the host. Collectors
// are package-level and registered once via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcphost",
		Name:      "turns_total",
		Help:      "Turns processed, labeled by workflow outcome.",
	}, []string{"outcome"})

	// ToolCallsTotal counts tool invocations by server, tool, and status.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcphost",
		Name:      "tool_calls_total",
		Help:      "Tool calls dispatched to MCP servers.",
	}, []string{"server", "tool", "status"})

	// ToolCallDuration observes tool call latency.
	ToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mcphost",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"server", "tool"})

	// ActiveSessions tracks live sessions in the store.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mcphost",
		Name:      "active_sessions",
		Help:      "Sessions currently held in memory.",
	})

	// ActiveStreamConnections tracks open stream hub connections.
	ActiveStreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mcphost",
		Name:      "active_stream_connections",
		Help:      "Stream connections currently registered.",
	})

	// ReactIterations observes ReAct loop depth per turn.
	ReactIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mcphost",
		Name:      "react_iterations",
		Help:      "ReAct iterations used per turn.",
		Buckets:   []float64{1, 2, 3, 5, 8, 10},
	})
)

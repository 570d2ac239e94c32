// File: metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chessrelay_connections_active",
		Help: "The current number of open websocket connections.",
	})
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessrelay_messages_dropped_total",
		Help: "Outbound messages dropped because the recipient was gone or its queue was full.",
	})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chessrelay_sessions_active",
		Help: "The current number of sessions in the registry.",
	})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessrelay_sessions_created_total",
		Help: "The total number of sessions created.",
	})
	SessionsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessrelay_sessions_joined_total",
		Help: "The total number of sessions that reached the active state.",
	})
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessrelay_sessions_ended_total",
		Help: "The total number of sessions ended, by reason.",
	}, []string{"reason"})
	JoinFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessrelay_join_failures_total",
		Help: "The total number of rejected join attempts, by reason.",
	}, []string{"reason"})

	// Relay metrics
	MovesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessrelay_moves_relayed_total",
		Help: "The total number of moves accepted and forwarded.",
	})
	MovesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessrelay_moves_rejected_total",
		Help: "The total number of submitted moves rejected by the relay, by reason.",
	}, []string{"reason"})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

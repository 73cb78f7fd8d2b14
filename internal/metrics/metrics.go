// Package metrics exposes Prometheus metrics for the record store: HTTP
// traffic, TCP commands and store operation outcomes.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal counts HTTP requests.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordstore_http_requests_total",
			Help: "Total HTTP requests handled by the record store API",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration observes HTTP request latency.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordstore_http_request_duration_seconds",
			Help:    "HTTP request latency of the record store API in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	tcpCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordstore_tcp_commands_total",
			Help: "Total TCP protocol commands by command and outcome",
		},
		[]string{"command", "result"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordstore_operations_total",
			Help: "Mutating store operations by operation and result",
		},
		[]string{"op", "result"},
	)

	tcpConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recordstore_tcp_connections",
		Help: "Open TCP protocol connections",
	})
)

// Result turns an operation error into a label value: "ok", the domain error
// name, or "error".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if code, ok := engine.CodeOf(err); ok {
		return engine.ErrorFromCode(code).Name
	}
	return "error"
}

// ObserveOperation is a store observer (see engine.WithObserver).
func ObserveOperation(op string, err error) {
	operationsTotal.WithLabelValues(op, Result(err)).Inc()
}

var knownCommands = func() map[string]bool {
	m := make(map[string]bool, len(sdk.Commands))
	for _, c := range sdk.Commands {
		m[c] = true
	}
	return m
}()

// CommandLabel returns the label value for a client-supplied verb. Verbs
// outside the protocol collapse into "unknown" so peers cannot mint series.
func CommandLabel(command string) string {
	command = strings.ToUpper(command)
	if knownCommands[command] {
		return command
	}
	return "unknown"
}

// ObserveCommand records one TCP command.
func ObserveCommand(command string, err error) {
	tcpCommandsTotal.WithLabelValues(CommandLabel(command), Result(err)).Inc()
}

// ConnectionOpened and ConnectionClosed track open TCP connections.
func ConnectionOpened() { tcpConnections.Inc() }
func ConnectionClosed() { tcpConnections.Dec() }

// GinMiddleware records request counts and latency. Paths are taken from the
// matched route template so ids and hashes do not explode label cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Package metrics registers per-connection counters and gauges against
// rcrowley/go-metrics, the same registry ChannelStats uses for
// packet/byte accounting.
package metrics

import (
	"fmt"

	gometrics "github.com/rcrowley/go-metrics"
)

// Connection holds the counters and gauges tracked for one supervised
// connection: reconnect attempts, losses, current backoff delay, and
// request/response traffic at the client or server attached to it.
// Grounded on msg.ChannelStats/msg.NewChannelMetricName, generalized from
// packet/byte accounting to the reconnect and request lifecycle this
// module tracks.
//
// RequestsSent/ResponsesRecv count outbound/inbound wire frames from the
// owning component's own vantage: on a client they are requests
// transmitted and responses decoded; on a server they are responses
// written back and requests decoded off the wire.
type Connection struct {
	ReconnectAttempts gometrics.Counter
	ReconnectSuccess  gometrics.Counter
	ReconnectLosses   gometrics.Counter
	BackoffDelayMs    gometrics.Gauge

	RequestsSent     gometrics.Counter
	ResponsesRecv    gometrics.Counter
	RequestsFailed   gometrics.Counter
	RequestsInFlight gometrics.Gauge
}

// NewConnection registers a fresh set of metrics under description, the
// same log-tag style name used for WithDescription on the supervisor.
func NewConnection(description string) *Connection {
	r := gometrics.DefaultRegistry

	return &Connection{
		ReconnectAttempts: gometrics.NewRegisteredCounter(name(description, "reconnect.attempts"), r),
		ReconnectSuccess:  gometrics.NewRegisteredCounter(name(description, "reconnect.success"), r),
		ReconnectLosses:   gometrics.NewRegisteredCounter(name(description, "reconnect.losses"), r),
		BackoffDelayMs:    gometrics.NewRegisteredGauge(name(description, "backoff.delay_ms"), r),

		RequestsSent:     gometrics.NewRegisteredCounter(name(description, "requests.sent"), r),
		ResponsesRecv:    gometrics.NewRegisteredCounter(name(description, "requests.responses"), r),
		RequestsFailed:   gometrics.NewRegisteredCounter(name(description, "requests.failed"), r),
		RequestsInFlight: gometrics.NewRegisteredGauge(name(description, "requests.in_flight"), r),
	}
}

func name(description, metric string) string {
	return fmt.Sprintf("relay[%s].%s", description, metric)
}

// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgeCommandTotal counts outbound commands by message type.
	BridgeCommandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_bridge_commands_total",
		Help: "Total number of commands sent to the embedded viewer runtime",
	}, []string{"type"})

	// BridgeEventTotal counts decoded inbound events by message type.
	BridgeEventTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_bridge_events_total",
		Help: "Total number of events received from the embedded viewer runtime",
	}, []string{"type"})

	// BridgeDroppedTotal counts messages dropped by the bridge.
	BridgeDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_bridge_dropped_total",
		Help: "Total number of bridge messages dropped by reason",
	}, []string{"reason"})

	// BridgeTransportsActive tracks currently attached bridge transports.
	BridgeTransportsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_bridge_transports_active",
		Help: "Number of currently attached bridge transports",
	})
)

// Drop reasons recorded by the bridge.
const (
	DropNoTransport    = "no_transport"
	DropSlowSubscriber = "slow_subscriber"
	DropSendFailed     = "send_failed"
	DropClosed         = "closed"
)

// IncBridgeCommand records an outbound command.
func IncBridgeCommand(msgType string) {
	BridgeCommandTotal.WithLabelValues(msgType).Inc()
}

// IncBridgeEvent records a decoded inbound event.
func IncBridgeEvent(msgType string) {
	BridgeEventTotal.WithLabelValues(msgType).Inc()
}

// IncBridgeDropped records a dropped bridge message.
func IncBridgeDropped(reason string) {
	BridgeDroppedTotal.WithLabelValues(reason).Inc()
}

// IncBridgeTransport records a transport attach.
func IncBridgeTransport() {
	BridgeTransportsActive.Inc()
}

// DecBridgeTransport records a transport detach.
func DecBridgeTransport() {
	BridgeTransportsActive.Dec()
}

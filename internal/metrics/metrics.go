// Package metrics exposes Prometheus counters for the chat client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_client"

// Collector holds the client counters. A nil *Collector records nothing.
type Collector struct {
	framesReceived   *prometheus.CounterVec
	framesDropped    prometheus.Counter
	linesDisplayed   prometheus.Counter
	messagesSent     prometheus.Counter
	sendsDropped     prometheus.Counter
	stateTransitions *prometheus.CounterVec
}

// New registers the client counters with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Transport events received, by kind",
		}, []string{"kind"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as malformed",
		}),
		linesDisplayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_displayed_total",
			Help:      "Chat lines handed to the display",
		}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outgoing messages written to the transport",
		}),
		sendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outgoing messages dropped because the connection was not usable",
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions, by target state",
		}, []string{"state"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// FrameReceived counts one transport event of the given kind.
func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
}

// FrameDropped counts an inbound frame discarded as malformed.
func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Inc()
}

// LineDisplayed counts a line handed to the display.
func (c *Collector) LineDisplayed() {
	if c == nil {
		return
	}
	c.linesDisplayed.Inc()
}

// MessageSent counts an outgoing message written to the transport.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Inc()
}

// SendDropped counts an outgoing message that could not be sent.
func (c *Collector) SendDropped() {
	if c == nil {
		return
	}
	c.sendsDropped.Inc()
}

// StateChanged counts a transition into state.
func (c *Collector) StateChanged(state string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(state).Inc()
}

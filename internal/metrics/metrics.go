// Package metrics exposes Prometheus instrumentation for the quiz engine.
// All methods are safe on a nil receiver so callers never need to guard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	sessionsCreated    prometheus.Counter
	sessionsCompleted  prometheus.Counter
	sessionsTerminated prometheus.Counter
	answersSubmitted   prometheus.Counter
	wsConnections      prometheus.Gauge
	wsMessagesDropped  prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_created_total",
			Help: "Number of sessions created.",
		}),
		sessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_completed_total",
			Help: "Number of sessions that reached the completed state.",
		}),
		sessionsTerminated: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_terminated_total",
			Help: "Number of sessions aborted before completion.",
		}),
		answersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_answers_submitted_total",
			Help: "Number of accepted answer submissions.",
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_ws_connections",
			Help: "Currently open websocket connections.",
		}),
		wsMessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ws_messages_dropped_total",
			Help: "Outbound messages dropped because a client send queue was full.",
		}),
	}
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) SessionCompleted() {
	if m != nil {
		m.sessionsCompleted.Inc()
	}
}

func (m *Metrics) SessionTerminated() {
	if m != nil {
		m.sessionsTerminated.Inc()
	}
}

func (m *Metrics) AnswerSubmitted() {
	if m != nil {
		m.answersSubmitted.Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.wsConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.wsConnections.Dec()
	}
}

func (m *Metrics) MessageDropped() {
	if m != nil {
		m.wsMessagesDropped.Inc()
	}
}

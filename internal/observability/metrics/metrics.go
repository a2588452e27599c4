package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the booking conversation.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	handoffTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	dispatchLatency *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbot",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Inbound chat messages by flow and result status",
		}, []string{"action", "status"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbot",
			Subsystem: "conversation",
			Name:      "handoff_total",
			Help:      "Transitions from one flow into another flow's entry point",
		}, []string{"from", "to"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbot",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labbot",
			Subsystem: "backend",
			Name:      "request_seconds",
			Help:      "Latency of lab backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labbot",
			Subsystem: "conversation",
			Name:      "dispatch_seconds",
			Help:      "End to end handling time of one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.handoffTotal, m.outboundTotal, m.backendLatency, m.dispatchLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(action, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(action, status).Inc()
}

func (m *BotMetrics) ObserveHandoff(from, to string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(from, to).Inc()
}

func (m *BotMetrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveBackend(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backendLatency.WithLabelValues(operation, outcome).Observe(seconds)
}

func (m *BotMetrics) ObserveDispatch(action string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchLatency.WithLabelValues(action).Observe(seconds)
}

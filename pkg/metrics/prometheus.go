package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	registeredAgents  *prometheus.GaugeVec
	messagesDelivered *prometheus.CounterVec
	deliveryMisses    *prometheus.CounterVec
	mailboxEvictions  *prometheus.CounterVec
	processTotal      *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	messagesHandled   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg. Pass
// prometheus.DefaultRegisterer for the process-wide /metrics endpoint or a
// fresh prometheus.NewRegistry() in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		registeredAgents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_registered_agents",
				Help: "Number of live agent instances per agent type",
			},
			[]string{"agent_type"},
		),
		messagesDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_messages_delivered_total",
				Help: "Envelopes enqueued into agent mailboxes by target agent type",
			},
			[]string{"agent_type"},
		),
		deliveryMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_delivery_misses_total",
				Help: "Sends addressed to an agent type with no live instances",
			},
			[]string{"agent_type"},
		),
		mailboxEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_mailbox_evictions_total",
				Help: "Envelopes evicted from capped mailboxes",
			},
			[]string{"agent_type"},
		),
		processTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_agent_process_total",
				Help: "Agent loop iterations by outcome",
			},
			[]string{"agent_type", "status"},
		),
		processDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_agent_process_duration_seconds",
				Help:    "Wall-clock time of drain + process per loop iteration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type"},
		),
		messagesHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_messages_handled_total",
				Help: "Inbound envelopes handled by agents by outcome",
			},
			[]string{"agent_type", "status"},
		),
	}
}

func (p *PrometheusRecorder) AgentRegistered(agentType string) {
	p.registeredAgents.WithLabelValues(agentType).Inc()
}

func (p *PrometheusRecorder) AgentUnregistered(agentType string) {
	p.registeredAgents.WithLabelValues(agentType).Dec()
}

func (p *PrometheusRecorder) MessagesDelivered(targetType string, n int) {
	p.messagesDelivered.WithLabelValues(targetType).Add(float64(n))
}

func (p *PrometheusRecorder) DeliveryMissed(targetType string) {
	p.deliveryMisses.WithLabelValues(targetType).Inc()
}

func (p *PrometheusRecorder) MailboxEvicted(agentType string) {
	p.mailboxEvictions.WithLabelValues(agentType).Inc()
}

func (p *PrometheusRecorder) ObserveProcess(agentType, status string, duration time.Duration) {
	p.processTotal.WithLabelValues(agentType, status).Inc()
	p.processDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) MessageHandled(agentType, status string) {
	p.messagesHandled.WithLabelValues(agentType, status).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics holds the Prometheus instruments for the downlink pipeline.
type QueueMetrics struct {
	EnqueueTotal    prometheus.Counter
	CoalescedTotal  prometheus.Counter
	SuppressedTotal prometheus.Counter
	DeliveredTotal  *prometheus.CounterVec
	RetryTotal      *prometheus.CounterVec
	DeadLetterTotal prometheus.Counter
	RequeueTotal    prometheus.Counter

	QueueDepth       prometheus.Gauge
	DeadLetterDepth  prometheus.Gauge
	OldestPendingAge prometheus.Gauge
	GatewayTokens    *prometheus.GaugeVec
}

// NewQueueMetrics creates and registers the downlink metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use a
// fresh registry so repeated construction does not collide.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		EnqueueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downlink_enqueue_total",
			Help: "Total number of display commands accepted by the queue",
		}),
		CoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downlink_coalesced_total",
			Help: "Total number of pending items replaced by a newer command",
		}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downlink_suppressed_total",
			Help: "Total number of commands skipped because the device already shows them",
		}),
		DeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downlink_delivered_total",
			Help: "Total number of downlinks confirmed delivered, per gateway",
		}, []string{"gateway"}),
		RetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downlink_retry_total",
			Help: "Total number of retryable send failures, per gateway",
		}, []string{"gateway"}),
		DeadLetterTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downlink_dead_letter_total",
			Help: "Total number of items moved to the dead-letter list",
		}),
		RequeueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downlink_requeue_total",
			Help: "Total number of dead-lettered items requeued by an operator",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downlink_queue_depth",
			Help: "Number of pending and in-flight downlink items",
		}),
		DeadLetterDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downlink_dead_letter_depth",
			Help: "Number of items currently dead-lettered",
		}),
		OldestPendingAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downlink_oldest_pending_age_seconds",
			Help: "Age of the oldest pending downlink item",
		}),
		GatewayTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "downlink_gateway_tokens",
			Help: "Available send tokens per gateway",
		}, []string{"gateway"}),
	}

	reg.MustRegister(
		m.EnqueueTotal,
		m.CoalescedTotal,
		m.SuppressedTotal,
		m.DeliveredTotal,
		m.RetryTotal,
		m.DeadLetterTotal,
		m.RequeueTotal,
		m.QueueDepth,
		m.DeadLetterDepth,
		m.OldestPendingAge,
		m.GatewayTokens,
	)
	return m
}

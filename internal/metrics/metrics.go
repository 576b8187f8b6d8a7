package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	TasksQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mail_tasks_queued_total",
		Help: "Tasks accepted onto the delivery queue.",
	})
	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mail_tasks_rejected_total",
		Help: "Tasks refused because the delivery queue was full.",
	})
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_deliveries_total",
		Help: "Completed delivery attempts by path and result.",
	}, []string{"path", "result"})
	DeliveryTries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mail_delivery_tries_total",
		Help: "Individual SMTP transactions, retries included.",
	})
	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mail_audit_write_failures_total",
		Help: "Audit batches that could not be persisted.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mail_queue_depth",
		Help: "Tasks currently waiting in the delivery queue.",
	})
)

// SetQueueDepth records the current queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveDelivery counts one finished delivery attempt.
func ObserveDelivery(path string, ok bool) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	Deliveries.WithLabelValues(path, result).Inc()
}

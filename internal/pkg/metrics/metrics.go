package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coursefox_orders_created_total",
			Help: "Number of payment intents created",
		},
	)

	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursefox_order_rejections_total",
			Help: "Order attempts rejected before reaching the gateway",
		},
		[]string{"reason"},
	)

	GatewayRequestTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursefox_gateway_order_create_seconds",
			Help:    "Time taken by the payment gateway to create an order",
			Buckets: prometheus.DefBuckets,
		},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursefox_reconciliations_total",
			Help: "Completion attempts by source and outcome (created or duplicate)",
		},
		[]string{"source", "outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursefox_webhook_events_total",
			Help: "Authenticated webhook deliveries by event and result",
		},
		[]string{"event", "result"},
	)

	SignatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursefox_signature_failures_total",
			Help: "Rejected signatures by source (verify or webhook)",
		},
		[]string{"source"},
	)

	SweepRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coursefox_sweep_repaired_enrollments_total",
			Help: "Enrollments created by the reconciliation sweep",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OrdersCreated,
			OrderRejections,
			GatewayRequestTime,
			Reconciliations,
			WebhookEvents,
			SignatureFailures,
			SweepRepairs,
		)
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Callback results: applied, rejected_signature, order_not_found, invalid,
// config_error, store_error.
var CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_callbacks_total",
	Help: "Gateway payment callbacks by processing result",
}, []string{"result"})

// Token issuance results: success, rejected, unreachable, invalid.
var TokenRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_token_requests_total",
	Help: "Payment token issuance attempts by result",
}, []string{"result"})

var NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "order_notifications_total",
	Help: "Order notifications by kind and delivery outcome",
}, []string{"kind", "outcome"})

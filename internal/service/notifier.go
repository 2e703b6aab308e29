package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/metrics"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/telemetry"
)

const (
	subjectOrderPaid     = "notifications.order.paid"
	subjectOrderFailed   = "notifications.order.failed"
	subjectOrderDisputed = "notifications.order.disputed"
)

type notificationMessage struct {
	OrderID        string    `json:"order_id"`
	CustomerEmail  string    `json:"customer_email"`
	CustomerName   string    `json:"customer_name"`
	Amount         int64     `json:"amount"`
	PaymentID      string    `json:"payment_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ReportedAmount int64     `json:"reported_amount,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// NatsNotifier publishes customer and operator notifications over NATS.
// Delivery is fire-and-forget: the callback acknowledgment to the gateway
// depends only on the HTTP status, so a publish failure is logged and
// dropped, never returned.
type NatsNotifier struct {
	nc *nats.Conn
}

func NewNatsNotifier(nc *nats.Conn) *NatsNotifier {
	return &NatsNotifier{nc: nc}
}

func (n *NatsNotifier) NotifySuccess(ctx context.Context, order *models.Order) {
	n.publish(subjectOrderPaid, "success", notificationMessage{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Amount:        order.ExpectedAmount,
		PaymentID:     order.PaymentID,
		SentAt:        time.Now().UTC(),
	})
}

func (n *NatsNotifier) NotifyFailure(ctx context.Context, order *models.Order, reason string) {
	n.publish(subjectOrderFailed, "failure", notificationMessage{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Amount:        order.ExpectedAmount,
		Reason:        reason,
		SentAt:        time.Now().UTC(),
	})
}

// NotifyDisputed alerts operators about an amount mismatch. Customers are not
// messaged; the dispute is resolved manually.
func (n *NatsNotifier) NotifyDisputed(ctx context.Context, order *models.Order, reportedAmount int64) {
	n.publish(subjectOrderDisputed, "disputed", notificationMessage{
		OrderID:        order.ID,
		CustomerEmail:  order.CustomerEmail,
		Amount:         order.ExpectedAmount,
		ReportedAmount: reportedAmount,
		SentAt:         time.Now().UTC(),
	})
}

func (n *NatsNotifier) publish(subject, kind string, msg notificationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		telemetry.Logger.Error("Failed to encode notification", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		return
	}

	if err := n.nc.Publish(subject, payload); err != nil {
		telemetry.Logger.Error("Failed to deliver notification",
			zap.String("subject", subject),
			zap.String("order_id", msg.OrderID),
			zap.Error(err),
		)
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		return
	}

	metrics.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
	telemetry.Logger.Info("Notification dispatched",
		zap.String("subject", subject),
		zap.String("order_id", msg.OrderID),
	)
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/interfaces"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/telemetry"
)

// ErrOrderNotFound means a verified callback referenced an order the checkout
// flow never created. Logged as an integrity anomaly and acknowledged, never
// retried: the order will not appear later.
var ErrOrderNotFound = errors.New("order not found for callback")

// Reconciler applies verified callback events to persisted orders. Every
// mutation is a compare-and-set keyed by the order id and the status read at
// transition time, so the gateway's at-least-once delivery collapses to
// at-most-once effect: of two concurrent identical deliveries, only the one
// whose conditional update hits a row fires the notification.
type Reconciler struct {
	repo        interfaces.OrderRepository
	notifier    interfaces.Notifier
	redisClient *redis.Client
	kafkaWriter *kafka.Writer
}

func NewReconciler(
	repo interfaces.OrderRepository,
	notifier interfaces.Notifier,
	redisClient *redis.Client,
	kafkaWriter *kafka.Writer,
) *Reconciler {
	return &Reconciler{
		repo:        repo,
		notifier:    notifier,
		redisClient: redisClient,
		kafkaWriter: kafkaWriter,
	}
}

// Apply runs one callback event through the state machine. A nil return with
// no transition is the normal replay-absorption path.
func (r *Reconciler) Apply(ctx context.Context, event *models.CallbackEvent) error {
	// Advisory lock: trims duplicate work when the gateway double-delivers,
	// but correctness rests on the conditional update below, so a held lock
	// does not block processing.
	if r.redisClient != nil {
		lockKey := fmt.Sprintf("order_callback_lock:%s", event.MerchantOrderID)
		locked := r.redisClient.SetNX(ctx, lockKey, "1", 30*time.Second)
		if err := locked.Err(); err == nil {
			if !locked.Val() {
				telemetry.Logger.Info("Concurrent callback delivery detected",
					zap.String("order_id", event.MerchantOrderID),
				)
			} else {
				defer r.redisClient.Del(ctx, lockKey)
			}
		}
	}

	order, err := r.repo.GetByID(ctx, event.MerchantOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, event.MerchantOrderID)
	}
	if err != nil {
		return fmt.Errorf("loading order %s: %w", event.MerchantOrderID, err)
	}

	switch event.ReportedStatus {
	case models.CallbackSuccess:
		return r.applySuccess(ctx, order, event)
	case models.CallbackFailure:
		return r.applyFailure(ctx, order, event)
	default:
		return fmt.Errorf("unknown callback status %q for order %s", event.ReportedStatus, order.ID)
	}
}

func (r *Reconciler) applySuccess(ctx context.Context, order *models.Order, event *models.CallbackEvent) error {
	if event.ReportedAmount != order.ExpectedAmount {
		return r.dispute(ctx, order, event)
	}

	switch order.Status {
	case models.StatusProcessing, models.StatusFulfilled:
		// Duplicate delivery of an already-applied success.
		telemetry.Logger.Info("Duplicate success callback absorbed",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		return nil
	case models.StatusDisputed, models.StatusCancelled:
		telemetry.Logger.Warn("Success callback for terminal order ignored",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		return nil
	}

	paidAt := time.Now().UTC()
	rows, err := r.repo.MarkProcessing(ctx, order.ID, order.Status, event.PaymentID, paidAt)
	if err != nil {
		return fmt.Errorf("marking order %s processing: %w", order.ID, err)
	}
	if rows == 0 {
		// A concurrent delivery won the compare-and-set.
		telemetry.Logger.Info("Lost payment transition race, absorbing",
			zap.String("order_id", order.ID),
		)
		return nil
	}

	r.publishStatusChange(ctx, order.ID, order.Status, models.StatusProcessing, event.PaymentID)

	order.Status = models.StatusProcessing
	order.PaymentID = event.PaymentID
	order.PaymentDate = &paidAt
	r.notifier.NotifySuccess(ctx, order)

	telemetry.Logger.Info("Payment confirmed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", event.PaymentID),
		zap.Int64("amount", event.ReportedAmount),
	)
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, order *models.Order, event *models.CallbackEvent) error {
	switch order.Status {
	case models.StatusProcessing, models.StatusFulfilled:
		// Stale or out-of-order failure must never downgrade a confirmed
		// payment.
		telemetry.Logger.Warn("Failure callback after confirmed payment ignored",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		return nil
	case models.StatusPaymentFailed:
		// Replay of an already-applied failure.
		return nil
	case models.StatusDisputed, models.StatusCancelled:
		return nil
	}

	reason := event.FailureReason
	if reason == "" {
		reason = "payment declined by gateway"
	}

	rows, err := r.repo.MarkPaymentFailed(ctx, order.ID, order.Status, reason)
	if err != nil {
		return fmt.Errorf("marking order %s failed: %w", order.ID, err)
	}
	if rows == 0 {
		return nil
	}

	r.publishStatusChange(ctx, order.ID, order.Status, models.StatusPaymentFailed, "")

	order.Status = models.StatusPaymentFailed
	order.FailureReason = reason
	r.notifier.NotifyFailure(ctx, order, reason)

	telemetry.Logger.Info("Payment failed",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
	)
	return nil
}

func (r *Reconciler) dispute(ctx context.Context, order *models.Order, event *models.CallbackEvent) error {
	switch order.Status {
	case models.StatusFulfilled, models.StatusCancelled, models.StatusDisputed:
		telemetry.Logger.Warn("Amount mismatch on terminal order, no transition",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.Int64("expected", order.ExpectedAmount),
			zap.Int64("reported", event.ReportedAmount),
		)
		return nil
	}

	rows, err := r.repo.MarkDisputed(ctx, order.ID, order.Status)
	if err != nil {
		return fmt.Errorf("marking order %s disputed: %w", order.ID, err)
	}
	if rows == 0 {
		return nil
	}

	r.publishStatusChange(ctx, order.ID, order.Status, models.StatusDisputed, "")

	order.Status = models.StatusDisputed
	r.notifier.NotifyDisputed(ctx, order, event.ReportedAmount)

	telemetry.Logger.Error("Amount mismatch, order disputed",
		zap.String("order_id", order.ID),
		zap.Int64("expected", order.ExpectedAmount),
		zap.Int64("reported", event.ReportedAmount),
	)
	return nil
}

func (r *Reconciler) publishStatusChange(ctx context.Context, orderID string, from, to models.OrderStatus, paymentID string) {
	if r.kafkaWriter == nil {
		return
	}

	event := models.StatusChangedEvent{
		OrderID:        orderID,
		Status:         to,
		PreviousStatus: from,
		PaymentID:      paymentID,
		Timestamp:      time.Now().UTC(),
	}
	eventJSON, _ := json.Marshal(event)

	if err := r.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: eventJSON,
	}); err != nil {
		telemetry.Logger.Warn("Failed to publish status change event",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

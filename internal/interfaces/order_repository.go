package interfaces

import (
	"context"
	"time"

	"github.com/storefront/payments-service/internal/models"
)

// OrderRepository defines the contract for order persistence. The Mark*
// methods are compare-and-set writes conditioned on the status the caller
// read: they return the number of rows updated, so a zero result means
// another delivery won the transition and the caller must take its no-op
// branch.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	MarkProcessing(ctx context.Context, id string, from models.OrderStatus, paymentID string, paidAt time.Time) (int64, error)
	MarkPaymentFailed(ctx context.Context, id string, from models.OrderStatus, reason string) (int64, error)
	MarkDisputed(ctx context.Context, id string, from models.OrderStatus) (int64, error)
}

package interfaces

import (
	"context"

	"github.com/storefront/payments-service/internal/models"
)

// Notifier delivers best-effort customer and operator messages. Implementations
// must never let a delivery failure propagate into the callback response path;
// they log and move on.
type Notifier interface {
	NotifySuccess(ctx context.Context, order *models.Order)
	NotifyFailure(ctx context.Context, order *models.Order, reason string)
	NotifyDisputed(ctx context.Context, order *models.Order, reportedAmount int64)
}

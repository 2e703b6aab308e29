package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/payments-service/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(255) PRIMARY KEY,
			status VARCHAR(50) NOT NULL,
			expected_amount BIGINT NOT NULL,
			payment_id VARCHAR(255),
			payment_date TIMESTAMP,
			failure_reason TEXT,
			customer_email VARCHAR(255),
			customer_name VARCHAR(255),
			items JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.StatusCreated
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, status, expected_amount, customer_email, customer_name, items)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, order.Status, order.ExpectedAmount, order.CustomerEmail, order.CustomerName, items)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var (
		order       models.Order
		paymentID   sql.NullString
		paymentDate sql.NullTime
		failure     sql.NullString
		items       []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, status, expected_amount, payment_id, payment_date, failure_reason,
		       customer_email, customer_name, items, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&order.ID, &order.Status, &order.ExpectedAmount, &paymentID, &paymentDate,
		&failure, &order.CustomerEmail, &order.CustomerName, &items, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	order.PaymentID = paymentID.String
	if paymentDate.Valid {
		t := paymentDate.Time
		order.PaymentDate = &t
	}
	order.FailureReason = failure.String
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkProcessing records a confirmed payment. The WHERE clause pins both the
// id and the status the caller observed, so concurrent duplicate callbacks
// race safely: exactly one delivery updates a row.
func (r *OrderRepository) MarkProcessing(ctx context.Context, id string, from models.OrderStatus, paymentID string, paidAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_id = $2, payment_date = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, models.StatusProcessing, paymentID, paidAt, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, id string, from models.OrderStatus, reason string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.StatusPaymentFailed, reason, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OrderRepository) MarkDisputed(ctx context.Context, id string, from models.OrderStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, models.StatusDisputed, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

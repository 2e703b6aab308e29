package models

import "time"

type OrderStatus string

const (
	StatusCreated        OrderStatus = "CREATED"
	StatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	StatusProcessing     OrderStatus = "PROCESSING"
	StatusPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	StatusDisputed       OrderStatus = "DISPUTED"
	StatusFulfilled      OrderStatus = "FULFILLED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

// Terminal reports whether the reconciler may still transition the order.
// DISPUTED requires manual resolution; FULFILLED and CANCELLED belong to
// downstream fulfilment.
func (s OrderStatus) Terminal() bool {
	return s == StatusDisputed || s == StatusFulfilled || s == StatusCancelled
}

// LineItem is one basket entry. UnitPrice is kept as the decimal string the
// checkout supplied because the gateway echoes it verbatim in its basket
// encoding; the money-bearing amount lives on the Order in minor units.
type LineItem struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Order is the persisted record owned by the reconciliation subsystem once
// checkout has created it. Status only moves forward through the state
// machine; PaymentID and PaymentDate are write-once; ExpectedAmount is
// compared against inbound callbacks, never overwritten by them.
type Order struct {
	ID             string      `json:"id"`
	Status         OrderStatus `json:"status"`
	ExpectedAmount int64       `json:"expected_amount"` // minor currency units
	PaymentID      string      `json:"payment_id,omitempty"`
	PaymentDate    *time.Time  `json:"payment_date,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	CustomerEmail  string      `json:"customer_email"`
	CustomerName   string      `json:"customer_name"`
	Items          []LineItem  `json:"items"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackFailure CallbackStatus = "failure"
)

// CallbackEvent is a signature-verified gateway notification. It lives for
// one request: built by the callback handler, consumed by the reconciler.
type CallbackEvent struct {
	MerchantOrderID string
	ReportedStatus  CallbackStatus
	ReportedAmount  int64
	PaymentID       string
	FailureReason   string
	Raw             map[string]string
}

// TokenRequest is the signed payment-initiation request sent to the gateway.
// Built per checkout attempt, sent once, never retried internally.
type TokenRequest struct {
	MerchantOrderID string
	Amount          int64 // minor currency units
	BasketB64       string
	Email           string
	Name            string
	Address         string
	Phone           string
	ClientIP        string
	Signature       string
}

// StatusChangedEvent is published to the order.status.changed topic after
// every effective transition.
type StatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status"`
	PaymentID      string      `json:"payment_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

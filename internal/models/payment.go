package models

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusCanceled  PaymentStatus = "canceled"
	StatusRefunded  PaymentStatus = "refunded"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
)

// Retryable reports whether a recurring payment in this status is eligible
// for a scheduled retry.
func (s PaymentStatus) Retryable() bool {
	return s == StatusCanceled || s == StatusFailed
}

// Money is an exact decimal amount with an ISO 4217 currency code.
type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Payment struct {
	ID                    string        `json:"id"`
	OrderID               int64         `json:"order_id"`
	UserID                string        `json:"user_id"`
	Status                PaymentStatus `json:"status"`
	Amount                Money         `json:"amount"`
	IsRecurring           bool          `json:"is_recurring"`
	RecurringIntervalDays int           `json:"recurring_interval_days,omitempty"`
	NextRetryAt           *time.Time    `json:"next_retry_at,omitempty"`
	ParentPaymentID       *string       `json:"parent_payment_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChargeMetadata is carried on the gateway charge so a status check can
// recover the originating order context without a repository round trip.
type ChargeMetadata struct {
	OrderID     int64  `json:"order_id"`
	UserID      string `json:"user_id"`
	IsRecurring bool   `json:"is_recurring"`
}

// Charge is the gateway's view of a single payment attempt.
type Charge struct {
	ID                 string         `json:"id"`
	Status             PaymentStatus  `json:"status"`
	Amount             Money          `json:"amount"`
	ConfirmationURL    string         `json:"confirmation_url,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	Metadata           ChargeMetadata `json:"metadata"`
}

// RefundInfo is a gateway-reported refund record.
type RefundInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Money  `json:"amount"`
}

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
)

// Notification event kinds.
const (
	EventStatusChanged  = "payment.status.changed"
	EventPaymentCreated = "payment.created"
	EventPaymentRetried = "payment.retried"
	EventRefundCreated  = "refund.created"
)

// NotificationEvent is the payload delivered to the alerting channel.
type NotificationEvent struct {
	Kind      string        `json:"kind"`
	PaymentID string        `json:"payment_id"`
	Status    PaymentStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

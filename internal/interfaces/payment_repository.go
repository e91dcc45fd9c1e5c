package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// PaymentRepository defines the contract for payment and refund data access.
// Implementations hold no business rules; status writes are last-write-wins
// and idempotent.
type PaymentRepository interface {
	SavePayment(ctx context.Context, p *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error
	UpdateNextRetry(ctx context.Context, paymentID string, when time.Time) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListPending(ctx context.Context) ([]models.Payment, error)
	ListDueRecurring(ctx context.Context, now time.Time) ([]models.Payment, error)
	SaveRefund(ctx context.Context, r *models.Refund) error
	HasRefund(ctx context.Context, paymentID string) (bool, error)
}

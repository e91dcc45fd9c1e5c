package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// CreateChargeRequest describes a new charge at the payment provider.
// IdempotencyKey must equal the local Payment id so repeated calls are
// deduplicated by the gateway.
type CreateChargeRequest struct {
	Amount         models.Money
	Description    string
	ReturnURL      string
	IdempotencyKey string
	Metadata       models.ChargeMetadata
}

// CreateRefundRequest asks the provider to refund a charge in full.
type CreateRefundRequest struct {
	ChargeID string
	Amount   models.Money
	Reason   string
}

// GatewayClient is the remote payment provider. All calls are synchronous
// and may fail transiently (network) or permanently (rejection); failures
// are reported as *models.GatewayError, unknown charge ids as
// *models.NotFoundError.
type GatewayClient interface {
	CreateCharge(ctx context.Context, req CreateChargeRequest) (*models.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*models.Charge, error)
	ListRefunds(ctx context.Context, chargeID string) ([]models.RefundInfo, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*models.RefundInfo, error)
}

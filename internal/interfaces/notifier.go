package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// Notifier delivers an event to the outbound alerting channel, best effort.
// Delivery errors are logged and swallowed by the caller; at-least-once is
// the contract, never exactly-once.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent) error
}

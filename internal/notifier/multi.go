package notifier

import (
	"context"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/interfaces"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// Multi fans an event out to every configured channel. All channels are
// attempted even when one fails; the first error is returned for logging.
type Multi struct {
	channels []interfaces.Notifier
}

func NewMulti(channels ...interfaces.Notifier) *Multi {
	return &Multi{channels: channels}
}

func (m *Multi) Notify(ctx context.Context, event models.NotificationEvent) error {
	var firstErr error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

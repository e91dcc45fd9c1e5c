package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

var statusMessages = map[models.PaymentStatus]string{
	models.StatusPending:   "Payment is pending",
	models.StatusSucceeded: "Payment succeeded",
	models.StatusCanceled:  "Payment was canceled",
	models.StatusRefunded:  "Payment was refunded",
	models.StatusFailed:    "Payment failed",
}

// TelegramNotifier sends a human-readable alert to a Telegram chat via the
// bot API. Delivery is best effort.
type TelegramNotifier struct {
	token      string
	chatID     string
	httpClient *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, event models.NotificationEvent) error {
	message, ok := statusMessages[event.Status]
	if !ok {
		message = fmt.Sprintf("Payment status: %s", event.Status)
	}
	text := fmt.Sprintf("%s (payment %s)", message, event.PaymentID)
	if event.Reason != "" {
		text += fmt.Sprintf(", reason: %s", event.Reason)
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)
	form := url.Values{
		"chat_id": {n.chatID},
		"text":    {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return &models.NotificationError{Channel: "telegram", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return &models.NotificationError{Channel: "telegram", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &models.NotificationError{Channel: "telegram",
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

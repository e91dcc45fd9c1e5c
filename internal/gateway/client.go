package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/interfaces"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// Client talks to the payment provider's REST API. Credentials are injected
// at construction; there is no ambient configuration.
type Client struct {
	baseURL    string
	shopID     string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL, shopID, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		shopID:  shopID,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type confirmation struct {
	Type      string `json:"type"`
	ReturnURL string `json:"return_url,omitempty"`
	URL       string `json:"confirmation_url,omitempty"`
}

type chargePayload struct {
	ID                  string                `json:"id"`
	Status              models.PaymentStatus  `json:"status"`
	Amount              models.Money          `json:"amount"`
	Confirmation        *confirmation         `json:"confirmation,omitempty"`
	CancellationDetails *cancellationDetails  `json:"cancellation_details,omitempty"`
	Metadata            models.ChargeMetadata `json:"metadata"`
}

type cancellationDetails struct {
	Party  string `json:"party,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type refundListPayload struct {
	Items []models.RefundInfo `json:"items"`
}

func (c *Client) CreateCharge(ctx context.Context, req interfaces.CreateChargeRequest) (*models.Charge, error) {
	body := map[string]any{
		"amount": req.Amount,
		"confirmation": confirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		"description": req.Description,
		"capture":     true,
		"metadata":    req.Metadata,
	}

	var payload chargePayload
	if err := c.do(ctx, http.MethodPost, "/payments", req.IdempotencyKey, req.IdempotencyKey, body, &payload); err != nil {
		return nil, err
	}
	return payloadToCharge(&payload), nil
}

func (c *Client) GetCharge(ctx context.Context, chargeID string) (*models.Charge, error) {
	var payload chargePayload
	if err := c.do(ctx, http.MethodGet, "/payments/"+chargeID, "", chargeID, nil, &payload); err != nil {
		return nil, err
	}
	return payloadToCharge(&payload), nil
}

func (c *Client) ListRefunds(ctx context.Context, chargeID string) ([]models.RefundInfo, error) {
	var payload refundListPayload
	if err := c.do(ctx, http.MethodGet, "/refunds?payment_id="+chargeID, "", chargeID, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

func (c *Client) CreateRefund(ctx context.Context, req interfaces.CreateRefundRequest) (*models.RefundInfo, error) {
	body := map[string]any{
		"payment_id":  req.ChargeID,
		"amount":      req.Amount,
		"description": req.Reason,
	}

	var payload models.RefundInfo
	if err := c.do(ctx, http.MethodPost, "/refunds", "", req.ChargeID, body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey, chargeID string, body, out any) error {
	op := method + " " + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &models.GatewayError{Op: op, Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &models.GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.shopID, c.secret)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotence-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.GatewayError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &models.NotFoundError{Resource: "charge", ID: chargeID}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &models.GatewayError{Op: op, Transient: true,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &models.GatewayError{Op: op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func payloadToCharge(p *chargePayload) *models.Charge {
	charge := &models.Charge{
		ID:       p.ID,
		Status:   p.Status,
		Amount:   p.Amount,
		Metadata: p.Metadata,
	}
	if p.Confirmation != nil {
		charge.ConfirmationURL = p.Confirmation.URL
	}
	if p.CancellationDetails != nil {
		charge.CancellationReason = p.CancellationDetails.Reason
	}
	return charge
}

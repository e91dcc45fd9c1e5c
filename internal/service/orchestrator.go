package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/interfaces"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

const refundLockTTL = 30 * time.Second

// Orchestrator owns every payment status transition. It is the single
// writer of payment state: the repository never mutates status on its own,
// and all notification policy lives here.
type Orchestrator struct {
	repo                interfaces.PaymentRepository
	gateway             interfaces.GatewayClient
	notifier            interfaces.Notifier
	locker              Locker
	returnURL           string
	defaultIntervalDays int
}

func NewOrchestrator(
	repo interfaces.PaymentRepository,
	gateway interfaces.GatewayClient,
	notifier interfaces.Notifier,
	locker Locker,
	returnURL string,
	defaultIntervalDays int,
) *Orchestrator {
	if defaultIntervalDays <= 0 {
		defaultIntervalDays = 1
	}
	return &Orchestrator{
		repo:                repo,
		gateway:             gateway,
		notifier:            notifier,
		locker:              locker,
		returnURL:           returnURL,
		defaultIntervalDays: defaultIntervalDays,
	}
}

type CreateRequest struct {
	Amount      models.Money
	OrderID     int64
	UserID      string
	IsRecurring bool
}

type CreateResult struct {
	PaymentID       string
	ConfirmationURL string
}

type RefundResult struct {
	RefundID string
	Status   string
	Amount   models.Money
	Reason   string
}

// Create registers a new charge at the gateway and persists the pending
// payment. The generated payment id doubles as the gateway idempotency key.
// On gateway failure nothing is persisted.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	paymentID := uuid.NewString()
	now := time.Now()

	charge, err := o.gateway.CreateCharge(ctx, interfaces.CreateChargeRequest{
		Amount:         req.Amount,
		Description:    fmt.Sprintf("Order #%d", req.OrderID),
		ReturnURL:      o.returnURL + "/" + paymentID,
		IdempotencyKey: paymentID,
		Metadata: models.ChargeMetadata{
			OrderID:     req.OrderID,
			UserID:      req.UserID,
			IsRecurring: req.IsRecurring,
		},
	})
	if err != nil {
		telemetry.Logger.Error("Failed to create charge at gateway",
			zap.String("payment_id", paymentID),
			zap.Int64("order_id", req.OrderID),
			zap.Error(err),
		)
		return nil, err
	}

	payment := &models.Payment{
		ID:          paymentID,
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Status:      models.StatusPending,
		Amount:      req.Amount,
		IsRecurring: req.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsRecurring {
		payment.RecurringIntervalDays = o.defaultIntervalDays
		next := now.Add(o.retryInterval(payment))
		payment.NextRetryAt = &next
	}

	if err := o.repo.SavePayment(ctx, payment); err != nil {
		return nil, err
	}

	telemetry.PaymentsCreated.Inc()
	telemetry.Logger.Info("Payment created",
		zap.String("payment_id", paymentID),
		zap.Int64("order_id", req.OrderID),
		zap.Bool("is_recurring", req.IsRecurring),
	)

	o.notify(ctx, models.NotificationEvent{
		Kind:      models.EventPaymentCreated,
		PaymentID: paymentID,
		Status:    models.StatusPending,
		Timestamp: now,
	})

	return &CreateResult{
		PaymentID:       paymentID,
		ConfirmationURL: charge.ConfirmationURL,
	}, nil
}

// CheckStatus fetches the charge, reconciles it against the gateway's
// refund history and persists the canonical status when it changed. A
// notification fires only on an observed change, so repeated polling of an
// unchanged payment stays silent. Safe to call on any payment in any state.
func (o *Orchestrator) CheckStatus(ctx context.Context, paymentID string) (models.PaymentStatus, error) {
	payment, err := o.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}

	charge, err := o.gateway.GetCharge(ctx, paymentID)
	if err != nil {
		telemetry.StatusChecks.WithLabelValues("error").Inc()
		return "", err
	}

	canonical := Reconcile(charge.Status, o.listRefunds(ctx, charge))
	telemetry.StatusChecks.WithLabelValues("ok").Inc()

	var reason string
	if canonical == models.StatusCanceled {
		reason = charge.CancellationReason
	}

	changed := canonical != payment.Status
	if changed {
		if err := o.repo.UpdatePaymentStatus(ctx, paymentID, canonical); err != nil {
			return "", err
		}
		telemetry.StatusTransitions.WithLabelValues(string(canonical)).Inc()
		telemetry.Logger.Info("Payment status transition",
			zap.String("payment_id", paymentID),
			zap.String("from_status", string(payment.Status)),
			zap.String("to_status", string(canonical)),
		)

		o.notify(ctx, models.NotificationEvent{
			Kind:      models.EventStatusChanged,
			PaymentID: paymentID,
			Status:    canonical,
			Reason:    reason,
			Timestamp: time.Now(),
		})
	}

	// A check triggered by a sweep and one triggered by the API converge
	// here: the retry is keyed by next_retry_at, set once per transition.
	recurring := payment.IsRecurring || charge.Metadata.IsRecurring
	if changed && canonical == models.StatusCanceled && recurring {
		next := time.Now().Add(o.retryInterval(payment))
		if err := o.repo.UpdateNextRetry(ctx, paymentID, next); err != nil {
			return "", err
		}
		telemetry.Logger.Info("Retry scheduled",
			zap.String("payment_id", paymentID),
			zap.Time("next_retry_at", next),
		)
	}

	return canonical, nil
}

// Refund refunds the full original amount of a succeeded payment. The
// repository guard rejects a second request once any refund is recorded;
// the lock closes the window between two near-simultaneous requests.
func (o *Orchestrator) Refund(ctx context.Context, paymentID, reason string) (*RefundResult, error) {
	payment, err := o.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	exists, err := o.repo.HasRefund(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &models.InvalidStateError{
			PaymentID: paymentID,
			Status:    payment.Status,
			Msg:       "refund already requested",
		}
	}

	lockKey := "refund_lock:" + paymentID
	acquired, err := o.locker.Acquire(ctx, lockKey, refundLockTTL)
	if err != nil {
		telemetry.Logger.Warn("Refund lock unavailable, proceeding unguarded",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	} else if !acquired {
		return nil, &models.InvalidStateError{
			PaymentID: paymentID,
			Status:    payment.Status,
			Msg:       "refund already in progress",
		}
	} else {
		defer o.locker.Release(ctx, lockKey)
	}

	charge, err := o.gateway.GetCharge(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	canonical := Reconcile(charge.Status, o.listRefunds(ctx, charge))
	if canonical != models.StatusSucceeded {
		return nil, &models.InvalidStateError{
			PaymentID: paymentID,
			Status:    canonical,
			Msg:       "cannot refund payment that is not succeeded",
		}
	}

	refund, err := o.gateway.CreateRefund(ctx, interfaces.CreateRefundRequest{
		ChargeID: paymentID,
		Amount:   charge.Amount,
		Reason:   reason,
	})
	if err != nil {
		return nil, err
	}

	if err := o.repo.SaveRefund(ctx, &models.Refund{
		ID:        refund.ID,
		PaymentID: paymentID,
		Status:    refund.Status,
		Reason:    reason,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	if err := o.repo.UpdatePaymentStatus(ctx, paymentID, models.StatusRefunded); err != nil {
		return nil, err
	}

	telemetry.RefundsCreated.Inc()
	telemetry.StatusTransitions.WithLabelValues(string(models.StatusRefunded)).Inc()
	telemetry.Logger.Info("Refund created",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", refund.ID),
	)

	o.notify(ctx, models.NotificationEvent{
		Kind:      models.EventRefundCreated,
		PaymentID: paymentID,
		Status:    models.StatusRefunded,
		Reason:    reason,
		Timestamp: time.Now(),
	})

	return &RefundResult{
		RefundID: refund.ID,
		Status:   refund.Status,
		Amount:   charge.Amount,
		Reason:   reason,
	}, nil
}

// CreateRetry spawns a brand-new payment for a due recurring payment that
// ended up canceled or failed. The parent's state is re-read first so a
// payment resolved since the sweep enqueued the job becomes a no-op; the
// returned payment is nil in that case. The retry always charges the
// parent's original amount.
func (o *Orchestrator) CreateRetry(ctx context.Context, parentID string) (*models.Payment, error) {
	parent, err := o.repo.GetPayment(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !parent.IsRecurring || !parent.Status.Retryable() ||
		parent.NextRetryAt == nil || parent.NextRetryAt.After(now) {
		return nil, nil
	}

	childID := uuid.NewString()
	_, err = o.gateway.CreateCharge(ctx, interfaces.CreateChargeRequest{
		Amount:         parent.Amount,
		Description:    fmt.Sprintf("Order #%d (retry)", parent.OrderID),
		ReturnURL:      o.returnURL + "/" + childID,
		IdempotencyKey: childID,
		Metadata: models.ChargeMetadata{
			OrderID:     parent.OrderID,
			UserID:      parent.UserID,
			IsRecurring: true,
		},
	})
	if err != nil {
		return nil, err
	}

	parentRef := parent.ID
	next := now.Add(o.retryInterval(parent))
	child := &models.Payment{
		ID:                    childID,
		OrderID:               parent.OrderID,
		UserID:                parent.UserID,
		Status:                models.StatusPending,
		Amount:                parent.Amount,
		IsRecurring:           true,
		RecurringIntervalDays: intervalDaysOf(parent, o.defaultIntervalDays),
		NextRetryAt:           &next,
		ParentPaymentID:       &parentRef,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := o.repo.SavePayment(ctx, child); err != nil {
		return nil, err
	}

	// Re-arm the parent's scheduling key so the next sweep does not spawn
	// a second child for the same due window.
	if err := o.repo.UpdateNextRetry(ctx, parent.ID, next); err != nil {
		return nil, err
	}

	telemetry.RetriesSpawned.Inc()
	telemetry.Logger.Info("Retry payment created",
		zap.String("payment_id", childID),
		zap.String("parent_payment_id", parent.ID),
		zap.Int64("order_id", parent.OrderID),
	)

	o.notify(ctx, models.NotificationEvent{
		Kind:      models.EventPaymentRetried,
		PaymentID: childID,
		Status:    models.StatusPending,
		Timestamp: now,
	})

	return child, nil
}

// GetPayment returns the locally persisted record without touching the
// gateway.
func (o *Orchestrator) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return o.repo.GetPayment(ctx, paymentID)
}

// listRefunds fetches the refund history when it can matter. A transient
// listing failure degrades to the raw charge status rather than failing
// the check.
func (o *Orchestrator) listRefunds(ctx context.Context, charge *models.Charge) []models.RefundInfo {
	if charge.Status != models.StatusSucceeded {
		return nil
	}

	refunds, err := o.gateway.ListRefunds(ctx, charge.ID)
	if err != nil {
		telemetry.Logger.Error("Failed to list refunds, falling back to charge status",
			zap.String("payment_id", charge.ID),
			zap.Error(err),
		)
		return nil
	}
	return refunds
}

func (o *Orchestrator) notify(ctx context.Context, event models.NotificationEvent) {
	if err := o.notifier.Notify(ctx, event); err != nil {
		telemetry.NotificationFailures.Inc()
		telemetry.Logger.Error("Notification delivery failed",
			zap.String("payment_id", event.PaymentID),
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) retryInterval(p *models.Payment) time.Duration {
	return time.Duration(intervalDaysOf(p, o.defaultIntervalDays)) * 24 * time.Hour
}

func intervalDaysOf(p *models.Payment, def int) int {
	if p.RecurringIntervalDays > 0 {
		return p.RecurringIntervalDays
	}
	return def
}

func validateCreate(req CreateRequest) error {
	value, err := decimal.NewFromString(req.Amount.Value)
	if err != nil {
		return &models.ValidationError{Field: "amount.value", Msg: "must be a decimal string"}
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return &models.ValidationError{Field: "amount.value", Msg: "must be positive"}
	}

	currency := req.Amount.Currency
	if len(currency) != 3 {
		return &models.ValidationError{Field: "amount.currency", Msg: "must be a 3-letter ISO code"}
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return &models.ValidationError{Field: "amount.currency", Msg: "must be a 3-letter ISO code"}
		}
	}

	if req.OrderID <= 0 {
		return &models.ValidationError{Field: "order_id", Msg: "must be positive"}
	}
	if req.UserID == "" {
		return &models.ValidationError{Field: "user_id", Msg: "must not be empty"}
	}
	return nil
}

package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/interfaces"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/service"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type fakeRepo struct {
	mu       sync.Mutex
	payments map[string]models.Payment
	refunds  map[string][]models.Refund
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: make(map[string]models.Payment),
		refunds:  make(map[string][]models.Refund),
	}
}

func (r *fakeRepo) SavePayment(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		r.payments[p.ID] = *p
	}
	return nil
}

func (r *fakeRepo) UpdatePaymentStatus(_ context.Context, id string, status models.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("update of unknown payment %s", id)
	}
	p.Status = status
	r.payments[id] = p
	return nil
}

func (r *fakeRepo) UpdateNextRetry(_ context.Context, id string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("update of unknown payment %s", id)
	}
	p.NextRetryAt = &when
	r.payments[id] = p
	return nil
}

func (r *fakeRepo) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "payment", ID: id}
	}
	copied := p
	return &copied, nil
}

func (r *fakeRepo) ListPending(_ context.Context) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == models.StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDueRecurring(_ context.Context, now time.Time) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.IsRecurring && p.Status.Retryable() && p.NextRetryAt != nil && !p.NextRetryAt.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveRefund(_ context.Context, ref *models.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds[ref.PaymentID] = append(r.refunds[ref.PaymentID], *ref)
	return nil
}

func (r *fakeRepo) HasRefund(_ context.Context, paymentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refunds[paymentID]) > 0, nil
}

func (r *fakeRepo) payment(t *testing.T, id string) models.Payment {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	require.True(t, ok, "payment %s not persisted", id)
	return p
}

type fakeGateway struct {
	mu          sync.Mutex
	charges     map[string]*models.Charge
	refundLists map[string][]models.RefundInfo
	createErr   error
	refundErr   error
	listErr     error
	createReqs  []interfaces.CreateChargeRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		charges:     make(map[string]*models.Charge),
		refundLists: make(map[string][]models.RefundInfo),
	}
}

func (g *fakeGateway) CreateCharge(_ context.Context, req interfaces.CreateChargeRequest) (*models.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.createReqs = append(g.createReqs, req)
	charge := &models.Charge{
		ID:              req.IdempotencyKey,
		Status:          models.StatusPending,
		Amount:          req.Amount,
		ConfirmationURL: "https://gateway.test/confirm/" + req.IdempotencyKey,
		Metadata:        req.Metadata,
	}
	g.charges[charge.ID] = charge
	return charge, nil
}

func (g *fakeGateway) GetCharge(_ context.Context, chargeID string) (*models.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	charge, ok := g.charges[chargeID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "charge", ID: chargeID}
	}
	copied := *charge
	return &copied, nil
}

func (g *fakeGateway) ListRefunds(_ context.Context, chargeID string) ([]models.RefundInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.refundLists[chargeID], nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, req interfaces.CreateRefundRequest) (*models.RefundInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	info := models.RefundInfo{
		ID:     fmt.Sprintf("ref-%d", len(g.refundLists[req.ChargeID])+1),
		Status: models.RefundStatusSucceeded,
		Amount: req.Amount,
	}
	g.refundLists[req.ChargeID] = append(g.refundLists[req.ChargeID], info)
	return &info, nil
}

func (g *fakeGateway) setStatus(chargeID string, status models.PaymentStatus, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	charge := g.charges[chargeID]
	charge.Status = status
	charge.CancellationReason = reason
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.NotificationEvent
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, event models.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) byKind(kind string) []models.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.NotificationEvent
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeLocker struct {
	denied bool
	err    error
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return !l.denied, l.err
}

func (l *fakeLocker) Release(context.Context, string) {}

func rub(value string) models.Money {
	return models.Money{Value: value, Currency: "RUB"}
}

func newTestOrchestrator() (*service.Orchestrator, *fakeRepo, *fakeGateway, *fakeNotifier) {
	repo := newFakeRepo()
	gw := newFakeGateway()
	notify := &fakeNotifier{}
	orch := service.NewOrchestrator(repo, gw, notify, &fakeLocker{}, "https://shop.test/return", 1)
	return orch, repo, gw, notify
}

func TestCreate_PersistsPendingPayment(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount:  rub("100.00"),
		OrderID: 42,
		UserID:  "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.PaymentID)
	require.Equal(t, "https://gateway.test/confirm/"+result.PaymentID, result.ConfirmationURL)

	p := repo.payment(t, result.PaymentID)
	require.Equal(t, models.StatusPending, p.Status)
	require.Equal(t, rub("100.00"), p.Amount)
	require.False(t, p.IsRecurring)
	require.Nil(t, p.NextRetryAt)

	require.Len(t, gw.createReqs, 1)
	require.Equal(t, result.PaymentID, gw.createReqs[0].IdempotencyKey)
	require.Equal(t, int64(42), gw.createReqs[0].Metadata.OrderID)

	require.Len(t, notify.byKind(models.EventPaymentCreated), 1)
}

func TestCreate_GatewayFailureLeavesNoState(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()
	gw.createErr = &models.GatewayError{Op: "POST /payments", Transient: true, Err: errors.New("timeout")}

	_, err := orch.Create(context.Background(), service.CreateRequest{
		Amount:  rub("100.00"),
		OrderID: 42,
		UserID:  "u1",
	})

	var ge *models.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Empty(t, repo.payments)
	require.Empty(t, notify.events)
}

func TestCreate_Validation(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()

	tests := []struct {
		name string
		req  service.CreateRequest
	}{
		{"malformed amount", service.CreateRequest{Amount: models.Money{Value: "abc", Currency: "RUB"}, OrderID: 1, UserID: "u1"}},
		{"zero amount", service.CreateRequest{Amount: models.Money{Value: "0", Currency: "RUB"}, OrderID: 1, UserID: "u1"}},
		{"lowercase currency", service.CreateRequest{Amount: models.Money{Value: "10.00", Currency: "rub"}, OrderID: 1, UserID: "u1"}},
		{"long currency", service.CreateRequest{Amount: models.Money{Value: "10.00", Currency: "RUBL"}, OrderID: 1, UserID: "u1"}},
		{"missing order id", service.CreateRequest{Amount: rub("10.00"), UserID: "u1"}},
		{"missing user id", service.CreateRequest{Amount: rub("10.00"), OrderID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orch.Create(context.Background(), tt.req)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestCreate_RecurringSeedsNextRetry(t *testing.T) {
	orch, repo, _, _ := newTestOrchestrator()

	before := time.Now()
	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount:      rub("100.00"),
		OrderID:     42,
		UserID:      "u1",
		IsRecurring: true,
	})
	require.NoError(t, err)

	p := repo.payment(t, result.PaymentID)
	require.True(t, p.IsRecurring)
	require.Equal(t, 1, p.RecurringIntervalDays)
	require.NotNil(t, p.NextRetryAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *p.NextRetryAt, time.Minute)
}

func TestCheckStatus_NotifiesOnlyOnChange(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)

	gw.setStatus(result.PaymentID, models.StatusSucceeded, "")

	status, err := orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, status)
	require.Equal(t, models.StatusSucceeded, repo.payment(t, result.PaymentID).Status)

	// Second poll sees no change and stays silent.
	status, err = orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, status)

	require.Len(t, notify.byKind(models.EventStatusChanged), 1)
}

func TestCheckStatus_RefundDiscoveredAtGateway(t *testing.T) {
	orch, repo, gw, _ := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)

	gw.setStatus(result.PaymentID, models.StatusSucceeded, "")
	gw.refundLists[result.PaymentID] = []models.RefundInfo{
		{ID: "r1", Status: models.RefundStatusSucceeded, Amount: rub("100.00")},
	}

	status, err := orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRefunded, status)
	require.Equal(t, models.StatusRefunded, repo.payment(t, result.PaymentID).Status)
}

func TestCheckStatus_RefundListFailureFallsBack(t *testing.T) {
	orch, _, gw, _ := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)

	gw.setStatus(result.PaymentID, models.StatusSucceeded, "")
	gw.listErr = &models.GatewayError{Op: "GET /refunds", Transient: true, Err: errors.New("timeout")}

	status, err := orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, status)
}

func TestCheckStatus_CanceledRecurringSchedulesRetry(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1", IsRecurring: true,
	})
	require.NoError(t, err)

	gw.setStatus(result.PaymentID, models.StatusCanceled, "insufficient_funds")

	before := time.Now()
	status, err := orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCanceled, status)

	p := repo.payment(t, result.PaymentID)
	require.NotNil(t, p.NextRetryAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *p.NextRetryAt, time.Minute)

	changed := notify.byKind(models.EventStatusChanged)
	require.Len(t, changed, 1)
	require.Equal(t, "insufficient_funds", changed[0].Reason)

	// Re-checking an already canceled payment must not move the retry.
	scheduled := *p.NextRetryAt
	_, err = orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, scheduled, *repo.payment(t, result.PaymentID).NextRetryAt)
	require.Len(t, notify.byKind(models.EventStatusChanged), 1)
}

func TestCheckStatus_UnknownPayment(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()

	_, err := orch.CheckStatus(context.Background(), "missing")
	require.True(t, models.IsNotFound(err))
}

func TestRefund_RequiresSucceededStatus(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)

	// Charge is still pending at the gateway.
	_, err = orch.Refund(context.Background(), result.PaymentID, "")
	var ise *models.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Contains(t, ise.Msg, "not succeeded")
}

func TestRefund_LockContention(t *testing.T) {
	repo := newFakeRepo()
	gw := newFakeGateway()
	orch := service.NewOrchestrator(repo, gw, &fakeNotifier{}, &fakeLocker{denied: true},
		"https://shop.test/return", 1)

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)
	gw.setStatus(result.PaymentID, models.StatusSucceeded, "")

	_, err = orch.Refund(context.Background(), result.PaymentID, "")
	var ise *models.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Contains(t, ise.Msg, "in progress")
}

func TestLifecycle_CreateCheckRefund(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, repo.payment(t, result.PaymentID).Status)

	gw.setStatus(result.PaymentID, models.StatusSucceeded, "")
	status, err := orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSucceeded, status)

	refund, err := orch.Refund(context.Background(), result.PaymentID, "customer request")
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusSucceeded, refund.Status)
	require.Equal(t, rub("100.00"), refund.Amount)
	require.Equal(t, models.StatusRefunded, repo.payment(t, result.PaymentID).Status)
	require.Len(t, notify.byKind(models.EventRefundCreated), 1)

	// A second refund must be rejected, never silently repeated.
	_, err = orch.Refund(context.Background(), result.PaymentID, "again")
	var ise *models.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Len(t, repo.refunds[result.PaymentID], 1)
}

func TestCreateRetry_SpawnsChildWithOriginalAmount(t *testing.T) {
	orch, repo, gw, notify := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("250.00"), OrderID: 42, UserID: "u1", IsRecurring: true,
	})
	require.NoError(t, err)

	gw.setStatus(result.PaymentID, models.StatusCanceled, "card_expired")
	_, err = orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)

	// Not due yet: the retry fires only after the interval elapses.
	child, err := orch.CreateRetry(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, child)

	// Force the parent due.
	due := time.Now().Add(-time.Minute)
	require.NoError(t, repo.UpdateNextRetry(context.Background(), result.PaymentID, due))

	child, err = orch.CreateRetry(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, child)
	require.NotEqual(t, result.PaymentID, child.ID)
	require.Equal(t, rub("250.00"), child.Amount)
	require.Equal(t, models.StatusPending, child.Status)
	require.NotNil(t, child.ParentPaymentID)
	require.Equal(t, result.PaymentID, *child.ParentPaymentID)

	// The parent's scheduling key moves forward so the same due window
	// cannot spawn a second child.
	parent := repo.payment(t, result.PaymentID)
	require.True(t, parent.NextRetryAt.After(time.Now()))

	again, err := orch.CreateRetry(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, again)

	require.Len(t, notify.byKind(models.EventPaymentRetried), 1)
}

func TestCreateRetry_IgnoresNonRecurring(t *testing.T) {
	orch, repo, gw, _ := newTestOrchestrator()

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)
	gw.setStatus(result.PaymentID, models.StatusCanceled, "")
	_, err = orch.CheckStatus(context.Background(), result.PaymentID)
	require.NoError(t, err)

	child, err := orch.CreateRetry(context.Background(), result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, child)
	require.Len(t, repo.payments, 1)
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	repo := newFakeRepo()
	gw := newFakeGateway()
	notify := &fakeNotifier{err: &models.NotificationError{Channel: "telegram", Err: errors.New("chat unreachable")}}
	orch := service.NewOrchestrator(repo, gw, notify, &fakeLocker{}, "https://shop.test/return", 1)

	result, err := orch.Create(context.Background(), service.CreateRequest{
		Amount: rub("100.00"), OrderID: 42, UserID: "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.PaymentID)
}

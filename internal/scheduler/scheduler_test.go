package scheduler_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/scheduler"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type recordingOrchestrator struct {
	mu         sync.Mutex
	checked    []string
	retried    []string
	checkErrs  map[string]error
	retryChild map[string]*models.Payment
}

func newRecordingOrchestrator() *recordingOrchestrator {
	return &recordingOrchestrator{
		checkErrs:  make(map[string]error),
		retryChild: make(map[string]*models.Payment),
	}
}

func (o *recordingOrchestrator) CheckStatus(_ context.Context, paymentID string) (models.PaymentStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checked = append(o.checked, paymentID)
	if err := o.checkErrs[paymentID]; err != nil {
		return "", err
	}
	return models.StatusPending, nil
}

func (o *recordingOrchestrator) CreateRetry(_ context.Context, parentID string) (*models.Payment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retried = append(o.retried, parentID)
	return o.retryChild[parentID], nil
}

func (o *recordingOrchestrator) checkedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.checked...)
}

func (o *recordingOrchestrator) retriedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.retried...)
}

type staticSource struct {
	mu      sync.Mutex
	pending []models.Payment
	due     []models.Payment
}

func (s *staticSource) ListPending(context.Context) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.pending...), nil
}

func (s *staticSource) ListDueRecurring(context.Context, time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.due...), nil
}

func (s *staticSource) clearDue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.due = nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestSweep_ChecksAllPendingDespiteFailures(t *testing.T) {
	orch := newRecordingOrchestrator()
	orch.checkErrs["p1"] = errors.New("gateway down")

	source := &staticSource{
		pending: []models.Payment{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
	}

	sched := scheduler.New(orch, source, 10*time.Millisecond, time.Hour, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		ids := orch.checkedIDs()
		return contains(ids, "p1") && contains(ids, "p2") && contains(ids, "p3")
	}, 2*time.Second, 5*time.Millisecond,
		"a failing item must not stop the sweep for the others")
}

func TestSweep_RetriesDueRecurring(t *testing.T) {
	orch := newRecordingOrchestrator()
	orch.retryChild["parent"] = &models.Payment{ID: "child", Status: models.StatusPending}

	source := &staticSource{
		due: []models.Payment{{ID: "parent"}},
	}

	sched := scheduler.New(orch, source, 10*time.Millisecond, 20*time.Millisecond, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		return contains(orch.retriedIDs(), "parent")
	}, 2*time.Second, 5*time.Millisecond)

	// The sweep stops offering the parent once the orchestrator has re-armed
	// its schedule; the one-shot follow-up check for the child still fires.
	source.clearDue()

	require.Eventually(t, func() bool {
		return contains(orch.checkedIDs(), "child")
	}, 2*time.Second, 5*time.Millisecond,
		"retry payment must get a delayed one-shot status check")
}

func TestSweep_NoRetryForEmptyDueSet(t *testing.T) {
	orch := newRecordingOrchestrator()
	source := &staticSource{
		pending: []models.Payment{{ID: "p1"}},
	}

	sched := scheduler.New(orch, source, 10*time.Millisecond, time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		return len(orch.checkedIDs()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.Empty(t, orch.retriedIDs())
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

// Orchestrator is the slice of the lifecycle orchestrator the scheduler
// drives. Sweep-triggered calls go through the exact same operations as
// direct API calls.
type Orchestrator interface {
	CheckStatus(ctx context.Context, paymentID string) (models.PaymentStatus, error)
	CreateRetry(ctx context.Context, parentID string) (*models.Payment, error)
}

// SweepSource lists the payments a sweep must visit.
type SweepSource interface {
	ListPending(ctx context.Context) ([]models.Payment, error)
	ListDueRecurring(ctx context.Context, now time.Time) ([]models.Payment, error)
}

type jobKind int

const (
	jobCheckStatus jobKind = iota
	jobCreateRetry
)

type job struct {
	kind      jobKind
	paymentID string
}

// Scheduler runs two periodic duties on one cadence: re-poll every pending
// payment, and re-attempt every due recurring payment. Jobs are drained by
// a worker pool; a failure on one item never aborts the sweep for others.
type Scheduler struct {
	orch            Orchestrator
	source          SweepSource
	sweepInterval   time.Duration
	retryCheckDelay time.Duration
	workers         int

	jobs chan job
	wg   sync.WaitGroup
}

func New(orch Orchestrator, source SweepSource, sweepInterval, retryCheckDelay time.Duration, workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		orch:            orch,
		source:          source,
		sweepInterval:   sweepInterval,
		retryCheckDelay: retryCheckDelay,
		workers:         workers,
		jobs:            make(chan job, 256),
	}
}

// Run blocks until ctx is canceled, then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	telemetry.Logger.Info("Scheduler started",
		zap.Duration("sweep_interval", s.sweepInterval),
		zap.Int("workers", s.workers),
	)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			telemetry.Logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	pending, err := s.source.ListPending(ctx)
	if err != nil {
		telemetry.SweepErrors.WithLabelValues("pending").Inc()
		telemetry.Logger.Error("Pending sweep query failed", zap.Error(err))
	} else {
		for _, p := range pending {
			s.enqueue(ctx, job{kind: jobCheckStatus, paymentID: p.ID})
		}
	}

	due, err := s.source.ListDueRecurring(ctx, time.Now())
	if err != nil {
		telemetry.SweepErrors.WithLabelValues("recurring").Inc()
		telemetry.Logger.Error("Recurring sweep query failed", zap.Error(err))
		return
	}
	for _, p := range due {
		s.enqueue(ctx, job{kind: jobCreateRetry, paymentID: p.ID})
	}
}

// enqueue never blocks a sweep on a full queue: the next tick will find
// the same rows again.
func (s *Scheduler) enqueue(ctx context.Context, j job) {
	select {
	case s.jobs <- j:
	case <-ctx.Done():
	default:
		telemetry.Logger.Warn("Job queue full, dropping until next sweep",
			zap.String("payment_id", j.paymentID),
		)
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.handle(ctx, j)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, j job) {
	switch j.kind {
	case jobCheckStatus:
		if _, err := s.orch.CheckStatus(ctx, j.paymentID); err != nil {
			telemetry.SweepErrors.WithLabelValues("pending").Inc()
			telemetry.Logger.Error("Sweep status check failed",
				zap.String("payment_id", j.paymentID),
				zap.Error(err),
			)
		}
	case jobCreateRetry:
		child, err := s.orch.CreateRetry(ctx, j.paymentID)
		if err != nil {
			telemetry.SweepErrors.WithLabelValues("recurring").Inc()
			telemetry.Logger.Error("Sweep retry creation failed",
				zap.String("payment_id", j.paymentID),
				zap.Error(err),
			)
			return
		}
		if child != nil {
			// One-shot follow-up check so the retry's immediate outcome
			// is captured without waiting for the next periodic sweep.
			s.scheduleDelayedCheck(ctx, child.ID)
		}
	}
}

func (s *Scheduler) scheduleDelayedCheck(ctx context.Context, paymentID string) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryCheckDelay):
		}
		s.enqueue(ctx, job{kind: jobCheckStatus, paymentID: paymentID})
	}()
}

package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"payment-engine/internal/logger"
)

// VerificationEnqueuer hands a transaction id to the background worker.
type VerificationEnqueuer interface {
	EnqueueVerification(ctx context.Context, transactionID string) error
}

// VerificationScheduler periodically polls gateways for processing
// transactions whose callback never arrived. It only asks; it never fails a
// transaction on its own.
type VerificationScheduler struct {
	Service  *TransactionService
	Enqueuer VerificationEnqueuer // nil verifies inline
	Schedule string
	After    time.Duration
	Batch    int

	cron *cron.Cron
}

func NewVerificationScheduler(svc *TransactionService, enqueuer VerificationEnqueuer, schedule string, after time.Duration, batch int) *VerificationScheduler {
	return &VerificationScheduler{
		Service:  svc,
		Enqueuer: enqueuer,
		Schedule: schedule,
		After:    after,
		Batch:    batch,
	}
}

// Sweep runs one pass and returns how many transactions were handed off.
func (s *VerificationScheduler) Sweep(ctx context.Context) (int, error) {
	stale, err := s.Service.StaleProcessing(ctx, s.After, s.Batch)
	if err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx)
	handled := 0
	for _, tx := range stale {
		if s.Enqueuer != nil {
			err = s.Enqueuer.EnqueueVerification(ctx, tx.ID)
		} else {
			_, err = s.Service.VerifyTransaction(ctx, tx.ID)
		}
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Verification failed")
			continue
		}
		handled++
	}
	return handled, nil
}

// StartScheduler registers the sweep with cron and starts it.
func (s *VerificationScheduler) StartScheduler() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.Schedule, func() {
		logger.Logger.Info().Msg("Running scheduled verification sweep...")
		n, err := s.Sweep(context.Background())
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Verification sweep failed")
			return
		}
		logger.Logger.Info().Int("handled", n).Msg("Verification sweep finished")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	logger.Logger.Info().Str("schedule", s.Schedule).Msg("Verification scheduler started")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *VerificationScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

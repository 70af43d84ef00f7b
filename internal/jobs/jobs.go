/**
 * @description
 * Scheduled job implementations: the fraud alert sweep that opens manual
 * review records for flagged transactions, and the eviction pass that keeps
 * the in-process rate limiter's window map from growing without bound.
 */

package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/corebank/ledger-service/internal/domain"
)

// Repository defines the storage operations needed by the jobs.
type Repository interface {
	ListFlaggedTransactionsWithoutAlert(ctx context.Context, limit int) ([]domain.Transaction, error)
	CreateFraudAlert(ctx context.Context, alert *domain.FraudAlert) error
}

// WindowEvicter is implemented by rate limiters that hold per-key windows in
// memory and need periodic cleanup.
type WindowEvicter interface {
	Evict(now time.Time) int
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo       Repository
	evicter    WindowEvicter
	logger     *zap.Logger
	sweepBatch int
	now        func() time.Time
}

// NewJobs creates a new Jobs runner. evicter may be nil when rate limiting is
// backed by an external store that expires keys itself.
func NewJobs(repo Repository, evicter WindowEvicter, logger *zap.Logger, sweepBatch int) *Jobs {
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &Jobs{
		repo:       repo,
		evicter:    evicter,
		logger:     logger,
		sweepBatch: sweepBatch,
		now:        time.Now,
	}
}

// SweepFlaggedTransactions opens a pending fraud alert for every flagged
// transaction that does not have one yet. Alert creation is idempotent at the
// storage layer, so re-running after a partial failure is safe.
func (j *Jobs) SweepFlaggedTransactions() {
	j.logger.Info("starting fraud alert sweep")
	ctx := context.Background()

	txns, err := j.repo.ListFlaggedTransactionsWithoutAlert(ctx, j.sweepBatch)
	if err != nil {
		j.logger.Error("failed to list flagged transactions", zap.Error(err))
		return
	}
	if len(txns) == 0 {
		j.logger.Info("no flagged transactions awaiting alerts")
		return
	}

	created := 0
	for _, tx := range txns {
		alert := &domain.FraudAlert{
			TransactionID:   tx.ID,
			Severity:        domain.SeverityForScore(tx.FraudScore),
			DetectionReason: tx.FraudReason,
			FraudScore:      tx.FraudScore,
			Status:          domain.ReviewPending,
			CreatedAt:       j.now(),
		}
		if err := j.repo.CreateFraudAlert(ctx, alert); err != nil {
			j.logger.Error("failed to create fraud alert",
				zap.String("transaction_id", tx.ID), zap.Error(err))
			continue
		}
		created++
	}

	j.logger.Info("fraud alert sweep finished",
		zap.Int("examined", len(txns)), zap.Int("created", created))
}

// EvictRateLimiterWindows drops expired rate limit windows.
func (j *Jobs) EvictRateLimiterWindows() {
	if j.evicter == nil {
		return
	}
	evicted := j.evicter.Evict(j.now())
	if evicted > 0 {
		j.logger.Info("evicted expired rate limit windows", zap.Int("count", evicted))
	}
}

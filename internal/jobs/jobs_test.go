package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/corebank/ledger-service/internal/domain"
)

type sweepRepoStub struct {
	flagged   []domain.Transaction
	listErr   error
	createErr map[string]error

	created []domain.FraudAlert
}

func (s *sweepRepoStub) ListFlaggedTransactionsWithoutAlert(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit < len(s.flagged) {
		return s.flagged[:limit], nil
	}
	return s.flagged, nil
}

func (s *sweepRepoStub) CreateFraudAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if err, ok := s.createErr[alert.TransactionID]; ok {
		return err
	}
	s.created = append(s.created, *alert)
	return nil
}

type evicterStub struct {
	evicted int
	calls   int
}

func (e *evicterStub) Evict(now time.Time) int {
	e.calls++
	return e.evicted
}

func TestSweepCreatesAlertsWithSeverity(t *testing.T) {
	repo := &sweepRepoStub{flagged: []domain.Transaction{
		{ID: "TXN1", FraudScore: 0.9, FraudReason: "Transaction amount exceeds $10,000"},
		{ID: "TXN2", FraudScore: 0.8, FraudReason: "Multiple transactions in short time (6 in 10 min)"},
		{ID: "TXN3", FraudScore: 0.7, FraudReason: "Transaction amount 5x higher than user's average"},
	}}
	jobs := NewJobs(repo, nil, zap.NewNop(), 100)

	jobs.SweepFlaggedTransactions()

	if len(repo.created) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(repo.created))
	}
	wantSeverity := []domain.AlertSeverity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium}
	for i, alert := range repo.created {
		if alert.Severity != wantSeverity[i] {
			t.Fatalf("alert %d: expected severity %s, got %s", i, wantSeverity[i], alert.Severity)
		}
		if alert.Status != domain.ReviewPending {
			t.Fatalf("alert %d: new alerts start pending, got %s", i, alert.Status)
		}
		if alert.DetectionReason == "" {
			t.Fatalf("alert %d: detection reason must carry over", i)
		}
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	repo := &sweepRepoStub{
		flagged: []domain.Transaction{
			{ID: "TXN1", FraudScore: 0.9},
			{ID: "TXN2", FraudScore: 0.9},
		},
		createErr: map[string]error{"TXN1": errors.New("insert failed")},
	}
	jobs := NewJobs(repo, nil, zap.NewNop(), 100)

	jobs.SweepFlaggedTransactions()

	if len(repo.created) != 1 || repo.created[0].TransactionID != "TXN2" {
		t.Fatalf("a failed insert must not stop the sweep, created %v", repo.created)
	}
}

func TestSweepRespectsBatchSize(t *testing.T) {
	repo := &sweepRepoStub{flagged: []domain.Transaction{
		{ID: "TXN1", FraudScore: 0.9},
		{ID: "TXN2", FraudScore: 0.9},
		{ID: "TXN3", FraudScore: 0.9},
	}}
	jobs := NewJobs(repo, nil, zap.NewNop(), 2)

	jobs.SweepFlaggedTransactions()

	if len(repo.created) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(repo.created))
	}
}

func TestEvictRateLimiterWindows(t *testing.T) {
	evicter := &evicterStub{evicted: 3}
	jobs := NewJobs(&sweepRepoStub{}, evicter, zap.NewNop(), 100)

	jobs.EvictRateLimiterWindows()
	if evicter.calls != 1 {
		t.Fatalf("expected one eviction pass, got %d", evicter.calls)
	}

	// A nil evicter is a no-op, not a panic.
	NewJobs(&sweepRepoStub{}, nil, zap.NewNop(), 100).EvictRateLimiterWindows()
}

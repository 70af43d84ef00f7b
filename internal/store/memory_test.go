package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

func newSeededRepo(t *testing.T) (*MemoryRepository, *domain.Account, *domain.Account) {
	t.Helper()
	repo := NewMemoryRepository(nil)
	ctx := context.Background()

	sender, err := repo.CreateAccount(ctx, uuid.New(), domain.AccountSavings, decimal.NewFromInt(50_000))
	if err != nil {
		t.Fatalf("failed to create sender account: %v", err)
	}
	receiver, err := repo.CreateAccount(ctx, uuid.New(), domain.AccountCurrent, decimal.NewFromInt(50_000))
	if err != nil {
		t.Fatalf("failed to create receiver account: %v", err)
	}
	repo.SetBalance(sender.ID, decimal.NewFromInt(1_000))
	return repo, sender, receiver
}

func TestApplyTransferMovesMoneyAtomically(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()

	record, newBalance, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(400), domain.Transaction{
		Status:      domain.StatusCompleted,
		Description: "groceries",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !newBalance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected sender balance 600, got %s", newBalance)
	}
	if record.ID == "" {
		t.Fatal("expected a generated transaction id")
	}
	got, err := repo.FindAccountByID(ctx, receiver.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected receiver balance 400, got %s", got.Balance)
	}
}

func TestApplyTransferInsufficientFundsLeavesNoTrace(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()

	_, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(1_001), domain.Transaction{})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := repo.FindAccountByID(ctx, sender.ID)
	if !got.Balance.Equal(decimal.NewFromInt(1_000)) {
		t.Fatalf("failed transfer must not move money, sender has %s", got.Balance)
	}
	txns, _ := repo.ListTransactionsForAccount(ctx, sender.ID)
	if len(txns) != 0 {
		t.Fatalf("failed transfer must not leave a record, found %d", len(txns))
	}
}

func TestApplyTransferInactiveAccount(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()

	if err := repo.DeactivateAccount(ctx, receiver.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), domain.Transaction{})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()
	repo.SetBalance(sender.ID, decimal.NewFromInt(730))
	totalBefore := repo.TotalBalance()

	amount := decimal.NewFromInt(100)
	const workers = 50

	var wg sync.WaitGroup
	var successes int64
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, amount, domain.Transaction{Status: domain.StatusCompleted})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// 730 / 100 = exactly 7 transfers can drain the account.
	if successes != 7 {
		t.Fatalf("expected 7 successful transfers, got %d", successes)
	}
	senderAcc, _ := repo.FindAccountByID(ctx, sender.ID)
	if !senderAcc.Balance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected remainder 30, got %s", senderAcc.Balance)
	}
	if !repo.TotalBalance().Equal(totalBefore) {
		t.Fatalf("money was created or destroyed: before %s, after %s", totalBefore, repo.TotalBalance())
	}
}

func TestCreateAccountOnePerUser(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := repo.CreateAccount(ctx, userID, domain.AccountSavings, decimal.NewFromInt(50_000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := repo.CreateAccount(ctx, userID, domain.AccountCurrent, decimal.NewFromInt(50_000))
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestCreateUserDuplicateEmailCaseInsensitive(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, &domain.User{Email: "Alice@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := repo.CreateUser(ctx, &domain.User{Email: "alice@EXAMPLE.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	base := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)
	current := base
	repo := NewMemoryRepository(func() time.Time { return current })
	ctx := context.Background()

	sender, _ := repo.CreateAccount(ctx, uuid.New(), domain.AccountSavings, decimal.NewFromInt(50_000))
	receiver, _ := repo.CreateAccount(ctx, uuid.New(), domain.AccountSavings, decimal.NewFromInt(50_000))
	repo.SetBalance(sender.ID, decimal.NewFromInt(1_000))

	var ids []string
	for i := 0; i < 3; i++ {
		current = base.Add(time.Duration(i) * time.Second)
		record, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(10), domain.Transaction{Status: domain.StatusCompleted})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, record.ID)
	}

	txns, err := repo.ListTransactionsForAccount(ctx, sender.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txns))
	}
	for i := range txns {
		if txns[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("expected newest first ordering, got %v", []string{txns[0].ID, txns[1].ID, txns[2].ID})
		}
	}
}

func TestListSentTransactionsExcludesReceived(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()
	repo.SetBalance(receiver.ID, decimal.NewFromInt(500))

	if _, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), domain.Transaction{Status: domain.StatusCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := repo.ApplyTransfer(ctx, receiver.ID, sender.ID, decimal.NewFromInt(50), domain.Transaction{Status: domain.StatusCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, _ := repo.ListSentTransactions(ctx, sender.ID, 0)
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent transaction, got %d", len(sent))
	}
	all, _ := repo.ListTransactionsForAccount(ctx, sender.ID)
	if len(all) != 2 {
		t.Fatalf("expected 2 transactions either way, got %d", len(all))
	}
}

func TestListSentTransactionsHonorsLimit(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(10), domain.Transaction{Status: domain.StatusCompleted}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sent, err := repo.ListSentTransactions(ctx, sender.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 3 {
		t.Fatalf("expected the listing capped at 3, got %d", len(sent))
	}
}

func TestSumCompletedSince(t *testing.T) {
	noon := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)
	current := noon
	repo := NewMemoryRepository(func() time.Time { return current })
	ctx := context.Background()

	sender, _ := repo.CreateAccount(ctx, uuid.New(), domain.AccountSavings, decimal.NewFromInt(50_000))
	receiver, _ := repo.CreateAccount(ctx, uuid.New(), domain.AccountSavings, decimal.NewFromInt(50_000))
	repo.SetBalance(sender.ID, decimal.NewFromInt(10_000))
	repo.SetBalance(receiver.ID, decimal.NewFromInt(10_000))

	transfer := func(from, to uuid.UUID, amount int64, status domain.TransactionStatus, at time.Time) {
		t.Helper()
		current = at
		if _, _, err := repo.ApplyTransfer(ctx, from, to, decimal.NewFromInt(amount), domain.Transaction{Status: status}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	transfer(sender.ID, receiver.ID, 5_000, domain.StatusCompleted, midnight.Add(-time.Hour)) // yesterday
	transfer(sender.ID, receiver.ID, 50, domain.StatusCompleted, midnight)                    // boundary counts
	transfer(sender.ID, receiver.ID, 100, domain.StatusCompleted, noon.Add(-2*time.Hour))
	transfer(sender.ID, receiver.ID, 999, domain.StatusFailed, noon.Add(-time.Hour))
	transfer(receiver.ID, sender.ID, 777, domain.StatusCompleted, noon.Add(-time.Hour)) // other direction

	got, err := repo.SumCompletedSince(ctx, sender.ID, midnight)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected 150 completed since midnight, got %s", got)
	}
}

func TestApplyTransferRegeneratesCollidingID(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()

	first, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), domain.Transaction{Status: domain.StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A record arriving with an id already on the ledger gets a fresh one
	// instead of failing the transfer.
	second, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), domain.Transaction{
		ID:     first.ID,
		Status: domain.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("colliding transaction ids must be regenerated: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a regenerated transaction id")
	}
	txns, _ := repo.ListSentTransactions(ctx, sender.ID, 0)
	if len(txns) != 2 {
		t.Fatalf("expected both transfers recorded, got %d", len(txns))
	}
}

func TestFraudAlertSweepSupport(t *testing.T) {
	repo, sender, receiver := newSeededRepo(t)
	ctx := context.Background()
	repo.SetBalance(sender.ID, decimal.NewFromInt(100_000))

	record, _, err := repo.ApplyTransfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(20_000), domain.Transaction{
		Status:     domain.StatusCompleted,
		Flagged:    true,
		FraudScore: 0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := repo.ListFlaggedTransactionsWithoutAlert(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != record.ID {
		t.Fatalf("expected the flagged transaction to await an alert, got %v", pending)
	}

	alert := &domain.FraudAlert{
		TransactionID: record.ID,
		Severity:      domain.SeverityCritical,
		FraudScore:    0.9,
		Status:        domain.ReviewPending,
	}
	if err := repo.CreateFraudAlert(ctx, alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Creating the same alert again is a no-op, not an error.
	if err := repo.CreateFraudAlert(ctx, alert); err != nil {
		t.Fatalf("alert creation must be idempotent: %v", err)
	}

	pending, _ = repo.ListFlaggedTransactionsWithoutAlert(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending alerts after creation, got %d", len(pending))
	}
}

func TestAuditLogFiltering(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	entries := []domain.AuditLogEntry{
		{UserID: &alice, Action: domain.ActionLogin, Status: "success"},
		{UserID: &alice, Action: domain.ActionTransfer, Status: "success"},
		{UserID: &bob, Action: domain.ActionLogin, Status: "success"},
		{UserID: nil, Action: domain.ActionFailedLogin, Status: "failed"},
	}
	for i := range entries {
		if err := repo.AppendAuditLog(ctx, &entries[i]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, _ := repo.ListAuditLogs(ctx, AuditFilter{UserID: &alice})
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries for alice, got %d", len(logs))
	}
	logs, _ = repo.ListAuditLogs(ctx, AuditFilter{Action: domain.ActionLogin})
	if len(logs) != 2 {
		t.Fatalf("expected 2 login entries, got %d", len(logs))
	}
	logs, _ = repo.ListAuditLogs(ctx, AuditFilter{UserID: &bob, Action: domain.ActionTransfer})
	if len(logs) != 0 {
		t.Fatalf("expected no transfer entries for bob, got %d", len(logs))
	}
}

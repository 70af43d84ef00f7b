package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

// MemoryRepository is a dependency-free Repository used by tests and local
// runs. A single mutex serializes every state change, so the transfer unit is
// atomic and balance invariants hold under arbitrary interleavings — the same
// guarantee the PostgreSQL implementation gets from row locks.
type MemoryRepository struct {
	mu sync.Mutex

	users     map[uuid.UUID]*domain.User
	byEmail   map[string]uuid.UUID
	accounts  map[uuid.UUID]*domain.Account
	byNumber  map[string]uuid.UUID
	byOwner   map[uuid.UUID]uuid.UUID
	txns      []domain.Transaction
	txnIDs    map[string]struct{}
	alerts    map[string]domain.FraudAlert
	auditLogs []domain.AuditLogEntry

	now Clock
}

// NewMemoryRepository creates an empty in-memory store. A nil clock defaults
// to time.Now.
func NewMemoryRepository(now Clock) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		users:    make(map[uuid.UUID]*domain.User),
		byEmail:  make(map[string]uuid.UUID),
		accounts: make(map[uuid.UUID]*domain.Account),
		byNumber: make(map[string]uuid.UUID),
		byOwner:  make(map[uuid.UUID]uuid.UUID),
		txnIDs:   make(map[string]struct{}),
		alerts:   make(map[string]domain.FraudAlert),
		now:      now,
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = r.now().UTC()
	cp := *user
	r.users[user.ID] = &cp
	r.byEmail[key] = user.ID
	return nil
}

func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *MemoryRepository) FindUserByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) CreateAccount(_ context.Context, userID uuid.UUID, accountType domain.AccountType, dailyLimit decimal.Decimal) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOwner[userID]; exists {
		return nil, ErrDuplicateAccount
	}
	number := domain.NewAccountNumber()
	for {
		if _, taken := r.byNumber[number]; !taken {
			break
		}
		number = domain.NewAccountNumber()
	}
	now := r.now().UTC()
	account := &domain.Account{
		ID:         uuid.New(),
		UserID:     userID,
		Number:     number,
		Type:       accountType,
		Balance:    decimal.Zero,
		DailyLimit: dailyLimit,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.accounts[account.ID] = account
	r.byNumber[number] = account.ID
	r.byOwner[userID] = account.ID
	cp := *account
	return &cp, nil
}

// SetBalance is a test seam for administrative balance adjustments.
func (r *MemoryRepository) SetBalance(accountID uuid.UUID, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok {
		a.Balance = balance
	}
}

func (r *MemoryRepository) FindAccountByUserID(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOwner[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *r.accounts[id]
	return &cp, nil
}

func (r *MemoryRepository) FindAccountByNumber(_ context.Context, number string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byNumber[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *r.accounts[id]
	return &cp, nil
}

func (r *MemoryRepository) FindAccountByID(_ context.Context, accountID uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) DeactivateAccount(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Active = false
	a.UpdatedAt = r.now().UTC()
	return nil
}

// ApplyTransfer performs the whole debit/credit/record unit inside one
// critical section; a failed validation leaves no state change behind.
func (r *MemoryRepository) ApplyTransfer(_ context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok1 := r.accounts[senderID]
	receiver, ok2 := r.accounts[receiverID]
	if !ok1 || !ok2 {
		return nil, decimal.Zero, ErrAccountNotFound
	}
	if !sender.Active || !receiver.Active {
		return nil, decimal.Zero, ErrAccountInactive
	}
	if sender.Balance.LessThan(amount) {
		return nil, decimal.Zero, ErrInsufficientFunds
	}

	now := r.now().UTC()
	if record.ID == "" {
		record.ID = domain.NewTransactionID(now)
	}
	for {
		if _, taken := r.txnIDs[record.ID]; !taken {
			break
		}
		record.ID = domain.NewTransactionID(now)
	}

	sender.Balance = sender.Balance.Sub(amount)
	receiver.Balance = receiver.Balance.Add(amount)
	sender.UpdatedAt = now
	receiver.UpdatedAt = now

	record.SenderAccountID = senderID
	record.ReceiverAccountID = receiverID
	record.Amount = amount
	record.CreatedAt = now
	record.UpdatedAt = now
	r.txns = append(r.txns, record)
	r.txnIDs[record.ID] = struct{}{}

	return &record, sender.Balance, nil
}

// listTransactions walks the append-only log in reverse so results come back
// newest first even when CreatedAt ties within the same second.
func (r *MemoryRepository) listTransactions(match func(domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	for i := len(r.txns) - 1; i >= 0; i-- {
		if match(r.txns[i]) {
			out = append(out, r.txns[i])
		}
	}
	return out
}

func (r *MemoryRepository) ListTransactionsForAccount(_ context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listTransactions(func(t domain.Transaction) bool {
		return t.SenderAccountID == accountID || t.ReceiverAccountID == accountID
	}), nil
}

func (r *MemoryRepository) ListSentTransactions(_ context.Context, senderAccountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.listTransactions(func(t domain.Transaction) bool {
		return t.SenderAccountID == senderAccountID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) SumCompletedSince(_ context.Context, senderAccountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, t := range r.txns {
		if t.SenderAccountID != senderAccountID || t.Status != domain.StatusCompleted {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (r *MemoryRepository) ListFlaggedTransactions(_ context.Context) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listTransactions(func(t domain.Transaction) bool { return t.Flagged }), nil
}

func (r *MemoryRepository) CreateFraudAlert(_ context.Context, alert *domain.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.alerts[alert.TransactionID]; exists {
		return nil
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	alert.CreatedAt = r.now().UTC()
	r.alerts[alert.TransactionID] = *alert
	return nil
}

func (r *MemoryRepository) ListFlaggedTransactionsWithoutAlert(_ context.Context, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Transaction
	for _, t := range r.txns {
		if !t.Flagged {
			continue
		}
		if _, has := r.alerts[t.ID]; has {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) AppendAuditLog(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	r.auditLogs = append(r.auditLogs, *entry)
	return nil
}

func (r *MemoryRepository) ListAuditLogs(_ context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var out []domain.AuditLogEntry
	for i := len(r.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.auditLogs[i]
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// TotalBalance sums every account balance; tests use it to assert the
// conservation invariant across transfer sequences.
func (r *MemoryRepository) TotalBalance() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, a := range r.accounts {
		total = total.Add(a.Balance)
	}
	return total
}

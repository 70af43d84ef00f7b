/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * persistence. The transfer coordinator, audit recorder and sweep jobs depend
 * only on this interface, so the PostgreSQL implementation can be swapped for
 * the in-memory one in tests and dependency-free local runs.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateAccount  = errors.New("user already has an account")
)

// AuditFilter narrows audit-log listings. Zero values mean "no filter".
type AuditFilter struct {
	UserID *uuid.UUID
	Action domain.AuditAction
	Limit  int
}

// Repository defines the set of methods for interacting with ledger state.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Accounts
	CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType, dailyLimit decimal.Decimal) (*domain.Account, error)
	FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, accountID uuid.UUID) error

	// Transfers. ApplyTransfer is the single atomic unit: it locks both
	// accounts, re-validates the sender balance under lock, moves the money
	// and inserts the transaction record, or does nothing at all. It returns
	// the committed record and the sender's post-debit balance.
	ApplyTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error)
	ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	// ListSentTransactions returns the sender-side history, newest first,
	// capped at limit entries when limit is positive.
	ListSentTransactions(ctx context.Context, senderAccountID uuid.UUID, limit int) ([]domain.Transaction, error)
	// SumCompletedSince aggregates the sender's completed outgoing volume
	// with CreatedAt at or after since.
	SumCompletedSince(ctx context.Context, senderAccountID uuid.UUID, since time.Time) (decimal.Decimal, error)
	ListFlaggedTransactions(ctx context.Context) ([]domain.Transaction, error)

	// Fraud alerts
	CreateFraudAlert(ctx context.Context, alert *domain.FraudAlert) error
	ListFlaggedTransactionsWithoutAlert(ctx context.Context, limit int) ([]domain.Transaction, error)

	// Audit trail (append-only)
	AppendAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error)
}

// Clock is the time source injected into stores so tests can pin "now".
type Clock func() time.Time

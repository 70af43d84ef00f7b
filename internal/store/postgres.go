/**
 * @description
 * PostgreSQL implementation of the `Repository` interface, built on pgx.
 * All money movement goes through ApplyTransfer, which locks the two account
 * rows in ascending UUID order (preventing lock-order deadlocks between
 * concurrent opposing transfers), re-validates the sender balance under the
 * lock, and applies both balance updates plus the transaction insert in a
 * single database transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transaction support.
 * - github.com/shopspring/decimal: numeric columns are scanned through the
 *   pgx-shopspring-decimal codec registered on the pool at startup.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

const uniqueViolation = "23505"

// PostgresRepository is the pgx-backed Repository implementation.
type PostgresRepository struct {
	db  *pgxpool.Pool
	now Clock
}

// NewPostgresRepository creates a new PostgresRepository. A nil clock
// defaults to time.Now.
func NewPostgresRepository(db *pgxpool.Pool, now Clock) *PostgresRepository {
	if now == nil {
		now = time.Now
	}
	return &PostgresRepository{db: db, now: now}
}

// EnsureSchema creates the ledger tables if they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'customer',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			account_number TEXT NOT NULL UNIQUE,
			account_type TEXT NOT NULL DEFAULT 'savings',
			balance NUMERIC(15,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			daily_limit NUMERIC(10,2) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS accounts_user_id_key ON accounts(user_id);
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			sender_account_id UUID NOT NULL REFERENCES accounts(id),
			receiver_account_id UUID NOT NULL REFERENCES accounts(id),
			amount NUMERIC(15,2) NOT NULL CHECK (amount > 0),
			description TEXT,
			status TEXT NOT NULL DEFAULT 'completed',
			flagged BOOLEAN NOT NULL DEFAULT FALSE,
			fraud_score NUMERIC(3,2),
			fraud_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS transactions_sender_created_idx
			ON transactions(sender_account_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS transactions_receiver_idx
			ON transactions(receiver_account_id);
		CREATE TABLE IF NOT EXISTS fraud_alerts (
			id UUID PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions(id),
			severity TEXT NOT NULL DEFAULT 'medium',
			detection_reason TEXT NOT NULL,
			fraud_score NUMERIC(3,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reviewed_by UUID,
			review_notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			user_id UUID,
			action TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			details JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'success',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS audit_logs_user_action_idx ON audit_logs(user_id, action);
		CREATE INDEX IF NOT EXISTS audit_logs_created_idx ON audit_logs(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = r.now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// FindUserByEmail retrieves a user by email address.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE lower(email) = lower($1)`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user by primary key.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateAccount provisions a new account for userID. The generated account
// number is retried on collision against the existing set; one account per
// user is enforced by the unique index on user_id.
func (r *PostgresRepository) CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType, dailyLimit decimal.Decimal) (*domain.Account, error) {
	now := r.now().UTC()
	account := &domain.Account{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       accountType,
		Balance:    decimal.Zero,
		DailyLimit: dailyLimit,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for attempt := 0; attempt < 5; attempt++ {
		account.Number = domain.NewAccountNumber()
		_, err := r.db.Exec(ctx,
			`INSERT INTO accounts (id, user_id, account_number, account_type, balance, daily_limit, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			account.ID, account.UserID, account.Number, account.Type,
			account.Balance, account.DailyLimit, account.Active, account.CreatedAt, account.UpdatedAt,
		)
		if err == nil {
			return account, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "accounts_user_id_key" {
				return nil, ErrDuplicateAccount
			}
			continue // account number collision, regenerate
		}
		return nil, err
	}
	return nil, errors.New("exhausted account number generation attempts")
}

const accountColumns = `id, user_id, account_number, account_type, balance, daily_limit, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Number, &a.Type, &a.Balance, &a.DailyLimit, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccountByUserID retrieves the account owned by userID.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
}

// FindAccountByNumber retrieves an account by its public number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

// FindAccountByID retrieves an account by primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// DeactivateAccount flips the active flag; accounts are never hard-deleted.
func (r *PostgresRepository) DeactivateAccount(ctx context.Context, accountID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ApplyTransfer executes the atomic debit/credit/insert unit.
//
// Locks are acquired on both account rows in ascending UUID order so two
// opposing transfers between the same pair cannot deadlock. The sender
// balance is re-validated after the lock is held: the pre-commit check done
// by the coordinator may be stale by the time we get here.
func (r *PostgresRepository) ApplyTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to begin transfer transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	firstID, secondID := senderID, receiverID
	if firstID.String() > secondID.String() {
		firstID, secondID = secondID, firstID
	}

	type lockedAccount struct {
		balance decimal.Decimal
		active  bool
	}
	locked := map[uuid.UUID]lockedAccount{}
	for _, id := range []uuid.UUID{firstID, secondID} {
		var la lockedAccount
		err := tx.QueryRow(ctx,
			`SELECT balance, is_active FROM accounts WHERE id = $1 FOR UPDATE`, id,
		).Scan(&la.balance, &la.active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, decimal.Zero, ErrAccountNotFound
			}
			return nil, decimal.Zero, fmt.Errorf("failed to lock account %s: %w", id, err)
		}
		locked[id] = la
	}

	if !locked[senderID].active || !locked[receiverID].active {
		return nil, decimal.Zero, ErrAccountInactive
	}
	if locked[senderID].balance.LessThan(amount) {
		return nil, decimal.Zero, ErrInsufficientFunds
	}

	// The conditional predicate repeats the balance check so the update is
	// atomic even against administrative adjustments outside this code path.
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2 AND balance >= $1`,
		amount, senderID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to debit sender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, decimal.Zero, ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		amount, receiverID); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to credit receiver: %w", err)
	}

	now := r.now().UTC()
	record.SenderAccountID = senderID
	record.ReceiverAccountID = receiverID
	record.Amount = amount
	record.CreatedAt = now
	record.UpdatedAt = now

	// Each insert attempt runs inside its own savepoint: a unique violation
	// aborts only the savepoint, so the enclosing transaction stays usable
	// for the retry with a regenerated id.
	inserted := false
	var insertErr error
	for attempt := 0; attempt < 3 && !inserted; attempt++ {
		if record.ID == "" || attempt > 0 {
			record.ID = domain.NewTransactionID(now)
		}
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("failed to open savepoint: %w", err)
		}
		_, insertErr = sp.Exec(ctx,
			`INSERT INTO transactions (id, sender_account_id, receiver_account_id, amount, description, status, flagged, fraud_score, fraud_reason, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, 0), NULLIF($9, ''), $10, $11)`,
			record.ID, record.SenderAccountID, record.ReceiverAccountID, record.Amount,
			record.Description, record.Status, record.Flagged, record.FraudScore, record.FraudReason,
			record.CreatedAt, record.UpdatedAt,
		)
		if insertErr == nil {
			if err := sp.Commit(ctx); err != nil {
				return nil, decimal.Zero, fmt.Errorf("failed to release savepoint: %w", err)
			}
			inserted = true
			break
		}
		_ = sp.Rollback(ctx)
		if !isUniqueViolation(insertErr) {
			return nil, decimal.Zero, fmt.Errorf("failed to insert transaction record: %w", insertErr)
		}
	}
	if !inserted {
		return nil, decimal.Zero, fmt.Errorf("failed to insert transaction record: %w", insertErr)
	}

	var senderBalance decimal.Decimal
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, senderID).Scan(&senderBalance); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to read post-debit balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to commit transfer: %w", err)
	}
	return &record, senderBalance, nil
}

const transactionColumns = `id, sender_account_id, receiver_account_id, amount,
	COALESCE(description, ''), status, flagged, COALESCE(fraud_score, 0),
	COALESCE(fraud_reason, ''), created_at, updated_at`

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &t.Amount,
			&t.Description, &t.Status, &t.Flagged, &t.FraudScore, &t.FraudReason,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactionsForAccount returns every transaction the account sent or
// received, newest first.
func (r *PostgresRepository) ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE sender_account_id = $1 OR receiver_account_id = $1
		 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListSentTransactions returns the sender-side history, newest first. The
// fraud engine consumes this slice; it passes a positive limit so an old,
// busy account does not pull its whole ledger into memory.
func (r *PostgresRepository) ListSentTransactions(ctx context.Context, senderAccountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		 WHERE sender_account_id = $1
		 ORDER BY created_at DESC`
	args := []any{senderAccountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// SumCompletedSince aggregates the sender's completed outgoing volume since
// the given instant. The daily-limit check and the allowance endpoint use it
// instead of loading the transaction history.
func (r *PostgresRepository) SumCompletedSince(ctx context.Context, senderAccountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE sender_account_id = $1 AND status = $2 AND created_at >= $3`,
		senderAccountID, domain.StatusCompleted, since,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ListFlaggedTransactions returns all flagged transactions, newest first.
func (r *PostgresRepository) ListFlaggedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE flagged = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// CreateFraudAlert inserts a review record for a flagged transaction.
// Duplicate alerts for the same transaction are ignored.
func (r *PostgresRepository) CreateFraudAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	alert.CreatedAt = r.now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO fraud_alerts (id, transaction_id, severity, detection_reason, fraud_score, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		alert.ID, alert.TransactionID, alert.Severity, alert.DetectionReason,
		alert.FraudScore, alert.Status, alert.CreatedAt,
	)
	return err
}

// ListFlaggedTransactionsWithoutAlert returns flagged transactions that have
// no review alert yet, oldest first, so the sweep job can open reviews.
func (r *PostgresRepository) ListFlaggedTransactionsWithoutAlert(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions t
		 WHERE t.flagged = TRUE
		   AND NOT EXISTS (SELECT 1 FROM fraud_alerts a WHERE a.transaction_id = t.id)
		 ORDER BY t.created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// AppendAuditLog inserts an audit entry. The table is append-only.
func (r *PostgresRepository) AppendAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, ip_address, user_agent, details, status, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`,
		entry.ID, entry.UserID, entry.Action, entry.IPAddress, entry.UserAgent,
		payload, entry.Status, entry.CreatedAt,
	)
	return err
}

// ListAuditLogs returns audit entries newest first, optionally filtered by
// actor and action kind.
func (r *PostgresRepository) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, action, COALESCE(ip_address, ''), COALESCE(user_agent, ''), details, status, created_at
		 FROM audit_logs
		 WHERE ($1::uuid IS NULL OR user_id = $1)
		   AND ($2 = '' OR action = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		filter.UserID, string(filter.Action), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.IPAddress, &e.UserAgent, &payload, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

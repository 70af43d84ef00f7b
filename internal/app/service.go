/**
 * @description
 * This file contains the core business logic of the ledger service. The
 * `Service` struct is the transfer coordinator: it validates a transfer
 * request, consults the limit policy and the fraud rule engine, hands the
 * atomic balance mutation to the store, and emits audit and broker events.
 *
 * Key properties:
 * - Validation failures abort before any mutation; the store's ApplyTransfer
 *   is the single all-or-nothing unit, and it re-validates the balance under
 *   its own locks because the checks here may be stale by commit time.
 * - Audit records and event publishes are best-effort and never affect the
 *   transfer outcome.
 * - Storage calls are bounded by a configured timeout and surface as
 *   ErrStorageUnavailable; anything unexpected is logged and surfaced as
 *   ErrUnknown without leaking internals.
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/corebank/ledger-service/internal/fraud"
	"github.com/corebank/ledger-service/internal/limits"
	"github.com/corebank/ledger-service/internal/store"
	"github.com/corebank/ledger-service/pkg/events"
)

// AuditRecorder is the fire-and-forget audit sink consumed by the service;
// audit.Recorder satisfies it.
type AuditRecorder interface {
	Record(userID *uuid.UUID, action domain.AuditAction, ip, userAgent, status string, details map[string]any)
}

// Options are the coordinator's tunables.
type Options struct {
	MaxTransferAmount decimal.Decimal
	DefaultDailyLimit decimal.Decimal
	StorageTimeout    time.Duration
	JWTSecret         string
	TokenTTL          time.Duration
	Now               func() time.Time
}

// Service provides the core business logic for transfers, account
// provisioning and the role-gated read surfaces.
type Service struct {
	repo      store.Repository
	engine    *fraud.Engine
	limiter   RateLimiter
	recorder  AuditRecorder
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
}

// NewService wires the coordinator. limiter, recorder and publisher may be
// nil, in which case the corresponding side effect is skipped.
func NewService(repo store.Repository, engine *fraud.Engine, limiter RateLimiter, recorder AuditRecorder, publisher events.Publisher, logger *zap.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		limiter:   limiter,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
	}
}

// recentHistoryLimit caps how much sender history the rule engine sees. The
// velocity window is ten minutes and the deviation average stabilizes well
// within this many transactions.
const recentHistoryLimit = 100

// RequestMeta carries request attribution for the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// TransferRequest is the coordinator's input contract.
type TransferRequest struct {
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Description           string
}

// TransferResult is returned on a committed transfer.
type TransferResult struct {
	TransactionID    string
	Status           string
	Amount           decimal.Decimal
	SenderAccount    string
	ReceiverAccount  string
	SenderNewBalance decimal.Decimal
	Timestamp        time.Time
	Flagged          bool
	FraudScore       *float64 // nil when no rule contributed
}

// ExecuteTransfer moves amount from the caller's account to the account
// identified by number, as one atomic unit. See the package comment for the
// failure semantics.
func (s *Service) ExecuteTransfer(ctx context.Context, callerID uuid.UUID, req TransferRequest, meta RequestMeta) (*TransferResult, error) {
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, "transfer:"+callerID.String())
		if err != nil {
			// Fail open: losing the throttle is preferable to losing transfers.
			s.logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
		} else if !allowed {
			s.logger.Info("transfer rate limited",
				zap.String("user_id", callerID.String()),
				zap.Duration("retry_after", retryAfter))
			return nil, domain.ErrRateLimited
		}
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) || req.Amount.GreaterThan(s.opts.MaxTransferAmount) {
		return nil, domain.ErrInvalidAmount
	}

	sender, err := s.callerAccount(ctx, callerID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storageContext(ctx)
	receiver, err := s.repo.FindAccountByNumber(sctx, req.ReceiverAccountNumber)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, s.storageErr("find receiver account", err)
	}
	if !receiver.Active {
		return nil, domain.ErrUnknownAccount
	}
	if sender.ID == receiver.ID {
		return nil, domain.ErrSelfTransfer
	}
	if sender.Balance.LessThan(req.Amount) {
		return nil, domain.ErrInsufficientBalance
	}

	now := s.opts.Now()
	sctx, cancel = s.storageContext(ctx)
	spentToday, err := s.repo.SumCompletedSince(sctx, sender.ID, limits.StartOfDay(now))
	cancel()
	if err != nil {
		return nil, s.storageErr("sum daily spend", err)
	}
	if limits.WouldExceed(*sender, spentToday, req.Amount) {
		return nil, domain.ErrDailyLimitExceeded
	}

	sctx, cancel = s.storageContext(ctx)
	history, err := s.repo.ListSentTransactions(sctx, sender.ID, recentHistoryLimit)
	cancel()
	if err != nil {
		return nil, s.storageErr("load recent history", err)
	}

	pending := domain.Transaction{
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Amount:            req.Amount,
		CreatedAt:         now,
	}
	verdict := s.engine.Score(pending, history, now)

	record := domain.Transaction{
		Description: req.Description,
		Status:      domain.StatusCompleted,
		Flagged:     verdict.Flagged,
		FraudScore:  verdict.Score,
	}
	if verdict.Score > 0 {
		record.FraudReason = verdict.Reason
	}

	sctx, cancel = s.storageContext(ctx)
	committed, senderBalance, err := s.repo.ApplyTransfer(sctx, sender.ID, receiver.ID, req.Amount, record)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			return nil, domain.ErrInsufficientBalance
		case errors.Is(err, store.ErrAccountNotFound), errors.Is(err, store.ErrAccountInactive):
			return nil, domain.ErrUnknownAccount
		default:
			return nil, s.storageErr("apply transfer", err)
		}
	}

	s.audit(&callerID, domain.ActionTransfer, meta, "success", map[string]any{
		"transaction_id":   committed.ID,
		"amount":           committed.Amount.String(),
		"receiver_account": receiver.Number,
		"flagged":          committed.Flagged,
	})
	s.publishTransferEvents(ctx, committed, sender.Number, receiver.Number)

	result := &TransferResult{
		TransactionID:    committed.ID,
		Status:           "success",
		Amount:           committed.Amount,
		SenderAccount:    sender.Number,
		ReceiverAccount:  receiver.Number,
		SenderNewBalance: senderBalance,
		Timestamp:        committed.CreatedAt,
		Flagged:          committed.Flagged,
	}
	if committed.FraudScore > 0 {
		score := committed.FraudScore
		result.FraudScore = &score
	}
	return result, nil
}

// Register provisions a new customer: a user row plus their account. Account
// creation is an explicit call into the store rather than a side effect of
// user creation, so the two lifecycles stay decoupled.
func (s *Service) Register(ctx context.Context, email, password string, accountType domain.AccountType, meta RequestMeta) (*domain.User, *domain.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, s.storageErr("hash password", err)
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleCustomer,
	}
	sctx, cancel := s.storageContext(ctx)
	err = s.repo.CreateUser(sctx, user)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, nil, domain.ErrEmailTaken
		}
		return nil, nil, s.storageErr("create user", err)
	}

	account, err := s.CreateAccount(ctx, user.ID, accountType, meta)
	if err != nil {
		return nil, nil, err
	}

	s.audit(&user.ID, domain.ActionRegister, meta, "success", map[string]any{
		"email": email,
	})
	return user, account, nil
}

// CreateAccount provisions an account for userID with the configured default
// daily limit. One account per customer.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType, meta RequestMeta) (*domain.Account, error) {
	if accountType == "" {
		accountType = domain.AccountSavings
	}
	if !domain.ValidAccountType(accountType) {
		return nil, domain.ErrInvalidAccountType
	}
	sctx, cancel := s.storageContext(ctx)
	account, err := s.repo.CreateAccount(sctx, userID, accountType, s.opts.DefaultDailyLimit)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			return nil, domain.ErrAccountExists
		}
		return nil, s.storageErr("create account", err)
	}
	s.audit(&userID, domain.ActionAccountCreate, meta, "success", map[string]any{
		"account_number": account.Number,
		"account_type":   string(account.Type),
	})
	return account, nil
}

// Login verifies credentials and issues an HS256 token carrying the caller's
// id and role. Both successful and failed attempts are audited.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (string, error) {
	sctx, cancel := s.storageContext(ctx)
	user, err := s.repo.FindUserByEmail(sctx, email)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.audit(nil, domain.ActionFailedLogin, meta, "failed", map[string]any{"email": email})
			return "", domain.ErrInvalidCredentials
		}
		return "", s.storageErr("find user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit(&user.ID, domain.ActionFailedLogin, meta, "failed", nil)
		return "", domain.ErrInvalidCredentials
	}

	now := s.opts.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.opts.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		s.logger.Error("failed to sign token", zap.Error(err))
		return "", domain.ErrUnknown
	}

	s.audit(&user.ID, domain.ActionLogin, meta, "success", nil)
	return signed, nil
}

// Profile returns the caller's user record alongside their account, for the
// self-service account view.
func (s *Service) Profile(ctx context.Context, callerID uuid.UUID) (*domain.User, *domain.Account, error) {
	sctx, cancel := s.storageContext(ctx)
	user, err := s.repo.FindUserByID(sctx, callerID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, domain.ErrNoAccount
		}
		return nil, nil, s.storageErr("find user", err)
	}
	account, err := s.callerAccount(ctx, callerID)
	if err != nil {
		return nil, nil, err
	}
	return user, account, nil
}

// TransactionHistory returns everything the caller's account sent or
// received, newest first.
func (s *Service) TransactionHistory(ctx context.Context, callerID uuid.UUID) ([]domain.Transaction, error) {
	account, err := s.callerAccount(ctx, callerID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	txns, err := s.repo.ListTransactionsForAccount(sctx, account.ID)
	if err != nil {
		return nil, s.storageErr("list transactions", err)
	}
	return txns, nil
}

// FlaggedTransactions is gated to admin/auditor roles; other callers get an
// empty result set, not an error.
func (s *Service) FlaggedTransactions(ctx context.Context, role domain.Role) ([]domain.Transaction, error) {
	if !role.CanViewSensitiveListings() {
		return []domain.Transaction{}, nil
	}
	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	txns, err := s.repo.ListFlaggedTransactions(sctx)
	if err != nil {
		return nil, s.storageErr("list flagged transactions", err)
	}
	return txns, nil
}

// AuditLogs is gated like FlaggedTransactions.
func (s *Service) AuditLogs(ctx context.Context, role domain.Role, filter store.AuditFilter) ([]domain.AuditLogEntry, error) {
	if !role.CanViewSensitiveListings() {
		return []domain.AuditLogEntry{}, nil
	}
	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	logs, err := s.repo.ListAuditLogs(sctx, filter)
	if err != nil {
		return nil, s.storageErr("list audit logs", err)
	}
	return logs, nil
}

// RemainingDailyAllowance reports how much of today's transfer ceiling the
// caller has left.
func (s *Service) RemainingDailyAllowance(ctx context.Context, callerID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.callerAccount(ctx, callerID)
	if err != nil {
		return decimal.Zero, err
	}
	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	spentToday, err := s.repo.SumCompletedSince(sctx, account.ID, limits.StartOfDay(s.opts.Now()))
	if err != nil {
		return decimal.Zero, s.storageErr("sum daily spend", err)
	}
	return limits.RemainingDailyAllowance(*account, spentToday), nil
}

func (s *Service) callerAccount(ctx context.Context, callerID uuid.UUID) (*domain.Account, error) {
	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	account, err := s.repo.FindAccountByUserID(sctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.ErrNoAccount
		}
		return nil, s.storageErr("find caller account", err)
	}
	if !account.Active {
		return nil, domain.ErrNoAccount
	}
	return account, nil
}

func (s *Service) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StorageTimeout)
}

// storageErr classifies unexpected store failures: timeouts become the
// retryable ErrStorageUnavailable, everything else is logged with context and
// surfaced as ErrUnknown.
func (s *Service) storageErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Warn("storage operation timed out", zap.String("op", op), zap.Error(err))
		return domain.ErrStorageUnavailable
	}
	s.logger.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return domain.ErrUnknown
}

func (s *Service) audit(userID *uuid.UUID, action domain.AuditAction, meta RequestMeta, status string, details map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(userID, action, meta.IP, meta.UserAgent, status, details)
}

func (s *Service) publishTransferEvents(ctx context.Context, tx *domain.Transaction, senderNumber, receiverNumber string) {
	if s.publisher == nil {
		return
	}
	evt := events.TransferCompletedEvent{
		TransactionID:   tx.ID,
		SenderAccount:   senderNumber,
		ReceiverAccount: receiverNumber,
		Amount:          tx.Amount.String(),
		Flagged:         tx.Flagged,
		Timestamp:       tx.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, events.RouteTransferCompleted, evt); err != nil {
		s.logger.Warn("failed to publish transfer event", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
	if !tx.Flagged {
		return
	}
	flaggedEvt := events.TransactionFlaggedEvent{
		TransactionID: tx.ID,
		FraudScore:    tx.FraudScore,
		FraudReason:   tx.FraudReason,
		Timestamp:     tx.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, events.RouteTransactionFlagged, flaggedEvt); err != nil {
		s.logger.Warn("failed to publish flagged event", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
}

/**
 * @description
 * This file defines the core domain models for the ledger service: accounts,
 * transactions, fraud alerts, audit log entries and users. These structs are
 * shared by the storage layer, the transfer coordinator and the API layer.
 *
 * @notes
 * - Monetary values use `decimal.Decimal` (fixed-point) to avoid floating-point
 *   drift on balances and transfer amounts. Fraud scores stay float64 because
 *   they are probabilities, not money.
 * - Transaction IDs are human-readable (`TXN` + timestamp + random suffix) so
 *   they can be quoted in support tickets and audit trails.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates the supported account products.
type AccountType string

const (
	AccountSavings      AccountType = "savings"
	AccountCurrent      AccountType = "current"
	AccountFixedDeposit AccountType = "fd"
)

// ValidAccountType reports whether t is one of the supported products.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountSavings, AccountCurrent, AccountFixedDeposit:
		return true
	}
	return false
}

// Account is a customer ledger account. Balance is only ever mutated inside
// the store's atomic transfer operation (or an administrative adjustment) and
// is never negative after a committed transfer.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Number     string          `json:"account_number"`
	Type       AccountType     `json:"account_type"`
	Balance    decimal.Decimal `json:"balance"`
	DailyLimit decimal.Decimal `json:"daily_limit"`
	Active     bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TransactionStatus enumerates the lifecycle states of a transfer record.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusFlagged   TransactionStatus = "flagged"
)

// Transaction is the ledger record for one money movement. It is immutable
// after creation except for the status/flag fields, which are set within the
// same atomic operation that creates the row.
type Transaction struct {
	ID                string            `json:"transaction_id"`
	SenderAccountID   uuid.UUID         `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID         `json:"receiver_account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description,omitempty"`
	Status            TransactionStatus `json:"status"`
	Flagged           bool              `json:"flagged"`
	FraudScore        float64           `json:"fraud_score,omitempty"`
	FraudReason       string            `json:"fraud_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// AlertSeverity enumerates fraud-alert severity tiers.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SeverityForScore maps a fraud score onto a review severity tier.
func SeverityForScore(score float64) AlertSeverity {
	switch {
	case score >= 0.9:
		return SeverityCritical
	case score >= 0.8:
		return SeverityHigh
	case score >= 0.7:
		return SeverityMedium
	}
	return SeverityLow
}

// AlertReviewStatus enumerates the manual-review workflow states.
type AlertReviewStatus string

const (
	ReviewPending       AlertReviewStatus = "pending"
	ReviewInvestigating AlertReviewStatus = "investigating"
	ReviewConfirmed     AlertReviewStatus = "confirmed"
	ReviewFalsePositive AlertReviewStatus = "false_positive"
)

// FraudAlert is the manual-review record opened for a flagged transaction.
// One alert per transaction.
type FraudAlert struct {
	ID              uuid.UUID         `json:"id"`
	TransactionID   string            `json:"transaction_id"`
	Severity        AlertSeverity     `json:"severity"`
	DetectionReason string            `json:"detection_reason"`
	FraudScore      float64           `json:"fraud_score"`
	Status          AlertReviewStatus `json:"status"`
	ReviewedBy      *uuid.UUID        `json:"reviewed_by,omitempty"`
	ReviewNotes     string            `json:"review_notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
}

// AuditAction enumerates the recorded action kinds.
type AuditAction string

const (
	ActionLogin         AuditAction = "login"
	ActionFailedLogin   AuditAction = "failed_login"
	ActionRegister      AuditAction = "register"
	ActionTransfer      AuditAction = "transfer"
	ActionAccountCreate AuditAction = "account_create"
	ActionFraudReview   AuditAction = "fraud_review"
)

// AuditLogEntry is an append-only compliance record. Entries are never
// updated or deleted.
type AuditLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"` // nil for system/anonymous actors
	Action    AuditAction    `json:"action"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// Role enumerates caller roles supplied by the identity layer.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleAuditor  Role = "auditor"
)

// CanViewSensitiveListings reports whether the role may read flagged
// transactions and audit logs.
func (r Role) CanViewSensitiveListings() bool {
	return r == RoleAdmin || r == RoleAuditor
}

// User is the minimal identity view the ledger service needs.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

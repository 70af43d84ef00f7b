package fraud

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

var (
	largeAmountThreshold = decimal.NewFromInt(10_000)
	deviationMultiplier  = decimal.NewFromInt(5)
)

const (
	velocityWindow   = 10 * time.Minute
	velocityMaxCount = 5
	offHoursStart    = 22 // exclusive: 23:00-23:59 counts
	offHoursEnd      = 6  // exclusive: 00:00-05:59 counts
)

// LargeAmountRule fires on transfers above the large-amount threshold.
type LargeAmountRule struct{}

func (LargeAmountRule) Name() string { return "large_amount" }

func (LargeAmountRule) Evaluate(tx domain.Transaction, _ []domain.Transaction, _ time.Time) (float64, string, bool) {
	if tx.Amount.GreaterThan(largeAmountThreshold) {
		return 0.9, "Transaction amount exceeds $10,000", true
	}
	return 0, "", false
}

// VelocityRule fires when the sender exceeds velocityMaxCount transactions
// (any status) within the trailing window. The transaction being scored is
// part of the burst, so it counts alongside the history.
type VelocityRule struct{}

func (VelocityRule) Name() string { return "velocity" }

func (VelocityRule) Evaluate(_ domain.Transaction, history []domain.Transaction, now time.Time) (float64, string, bool) {
	cutoff := now.Add(-velocityWindow)
	count := 1
	for _, t := range history {
		if !t.CreatedAt.Before(cutoff) {
			count++
		}
	}
	if count > velocityMaxCount {
		return 0.8, fmt.Sprintf("Multiple transactions in short time (%d in 10 min)", count), true
	}
	return 0, "", false
}

// DeviationRule fires when the amount exceeds five times the sender's
// historical average over completed transactions. Senders with no completed
// history never trigger it.
type DeviationRule struct{}

func (DeviationRule) Name() string { return "deviation" }

func (DeviationRule) Evaluate(tx domain.Transaction, history []domain.Transaction, _ time.Time) (float64, string, bool) {
	sum := decimal.Zero
	count := int64(0)
	for _, t := range history {
		if t.Status == domain.StatusCompleted {
			sum = sum.Add(t.Amount)
			count++
		}
	}
	if count == 0 {
		return 0, "", false
	}
	average := sum.Div(decimal.NewFromInt(count))
	if tx.Amount.GreaterThan(average.Mul(deviationMultiplier)) {
		return 0.7, "Transaction amount 5x higher than user's average", true
	}
	return 0, "", false
}

// OffHoursRule fires on transfers initiated before 06:00 or after 22:00
// local time.
type OffHoursRule struct{}

func (OffHoursRule) Name() string { return "off_hours" }

func (OffHoursRule) Evaluate(_ domain.Transaction, _ []domain.Transaction, now time.Time) (float64, string, bool) {
	hour := now.Hour()
	if hour < offHoursEnd || hour > offHoursStart {
		return 0.5, "Transaction during unusual hours", true
	}
	return 0, "", false
}

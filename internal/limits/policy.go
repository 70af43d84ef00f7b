// Package limits implements the per-account daily transfer ceiling. The
// window is the current calendar day in the supplied instant's location, so
// "today" follows server local time when the coordinator passes time.Now().
// The store aggregates the spend; this package owns the window and the
// comparison.
package limits

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

// RemainingDailyAllowance returns dailyLimit minus today's completed outgoing
// volume. The result can be negative when an administrative limit reduction
// lands after transfers were already made.
func RemainingDailyAllowance(account domain.Account, spentToday decimal.Decimal) decimal.Decimal {
	return account.DailyLimit.Sub(spentToday)
}

// WouldExceed reports whether adding amount to today's completed volume
// crosses the account's daily limit.
func WouldExceed(account domain.Account, spentToday, amount decimal.Decimal) bool {
	return spentToday.Add(amount).GreaterThan(account.DailyLimit)
}

// StartOfDay returns local midnight of t, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package limits

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-service/internal/domain"
)

func accountWithLimit(limit int64) domain.Account {
	return domain.Account{DailyLimit: decimal.NewFromInt(limit)}
}

func TestWouldExceed(t *testing.T) {
	account := accountWithLimit(1_000)
	spent := decimal.NewFromInt(600)

	if WouldExceed(account, spent, decimal.NewFromInt(400)) {
		t.Fatal("spending exactly up to the limit is allowed")
	}
	if !WouldExceed(account, spent, decimal.NewFromInt(401)) {
		t.Fatal("crossing the limit must be rejected")
	}
}

func TestWouldExceedFreshDay(t *testing.T) {
	account := accountWithLimit(1_000)

	// Nothing spent today: the full limit is available in one transfer.
	if WouldExceed(account, decimal.Zero, decimal.NewFromInt(1_000)) {
		t.Fatal("yesterday's spending must not count against today")
	}
}

func TestRemainingDailyAllowance(t *testing.T) {
	account := accountWithLimit(1_000)

	got := RemainingDailyAllowance(account, decimal.NewFromInt(250))
	if !got.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected 750 remaining, got %s", got)
	}
}

func TestRemainingDailyAllowanceCanGoNegative(t *testing.T) {
	account := accountWithLimit(100)

	got := RemainingDailyAllowance(account, decimal.NewFromInt(250))
	if !got.Equal(decimal.NewFromInt(-150)) {
		t.Fatalf("expected -150 after a limit reduction, got %s", got)
	}
}

func TestStartOfDayKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	at := time.Date(2025, time.March, 12, 1, 30, 0, 0, loc)

	midnight := StartOfDay(at)
	if midnight.Hour() != 0 || midnight.Location() != loc {
		t.Fatalf("expected local midnight in the same zone, got %v", midnight)
	}
	if midnight.Day() != 12 {
		t.Fatalf("expected same calendar day, got %v", midnight)
	}
}

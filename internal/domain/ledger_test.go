package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewAccountNumberFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		n := NewAccountNumber()
		if !strings.HasPrefix(n, "ACC") || len(n) != 12 {
			t.Fatalf("unexpected account number format: %q", n)
		}
		seen[n] = struct{}{}
	}
	if len(seen) < 90 {
		t.Fatalf("account numbers look non-random: %d distinct of 100", len(seen))
	}
}

func TestNewTransactionIDEmbedsTimestamp(t *testing.T) {
	at := time.Date(2025, time.March, 12, 9, 30, 45, 0, time.UTC)
	id := NewTransactionID(at)
	if !strings.HasPrefix(id, "TXN20250312093045") {
		t.Fatalf("expected timestamp prefix, got %q", id)
	}
	if len(id) != len("TXN20250312093045")+4 {
		t.Fatalf("expected 4-digit suffix, got %q", id)
	}
}

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  AlertSeverity
	}{
		{0.95, SeverityCritical},
		{0.9, SeverityCritical},
		{0.85, SeverityHigh},
		{0.8, SeverityHigh},
		{0.75, SeverityMedium},
		{0.7, SeverityMedium},
		{0.5, SeverityLow},
	}
	for _, tt := range tests {
		if got := SeverityForScore(tt.score); got != tt.want {
			t.Fatalf("score %v: expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestRoleGating(t *testing.T) {
	if !RoleAdmin.CanViewSensitiveListings() || !RoleAuditor.CanViewSensitiveListings() {
		t.Fatal("admin and auditor can view sensitive listings")
	}
	if RoleCustomer.CanViewSensitiveListings() {
		t.Fatal("customers cannot view sensitive listings")
	}
	if Role("other").CanViewSensitiveListings() {
		t.Fatal("unknown roles get no privileges")
	}
}

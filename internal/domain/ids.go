package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewAccountNumber returns a candidate 12-character account number
// ("ACC" + 9 digits). Global uniqueness is enforced by the store, which
// retries on collision against the active set.
func NewAccountNumber() string {
	return fmt.Sprintf("ACC%09d", rand.IntN(1_000_000_000))
}

// NewTransactionID returns a candidate transaction identifier of the form
// TXN<yyyymmddhhmmss><4 random digits>. The timestamp prefix keeps ids
// roughly monotonic and human-readable; the store regenerates on the rare
// collision within the same second.
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN%s%04d", now.Format("20060102150405"), rand.IntN(10_000))
}

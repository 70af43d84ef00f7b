package domain

import "errors"

// Transfer failure taxonomy. All validation errors are terminal and
// user-facing; ErrStorageUnavailable is the only kind eligible for
// caller-side retry.
var (
	ErrNoAccount           = errors.New("caller has no bank account")
	ErrUnknownAccount      = errors.New("receiver account not found")
	ErrSelfTransfer        = errors.New("cannot transfer to your own account")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDailyLimitExceeded  = errors.New("daily transfer limit exceeded")
	ErrInvalidAmount       = errors.New("transfer amount must be positive and within the allowed maximum")
	ErrRateLimited         = errors.New("too many transfer requests")
	ErrStorageUnavailable  = errors.New("ledger storage unavailable")
	ErrUnknown             = errors.New("transfer failed due to an internal error")

	ErrAccountExists      = errors.New("user already has a bank account")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrInvalidAccountType = errors.New("unknown account type")
)

// Kind returns the machine-readable error kind carried on API responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNoAccount):
		return "NoAccount"
	case errors.Is(err, ErrUnknownAccount):
		return "UnknownAccount"
	case errors.Is(err, ErrSelfTransfer):
		return "SelfTransfer"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "DailyLimitExceeded"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	case errors.Is(err, ErrAccountExists):
		return "AccountExists"
	case errors.Is(err, ErrEmailTaken):
		return "EmailTaken"
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentials"
	case errors.Is(err, ErrInvalidAccountType):
		return "InvalidAccountType"
	}
	return "Unknown"
}

/**
 * @description
 * This file contains the HTTP handlers for the ledger service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and translate the service's error taxonomy onto HTTP status codes. Every
 * error response carries a machine-readable kind alongside the human message
 * so clients can branch without string matching.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corebank/ledger-service/internal/app"
	"github.com/corebank/ledger-service/internal/domain"
	"github.com/corebank/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers delegate to.
type LedgerHandlers struct {
	service *app.Service
	logger  *zap.Logger
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service, logger *zap.Logger) *LedgerHandlers {
	return &LedgerHandlers{service: service, logger: logger}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountType string `json:"account_type,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type transferRequest struct {
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description,omitempty"`
}

type transferResponse struct {
	TransactionID    string          `json:"transaction_id"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	SenderAccount    string          `json:"sender_account"`
	ReceiverAccount  string          `json:"receiver_account"`
	SenderNewBalance decimal.Decimal `json:"sender_new_balance"`
	Timestamp        string          `json:"timestamp"`
	Flagged          bool            `json:"flagged"`
	FraudScore       *float64        `json:"fraud_score,omitempty"`
}

// RegisterHandler provisions a new customer plus their account.
func (h *LedgerHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Email and a password of at least 8 characters are required")
		return
	}

	user, account, err := h.service.Register(r.Context(), req.Email, req.Password, domain.AccountType(req.AccountType), requestMeta(r))
	if err != nil {
		h.writeServiceError(w, "register", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"account": account,
	})
}

// LoginHandler verifies credentials and returns a bearer token.
func (h *LedgerHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, "login", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// TransferHandler executes a transfer from the caller's account.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.ReceiverAccountNumber == "" {
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Receiver account number is required")
		return
	}

	result, err := h.service.ExecuteTransfer(r.Context(), caller.UserID, app.TransferRequest{
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Amount:                req.Amount,
		Description:           req.Description,
	}, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, "transfer", err)
		return
	}

	resp := transferResponse{
		TransactionID:    result.TransactionID,
		Status:           result.Status,
		Amount:           result.Amount,
		SenderAccount:    result.SenderAccount,
		ReceiverAccount:  result.ReceiverAccount,
		SenderNewBalance: result.SenderNewBalance,
		Timestamp:        result.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Flagged:          result.Flagged,
		FraudScore:       result.FraudScore,
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// TransactionHistoryHandler returns the caller's transactions, newest first.
func (h *LedgerHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	txns, err := h.service.TransactionHistory(r.Context(), caller.UserID)
	if err != nil {
		h.writeServiceError(w, "transaction_history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// FlaggedTransactionsHandler lists flagged transactions. Non-privileged
// callers receive an empty list rather than a 403, so the endpoint does not
// reveal whether flagged activity exists.
func (h *LedgerHandlers) FlaggedTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	txns, err := h.service.FlaggedTransactions(r.Context(), caller.Role)
	if err != nil {
		h.writeServiceError(w, "flagged_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// AccountHandler returns the caller's account together with the owning
// user's email and role.
func (h *LedgerHandlers) AccountHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	user, account, err := h.service.Profile(r.Context(), caller.UserID)
	if err != nil {
		h.writeServiceError(w, "get_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"email":   user.Email,
		"role":    user.Role,
	})
}

// AllowanceHandler reports how much of today's transfer ceiling remains.
func (h *LedgerHandlers) AllowanceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	remaining, err := h.service.RemainingDailyAllowance(r.Context(), caller.UserID)
	if err != nil {
		h.writeServiceError(w, "get_allowance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"remaining_daily_allowance": remaining})
}

// CreateAccountHandler provisions an account for an authenticated user who
// registered but has none yet.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	var req struct {
		AccountType string `json:"account_type,omitempty"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
			return
		}
	}

	account, err := h.service.CreateAccount(r.Context(), caller.UserID, domain.AccountType(req.AccountType), requestMeta(r))
	if err != nil {
		h.writeServiceError(w, "create_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// AuditLogsHandler lists audit log entries for admin and auditor callers.
func (h *LedgerHandlers) AuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Unknown", "Could not get caller from context")
		return
	}

	filter := store.AuditFilter{}
	if action := r.URL.Query().Get("action"); action != "" {
		filter.Action = domain.AuditAction(action)
	}

	logs, err := h.service.AuditLogs(r.Context(), caller.Role, filter)
	if err != nil {
		h.writeServiceError(w, "audit_logs", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// writeServiceError maps the service error taxonomy onto HTTP status codes.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	kind := domain.Kind(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountType),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrUnknownAccount),
		errors.Is(err, domain.ErrNoAccount),
		errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.writeError(w, status, kind, "Internal server error")
		return
	}
	h.writeError(w, status, kind, err.Error())
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

func requestMeta(r *http.Request) app.RequestMeta {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return app.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}

/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the
 * API endpoints, associates them with their handlers, and applies middleware
 * for logging, panic recovery, timeouts, CORS and authentication.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the ledger service.
func Routes(h *LedgerHandlers, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		// Everything below requires a valid bearer token.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Post("/transactions/transfer", h.TransferHandler)
			r.Get("/transactions", h.TransactionHistoryHandler)
			r.Get("/transactions/flagged", h.FlaggedTransactionsHandler)

			r.Post("/accounts", h.CreateAccountHandler)
			r.Get("/accounts/me", h.AccountHandler)
			r.Get("/accounts/me/allowance", h.AllowanceHandler)

			r.Get("/audit/logs", h.AuditLogsHandler)
		})
	})

	return r
}

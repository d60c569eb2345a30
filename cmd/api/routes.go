package main

import (
	"net/http"

	httphandlers "finch/internal/interfaces/http"
	"finch/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Aggregator webhook: authenticated by signature verification, not by a
	// user session.
	mux.HandleFunc("/webhooks/aggregator", deps.WebhookHandler.HandleWebhook)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/items", authMiddleware(http.HandlerFunc(deps.ItemHandler.HandleRegisterItem)))
	mux.Handle("/api/items/{id}/sync", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSyncItem)))
	mux.Handle("/api/accounts", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleAccounts)))
	mux.Handle("/api/accounts/{id}", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleAccountByID)))
	mux.Handle("/api/transactions", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleTransactions)))
	mux.Handle("/api/transactions/{id}", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleTransactionByID)))
	mux.Handle("/api/rules", authMiddleware(http.HandlerFunc(deps.RuleHandler.HandleRules)))
	mux.Handle("/api/rules/{id}", authMiddleware(http.HandlerFunc(deps.RuleHandler.HandleRuleByID)))

	// Global middleware
	return middleware.Logging(deps.Log)(middleware.Telemetry(mux))
}

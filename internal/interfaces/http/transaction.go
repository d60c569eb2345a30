package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/account"
	"finch/internal/domain/transaction"
	"finch/internal/shared/middleware"
)

type TransactionHandler struct {
	svc *transaction.Service
	log *logrus.Logger
}

func NewTransactionHandler(svc *transaction.Service, log *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, log: log}
}

type CreateTransactionRequest struct {
	AccountID    string `json:"accountId" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Description  string `json:"description" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Direction    string `json:"direction" validate:"required,oneof=INFLOW OUTFLOW"`
	MerchantName string `json:"merchantName"`
	CategoryID   *int64 `json:"categoryId,omitempty"`
	Notes        string `json:"notes"`
}

// HandleTransactions serves list (GET) and manual create (POST).
func (h *TransactionHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TransactionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		http.Error(w, "accountId is required", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.svc.List(r.Context(), userID, accountID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to list transactions")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

func (h *TransactionHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "Invalid date format (use YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	created, err := h.svc.CreateManual(r.Context(), userID, transaction.CreateManualParams{
		AccountID:    req.AccountID,
		Date:         date,
		Description:  req.Description,
		Amount:       amount,
		Direction:    req.Direction,
		MerchantName: req.MerchantName,
		CategoryID:   req.CategoryID,
		Notes:        req.Notes,
	})
	if err != nil {
		if errors.Is(err, transaction.ErrInvalidAmount) || errors.Is(err, transaction.ErrInvalidDirection) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeServiceError(w, r, err, "Failed to create transaction")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// HandleTransactionByID serves delete for a single record.
func (h *TransactionHandler) HandleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		h.writeServiceError(w, r, err, "Failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		http.Error(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, account.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		h.log.WithFields(logrus.Fields{
			"path":  r.URL.Path,
			"error": err.Error(),
		}).Error("transaction handler error")
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

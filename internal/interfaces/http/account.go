package http

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/account"
	"finch/internal/shared/middleware"
)

type AccountHandler struct {
	repo account.Repository
	log  *logrus.Logger
}

func NewAccountHandler(repo account.Repository, log *logrus.Logger) *AccountHandler {
	return &AccountHandler{repo: repo, log: log}
}

type CreateAccountRequest struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=CHECKING SAVINGS CREDIT"`
	Balance string `json:"balance"`
}

// HandleAccounts serves list (GET) and manual create (POST). Accounts
// created here have no parent item; linked accounts come from the sync
// engine.
func (h *AccountHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		accounts, err := h.repo.ListByUserID(r.Context(), userID)
		if err != nil {
			h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to list accounts")
			http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(accounts)

	case http.MethodPost:
		var req CreateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		balance := decimal.Zero
		if req.Balance != "" {
			var err error
			balance, err = decimal.NewFromString(req.Balance)
			if err != nil {
				http.Error(w, "Invalid balance", http.StatusBadRequest)
				return
			}
		}

		acct, err := h.repo.Create(r.Context(), account.CreateParams{
			UserID:  userID,
			Name:    req.Name,
			Type:    req.Type,
			Balance: balance,
		})
		if err != nil {
			h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to create account")
			http.Error(w, "Failed to create account", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(acct)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAccountByID returns a single account owned by the user.
func (h *AccountHandler) HandleAccountByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	acct, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to get account")
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}
	if acct == nil || acct.UserID != userID {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(acct)
}

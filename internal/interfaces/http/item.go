package http

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"finch/internal/domain/item"
	"finch/internal/shared/middleware"
)

type ItemHandler struct {
	repo item.Repository
	log  *logrus.Logger
}

func NewItemHandler(repo item.Repository, log *logrus.Logger) *ItemHandler {
	return &ItemHandler{repo: repo, log: log}
}

type RegisterItemRequest struct {
	ExternalID      string `json:"externalId" validate:"required"`
	AccessToken     string `json:"accessToken" validate:"required"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

// HandleRegisterItem records a new institution connection after link
// completes on the client. The access token never appears in responses.
func (h *ItemHandler) HandleRegisterItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := item.CreateParams{
		UserID:          userID,
		ExternalID:      req.ExternalID,
		AccessToken:     req.AccessToken,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
	}
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	it, err := h.repo.Create(r.Context(), params)
	if err != nil {
		h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to register item")
		http.Error(w, "Failed to register item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(it)
}

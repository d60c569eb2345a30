package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"finch/internal/domain/rules"
	"finch/internal/shared/middleware"
)

type RuleHandler struct {
	repo   rules.Repository
	engine *rules.Engine
	log    *logrus.Logger
}

func NewRuleHandler(repo rules.Repository, engine *rules.Engine, log *logrus.Logger) *RuleHandler {
	return &RuleHandler{repo: repo, engine: engine, log: log}
}

type CreateRuleRequest struct {
	Pattern    string `json:"pattern" validate:"required"`
	CategoryID int64  `json:"categoryId" validate:"required,gt=0"`
	Position   int    `json:"position"`
}

// HandleRules serves list (GET) and create (POST). Creating a rule also
// backfills the user's uncategorized backlog against the full rule set.
func (h *RuleHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RuleHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to list rules")
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *RuleHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := rules.CreateParams{
		UserID:     userID,
		Pattern:    req.Pattern,
		CategoryID: req.CategoryID,
		Position:   req.Position,
	}
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule, err := h.repo.Create(r.Context(), params)
	if err != nil {
		h.log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to create rule")
		http.Error(w, "Failed to create rule", http.StatusInternalServerError)
		return
	}

	// Retag the backlog with the rule in place. The rule itself is already
	// durable, so a backfill failure is logged and not surfaced.
	if result, err := h.engine.Backfill(r.Context(), userID); err != nil {
		h.log.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"error":   err.Error(),
		}).Warn("rule backfill failed")
	} else if result.Updated > 0 {
		h.log.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"updated": result.Updated,
		}).Info("rule backfill applied")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rule)
}

// HandleRuleByID serves delete for a single rule.
func (h *RuleHandler) HandleRuleByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		h.log.WithFields(logrus.Fields{"rule_id": id, "error": err.Error()}).Error("failed to delete rule")
		http.Error(w, "Failed to delete rule", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

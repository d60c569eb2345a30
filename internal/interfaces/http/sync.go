package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"finch/internal/domain/banksync"
	"finch/internal/domain/item"
	"finch/internal/shared/middleware"
	"finch/internal/shared/ratelimit"
)

// RateClassInteractive gates user-triggered sync requests, counted per user.
const RateClassInteractive = "interactive"

type SyncHandler struct {
	svc     *banksync.Service
	limiter *ratelimit.Limiter
	log     *logrus.Logger
}

func NewSyncHandler(svc *banksync.Service, limiter *ratelimit.Limiter, log *logrus.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, limiter: limiter, log: log}
}

// HandleSyncItem triggers one sync pass for the item and reports its counts.
func (h *SyncHandler) HandleSyncItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := r.PathValue("id")
	if itemID == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	decision := h.limiter.Allow(RateClassInteractive, strconv.FormatInt(userID, 10))
	if !decision.Allowed {
		retryAfter := int(decision.RetryAfter(time.Now()).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "rate limit exceeded",
			"retryAfterSeconds": retryAfter,
		})
		return
	}

	result, err := h.svc.SyncItem(r.Context(), userID, itemID)
	if err != nil {
		h.writeSyncError(w, itemID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *SyncHandler) writeSyncError(w http.ResponseWriter, itemID string, err error) {
	var loginErr *banksync.LoginRequiredError
	var aggErr *banksync.AggregatorError

	switch {
	case errors.Is(err, item.ErrItemNotFound):
		http.Error(w, "Item not found", http.StatusNotFound)
	case errors.As(err, &loginErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  "item requires re-authentication",
			"status": item.StatusLoginRequired,
		})
	case errors.As(err, &aggErr):
		http.Error(w, "Aggregator error: "+aggErr.Message, http.StatusBadGateway)
	default:
		h.log.WithFields(logrus.Fields{
			"item_id": itemID,
			"error":   err.Error(),
		}).Error("sync failed")
		http.Error(w, "Sync failed", http.StatusInternalServerError)
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"finch/internal/domain/banksync"
	"finch/internal/domain/item"
	"finch/internal/shared/auth"
	"finch/internal/shared/ratelimit"
)

const (
	// VerificationHeader carries the detached JWS signed over the body.
	VerificationHeader = "X-Aggregator-Verification"

	// RateClassWebhook gates webhook-triggered syncs, counted per external
	// item id.
	RateClassWebhook = "webhook"

	maxWebhookBody = 1 << 20 // 1 MiB

	// webhookSyncTimeout bounds the detached background pass a webhook kicks off.
	webhookSyncTimeout = 5 * time.Minute
)

type WebhookHandler struct {
	verifier *auth.WebhookVerifier
	items    item.Repository
	sync     *banksync.Service
	limiter  *ratelimit.Limiter
	log      *logrus.Logger
}

func NewWebhookHandler(verifier *auth.WebhookVerifier, items item.Repository, sync *banksync.Service, limiter *ratelimit.Limiter, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		items:    items,
		sync:     sync,
		limiter:  limiter,
		log:      log,
	}
}

type webhookPayload struct {
	Type   string `json:"webhook_type" validate:"required"`
	Code   string `json:"webhook_code" validate:"required"`
	ItemID string `json:"item_id" validate:"required"`
	Error  string `json:"error,omitempty"`
}

// HandleWebhook verifies and acknowledges aggregator notifications. The
// actual sync runs detached; the aggregator only needs a prompt 200 and
// retries on anything else.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	// Verification comes before any payload inspection.
	if err := h.verifier.Verify(r.Header.Get(VerificationHeader), body); err != nil {
		h.log.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
		}).Warn("webhook verification failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	h.process(r.Context(), payload)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func (h *WebhookHandler) process(ctx context.Context, payload webhookPayload) {
	it, err := h.items.GetByExternalID(ctx, payload.ItemID)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"external_item_id": payload.ItemID,
			"error":            err.Error(),
		}).Error("failed to resolve webhook item")
		return
	}
	if it == nil {
		// Unknown items are acknowledged and dropped: the aggregator may
		// deliver for connections removed on our side.
		h.log.WithFields(logrus.Fields{
			"external_item_id": payload.ItemID,
			"code":             payload.Code,
		}).Warn("webhook for unknown item")
		return
	}

	if payload.Code == "ITEM_LOGIN_REQUIRED" {
		if err := h.items.SetStatus(ctx, it.ID, item.StatusLoginRequired, payload.Error); err != nil {
			h.log.WithFields(logrus.Fields{"item_id": it.ID, "error": err.Error()}).Error("failed to mark item LOGIN_REQUIRED")
		}
		return
	}

	// Flood control: deliveries past the window are acknowledged but do not
	// trigger more work. The next allowed pass picks up everything via the
	// cursor anyway.
	decision := h.limiter.Allow(RateClassWebhook, payload.ItemID)
	if !decision.Allowed {
		h.log.WithFields(logrus.Fields{
			"external_item_id": payload.ItemID,
		}).Info("webhook rate limited, sync deferred to next allowed delivery")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookSyncTimeout)
		defer cancel()

		if _, err := h.sync.SyncItem(ctx, it.UserID, it.ID); err != nil {
			// Degraded state is already persisted on the item; delivery
			// itself was acknowledged.
			var loginErr *banksync.LoginRequiredError
			if errors.As(err, &loginErr) {
				return
			}
			h.log.WithFields(logrus.Fields{
				"item_id": it.ID,
				"error":   err.Error(),
			}).Error("webhook-triggered sync failed")
		}
	}()
}

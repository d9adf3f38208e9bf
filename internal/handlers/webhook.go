package handlers

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"spiriverse/internal/idempotency"
	"spiriverse/internal/models"
	"spiriverse/internal/records"
	"spiriverse/internal/services/fanout"
	"spiriverse/internal/utils/response"
)

// WebhookHandler receives payment-method-authorized events from the payment
// provider and hands them to the orchestrator.
type WebhookHandler struct {
	orchestrator *fanout.Orchestrator
	store        records.Store
	guard        idempotency.Guard
	secret       string
	logger       *zap.Logger
}

// NewWebhookHandler builds the handler.
func NewWebhookHandler(orchestrator *fanout.Orchestrator, store records.Store, guard idempotency.Guard, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		orchestrator: orchestrator,
		store:        store,
		guard:        guard,
		secret:       secret,
		logger:       logger,
	}
}

type authorizedPayload struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	PaymentMethodID string            `json:"payment_method"`
	CustomerEmail   string            `json:"customer_email"`
	Metadata        map[string]string `json:"metadata"`
}

// PaymentAuthorized handles one authorization event. Duplicate deliveries
// are acknowledged without reprocessing; batch-fatal precondition failures
// return 422 so the delivery layer surfaces them instead of retrying
// silently.
func (h *WebhookHandler) PaymentAuthorized(c *fiber.Ctx) error {
	if subtle.ConstantTimeCompare([]byte(c.Get("X-Webhook-Secret")), []byte(h.secret)) != 1 {
		return response.Unauthorized(c, "bad webhook secret")
	}

	var payload authorizedPayload
	if err := c.BodyParser(&payload); err != nil {
		return response.BadRequest(c, "invalid event payload")
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	purpose, err := fanout.ParsePurpose(payload.Metadata)
	if err != nil {
		h.logger.Warn("unroutable event", zap.String("event_id", payload.ID), zap.Error(err))
		return response.BadRequest(c, err.Error())
	}

	claimed, err := h.guard.Acquire(c.Context(), payload.ID)
	if err != nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "idempotency guard unavailable")
	}
	if !claimed {
		h.logger.Info("duplicate event skipped", zap.String("event_id", payload.ID))
		return response.Success(c, "duplicate delivery ignored", nil)
	}

	evt := fanout.Event{
		ID:                 payload.ID,
		PlatformCustomerID: payload.Customer,
		PaymentMethodID:    payload.PaymentMethodID,
		CustomerEmail:      payload.CustomerEmail,
		Purpose:            purpose,
		ReceivedAt:         time.Now().UTC(),
	}
	h.persistEvent(c.Context(), payload, evt)

	results, err := h.orchestrator.HandleAuthorized(c.Context(), evt)
	if err != nil {
		// Nothing was charged; free the claim so the delivery layer can
		// retry once the precondition is fixed.
		if relErr := h.guard.Release(c.Context(), payload.ID); relErr != nil {
			h.logger.Warn("could not release event claim",
				zap.String("event_id", payload.ID), zap.Error(relErr))
		}
		h.logger.Error("event processing failed",
			zap.String("event_id", payload.ID), zap.Error(err))
		return response.Error(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	return response.Success(c, "event processed", fiber.Map{
		"event_id": payload.ID,
		"groups":   summarize(results),
	})
}

// persistEvent stores the raw event for inspection and replay. Best-effort:
// processing proceeds even if the copy cannot be written.
func (h *WebhookHandler) persistEvent(ctx context.Context, payload authorizedPayload, evt fanout.Event) {
	stored := models.AuthorizedEvent{
		ID:                 evt.ID,
		PlatformCustomerID: evt.PlatformCustomerID,
		PaymentMethodID:    evt.PaymentMethodID,
		CustomerEmail:      evt.CustomerEmail,
		Metadata:           payload.Metadata,
		ReceivedAt:         evt.ReceivedAt,
	}
	if err := h.store.Create(ctx, records.ContainerEvents, stored.ID, stored.ID, stored); err != nil {
		h.logger.Warn("could not persist event copy",
			zap.String("event_id", stored.ID), zap.Error(err))
	}
}

func summarize(results []fanout.GroupResult) []fiber.Map {
	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		entry := fiber.Map{
			"merchant_id": r.MerchantID,
			"succeeded":   r.Succeeded(),
		}
		if r.Succeeded() {
			entry["payment_intent_id"] = r.PaymentIntentID
			entry["amount_cents"] = r.AmountCents
			entry["currency"] = r.Currency
		} else {
			entry["failure"] = r.FailureReason()
		}
		out = append(out, entry)
	}
	return out
}

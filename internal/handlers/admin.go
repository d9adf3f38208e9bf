package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"spiriverse/internal/models"
	"spiriverse/internal/records"
	"spiriverse/internal/services/fanout"
	"spiriverse/internal/utils/response"
)

// AdminHandler exposes the event replay surface.
type AdminHandler struct {
	orchestrator *fanout.Orchestrator
	store        records.Store
	logger       *zap.Logger
}

// NewAdminHandler builds the handler.
func NewAdminHandler(orchestrator *fanout.Orchestrator, store records.Store, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{orchestrator: orchestrator, store: store, logger: logger}
}

// ReplayEvent re-runs a previously received event from its stored copy.
// Replay bypasses the idempotency guard on purpose: it exists for manual
// remediation of events that failed or were lost downstream.
func (h *AdminHandler) ReplayEvent(c *fiber.Ctx) error {
	eventID := c.Params("id")

	raw, err := h.store.Get(c.Context(), records.ContainerEvents, eventID, eventID)
	if err != nil {
		return response.Error(c, fiber.StatusNotFound, "event not found")
	}
	var stored models.AuthorizedEvent
	if err := json.Unmarshal(raw, &stored); err != nil {
		return response.Error(c, fiber.StatusInternalServerError, "stored event unreadable")
	}

	purpose, err := fanout.ParsePurpose(stored.Metadata)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	evt := fanout.Event{
		ID:                 stored.ID,
		PlatformCustomerID: stored.PlatformCustomerID,
		PaymentMethodID:    stored.PaymentMethodID,
		CustomerEmail:      stored.CustomerEmail,
		Purpose:            purpose,
		ReceivedAt:         stored.ReceivedAt,
	}

	h.logger.Info("replaying event", zap.String("event_id", eventID))
	results, err := h.orchestrator.HandleAuthorized(c.Context(), evt)
	if err != nil {
		return response.Error(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	return response.Success(c, "event replayed", fiber.Map{
		"event_id": eventID,
		"groups":   summarize(results),
	})
}

// ListChargeEvents returns the audit trail for one order.
func (h *AdminHandler) ListChargeEvents(c *fiber.Ctx) error {
	orderID := c.Params("orderId")

	docs, err := h.store.Query(c.Context(), records.ContainerChargeEvents,
		"body->>'orderId' = @orderId",
		map[string]interface{}{"orderId": orderID})
	if err != nil {
		return response.Error(c, fiber.StatusInternalServerError, "query failed")
	}

	events := make([]models.ChargeEvent, 0, len(docs))
	for _, doc := range docs {
		var evt models.ChargeEvent
		if err := json.Unmarshal(doc, &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return response.Success(c, "charge events", events)
}

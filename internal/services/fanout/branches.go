package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
	"spiriverse/internal/notifier"
	"spiriverse/internal/records"
)

// handleSubscriptionCardSave activates a merchant's subscription card,
// optionally verifies it with a refundable authorization hold, then gives
// the publish gate a chance to flip the vendor live.
func (o *Orchestrator) handleSubscriptionCardSave(ctx context.Context, evt Event, p SubscriptionCardSave) error {
	raw, err := o.store.Get(ctx, records.ContainerMerchants, p.VendorID, p.VendorID)
	if err != nil {
		return fmt.Errorf("load vendor %s: %w", p.VendorID, err)
	}
	var merchant models.Merchant
	if err := json.Unmarshal(raw, &merchant); err != nil {
		return fmt.Errorf("decode vendor %s: %w", p.VendorID, err)
	}

	ops := []records.PatchOp{
		records.Set("/subscription/card_status", "active"),
	}

	// Trial merchants get a small authorization hold, created and
	// immediately cancelled, to prove the card is real before the trial
	// converts. The hold is best-effort: a declined hold still leaves the
	// card saved.
	if merchant.Subscription.BillingModel == "trial" {
		if holdID := o.placeTrialHold(ctx, evt); holdID != "" {
			ops = append(ops, records.Set("/subscription/trialAuthHoldPaymentIntentId", holdID))
		}
	}

	if err := o.store.Patch(ctx, records.ContainerMerchants, p.VendorID, p.VendorID, ops, actor); err != nil {
		return fmt.Errorf("update vendor subscription %s: %w", p.VendorID, err)
	}

	return o.gate.Evaluate(ctx, p.VendorID)
}

// placeTrialHold creates a manual-capture payment intent and cancels it
// right away, returning the intent id, or empty on any failure.
func (o *Orchestrator) placeTrialHold(ctx context.Context, evt Event) string {
	resp, err := o.gw.Call(ctx, http.MethodPost, "/v1/payment_intents", gateway.Params{
		"amount":         strconv.FormatInt(o.cfg.TrialHoldCents, 10),
		"currency":       "usd",
		"customer":       evt.PlatformCustomerID,
		"payment_method": evt.PaymentMethodID,
		"capture_method": "manual",
		"confirm":        "true",
	})
	if err != nil {
		o.logger.Warn("trial authorization hold failed",
			zap.String("event_id", evt.ID), zap.Error(err))
		return ""
	}
	var intent gateway.PaymentIntent
	if err := gateway.Decode(resp, &intent); err != nil {
		o.logger.Warn("trial hold response unreadable", zap.Error(err))
		return ""
	}

	cancelPath := fmt.Sprintf("/v1/payment_intents/%s/cancel", intent.ID)
	if _, err := o.gw.Call(ctx, http.MethodPost, cancelPath, nil); err != nil {
		// The hold self-expires; the id is still worth keeping.
		o.logger.Warn("could not cancel trial hold",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
	}

	o.logger.Info("placed trial authorization hold",
		zap.String("event_id", evt.ID),
		zap.String("payment_intent_id", intent.ID))
	return intent.ID
}

// handleReturnShipping purchases the return label for an approved refund and
// emails it to the customer.
func (o *Orchestrator) handleReturnShipping(ctx context.Context, evt Event, p ReturnShippingPayment) error {
	if o.labels == nil {
		return fmt.Errorf("label service not configured")
	}

	raw, err := o.store.Get(ctx, records.ContainerRefunds, p.RefundID, p.OrderID)
	if err != nil {
		return fmt.Errorf("load refund %s: %w", p.RefundID, err)
	}
	var refund models.Refund
	if err := json.Unmarshal(raw, &refund); err != nil {
		return fmt.Errorf("decode refund %s: %w", p.RefundID, err)
	}
	if refund.ReturnRateID == "" {
		return fmt.Errorf("refund %s has no return rate", p.RefundID)
	}

	label, err := o.labels.CreateLabelFromRate(ctx, refund.ReturnRateID)
	if err != nil {
		return fmt.Errorf("purchase return label: %w", err)
	}

	ops := []records.PatchOp{
		records.Set("/returnShipping", models.JSON{
			"labelId":        label.LabelID,
			"trackingNumber": label.TrackingNumber,
			"carrierCode":    label.CarrierCode,
			"serviceCode":    label.ServiceCode,
			"purchasedAt":    time.Now().UTC().Format(time.RFC3339),
		}),
	}
	if err := o.store.Patch(ctx, records.ContainerOrders, p.OrderID, p.OrderID, ops, actor); err != nil {
		return fmt.Errorf("record return label on order %s: %w", p.OrderID, err)
	}

	if o.mailer != nil && refund.CustomerEmail != "" {
		err := o.mailer.SendEmail(ctx, o.cfg.FromEmail, refund.CustomerEmail, notifier.TemplateReturnLabel, map[string]interface{}{
			"OrderID":        p.OrderID,
			"TrackingNumber": label.TrackingNumber,
			"LabelURL":       label.Downloads.PDF,
		})
		if err != nil {
			o.logger.Warn("could not send return label email",
				zap.String("order_id", p.OrderID), zap.Error(err))
		}
	}
	return nil
}

// handleReadingRequestSave binds the saved card to the pending request and
// mirrors it onto the customer's saved-card list, deduplicated by
// brand+last4.
func (o *Orchestrator) handleReadingRequestSave(ctx context.Context, evt Event, p ReadingRequestSave) error {
	ops := []records.PatchOp{
		records.Set("/paymentMethodId", evt.PaymentMethodID),
		records.Set("/status", "card_saved"),
	}
	if err := o.store.Patch(ctx, records.ContainerRequests, p.RequestID, p.RequestID, ops, actor); err != nil {
		return fmt.Errorf("bind card to request %s: %w", p.RequestID, err)
	}

	if err := o.mirrorSavedCard(ctx, evt); err != nil {
		// The request already has its card; the mirror is convenience
		// state for the customer's saved-card list.
		o.logger.Warn("could not mirror saved card",
			zap.String("event_id", evt.ID), zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) mirrorSavedCard(ctx context.Context, evt Event) error {
	path := fmt.Sprintf("/v1/payment_methods/%s", evt.PaymentMethodID)
	resp, err := o.gw.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("fetch payment method: %w", err)
	}
	var pm gateway.PaymentMethod
	if err := gateway.Decode(resp, &pm); err != nil {
		return err
	}

	docs, err := o.store.Query(ctx, records.ContainerCustomers,
		"body->>'stripeCustomerId' = @customerId",
		map[string]interface{}{"customerId": evt.PlatformCustomerID})
	if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no customer document for %s", evt.PlatformCustomerID)
	}
	var customer models.Customer
	if err := json.Unmarshal(docs[0], &customer); err != nil {
		return fmt.Errorf("decode customer: %w", err)
	}

	if customer.HasCard(pm.Card.Brand, pm.Card.Last4) {
		return nil
	}

	card := models.SavedCard{
		PaymentMethodID: pm.ID,
		Brand:           pm.Card.Brand,
		Last4:           pm.Card.Last4,
		ExpMonth:        pm.Card.ExpMonth,
		ExpYear:         pm.Card.ExpYear,
	}
	ops := []records.PatchOp{records.Add("/savedCards/-", card)}
	return o.store.Patch(ctx, records.ContainerCustomers, customer.ID, customer.ID, ops, actor)
}

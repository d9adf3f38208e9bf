// Package fanout drives the settlement of one customer payment authorization
// across every merchant present on an order. Merchant groups are charged
// sequentially with pacing between them; one group's failure never blocks or
// reverses the others.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
	"spiriverse/internal/notifier"
	"spiriverse/internal/records"
	"spiriverse/internal/services/charge"
	"spiriverse/internal/services/connect"
	"spiriverse/internal/services/publish"
	"spiriverse/internal/shipping"
)

const actor = "payment-fanout"

// Config tunes the orchestrator.
type Config struct {
	// PacingDelay is slept between merchant groups when an order spans
	// more than one merchant, keeping the fan-out under the gateway's
	// rate limits and bounding blast radius if it starts rejecting.
	PacingDelay time.Duration
	// TrialHoldCents is the refundable authorization placed to verify a
	// trial merchant's card.
	TrialHoldCents int64
	// FromEmail is the sender for transactional mail.
	FromEmail string
}

// Orchestrator is the top-level controller for payment-authorized events.
type Orchestrator struct {
	store   records.Store
	gw      gateway.Gateway
	builder *charge.Builder
	binder  *connect.Binder
	gate    *publish.Gate
	labels  shipping.LabelService
	mailer  notifier.Notifier
	cfg     Config
	logger  *zap.Logger
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	store records.Store,
	gw gateway.Gateway,
	builder *charge.Builder,
	binder *connect.Binder,
	gate *publish.Gate,
	labels shipping.LabelService,
	mailer notifier.Notifier,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if store == nil {
		panic("record store is required")
	}
	if gw == nil {
		panic("gateway is required")
	}
	if builder == nil {
		panic("charge builder is required")
	}
	if binder == nil {
		panic("binder is required")
	}
	if gate == nil {
		panic("publish gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TrialHoldCents == 0 {
		cfg.TrialHoldCents = 500
	}
	return &Orchestrator{
		store:   store,
		gw:      gw,
		builder: builder,
		binder:  binder,
		gate:    gate,
		labels:  labels,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
	}
}

// HandleAuthorized dispatches one authorized event to the branch matching
// its purpose.
func (o *Orchestrator) HandleAuthorized(ctx context.Context, evt Event) ([]GroupResult, error) {
	switch p := evt.Purpose.(type) {
	case OrderPayment:
		return o.fanOutOrder(ctx, evt, p)
	case SubscriptionCardSave:
		return nil, o.handleSubscriptionCardSave(ctx, evt, p)
	case ReturnShippingPayment:
		return nil, o.handleReturnShipping(ctx, evt, p)
	case ReadingRequestSave:
		return nil, o.handleReadingRequestSave(ctx, evt, p)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPurpose, evt.Purpose)
	}
}

// fanOutOrder settles one order: one confirmed charge per distinct merchant
// on the order's lines, with a full audit trail regardless of per-merchant
// outcome.
func (o *Orchestrator) fanOutOrder(ctx context.Context, evt Event, p OrderPayment) ([]GroupResult, error) {
	order, err := o.loadOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order %s", ErrNoLines, order.ID)
	}
	if order.Billing == nil {
		return nil, fmt.Errorf("%w: order %s", charge.ErrMissingBillingAddress, order.ID)
	}

	// The durable marker that a charge attempt began, written before any
	// money moves and independent of per-merchant outcomes.
	if err := o.markAwaitingCharge(ctx, *order); err != nil {
		return nil, fmt.Errorf("mark awaiting charge: %w", err)
	}

	o.restorePrices(ctx, order)
	groups := groupLines(*order)

	o.logger.Info("starting order fan-out",
		zap.String("event_id", evt.ID),
		zap.String("order_id", order.ID),
		zap.Int("merchant_groups", len(groups)))

	results := make([]GroupResult, 0, len(groups))
	for i, group := range groups {
		if i > 0 && o.cfg.PacingDelay > 0 {
			time.Sleep(o.cfg.PacingDelay)
		}

		result := o.chargeGroup(ctx, evt, *order, group)
		results = append(results, result)

		o.recordGroupOutcome(ctx, evt, *order, group, result)
		if result.Succeeded() {
			o.logger.Info("merchant charge confirmed",
				zap.String("order_id", order.ID),
				zap.String("merchant_id", group.MerchantID),
				zap.String("payment_intent_id", result.PaymentIntentID),
				zap.Int64("amount_cents", result.AmountCents))
		} else {
			o.logger.Error("merchant charge failed",
				zap.String("order_id", order.ID),
				zap.String("merchant_id", group.MerchantID),
				zap.Error(result.Err))
		}
	}

	o.sendReceipt(ctx, *order, results)
	return results, nil
}

func (o *Orchestrator) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	raw, err := o.store.Get(ctx, records.ContainerOrders, orderID, orderID)
	if errors.Is(err, records.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return &order, nil
}

// markAwaitingCharge appends AWAITING_CHARGE to every line's status log in
// one patch. Re-running the fan-out appends another entry; the log is
// append-only by contract, so replays remain visible instead of overwriting.
func (o *Orchestrator) markAwaitingCharge(ctx context.Context, order models.Order) error {
	entry := models.PaidStatusEntry{
		Status: models.PaidStatusAwaitingCharge,
		At:     time.Now().UTC(),
		Actor:  actor,
	}
	ops := make([]records.PatchOp, 0, len(order.Lines))
	for i := range order.Lines {
		ops = append(ops, records.Add(fmt.Sprintf("/lines/%d/paidStatusLog/-", i), entry))
	}
	return o.store.Patch(ctx, records.ContainerOrders, order.ID, order.ID, ops, actor)
}

// restorePrices undoes any transient promotional price overlay by restoring
// each line's price from its first price snapshot, before grouping. The
// restore is idempotent. Divergent persisted prices are patched back so the
// stored order matches what gets charged.
func (o *Orchestrator) restorePrices(ctx context.Context, order *models.Order) {
	var ops []records.PatchOp
	for i := range order.Lines {
		line := &order.Lines[i]
		if len(line.PriceLog) == 0 {
			continue
		}
		canonical := line.PriceLog[0].Price
		if line.Price != canonical {
			line.Price = canonical
			ops = append(ops, records.Set(fmt.Sprintf("/lines/%d/price", i), canonical))
		}
	}
	if len(ops) == 0 {
		return
	}
	if err := o.store.Patch(ctx, records.ContainerOrders, order.ID, order.ID, ops, actor); err != nil {
		// The in-memory restore already happened; the charge totals are
		// correct either way.
		o.logger.Warn("could not persist restored prices",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

// groupLines partitions the order's lines by merchant, preserving first-seen
// merchant order so pacing and audit output stay deterministic.
func groupLines(order models.Order) []charge.Group {
	byMerchant := make(map[string]*charge.Group)
	var ordered []*charge.Group
	for i, line := range order.Lines {
		g, ok := byMerchant[line.MerchantID]
		if !ok {
			g = &charge.Group{MerchantID: line.MerchantID}
			byMerchant[line.MerchantID] = g
			ordered = append(ordered, g)
		}
		g.Lines = append(g.Lines, charge.IndexedLine{Index: i, Line: line})
	}
	out := make([]charge.Group, len(ordered))
	for i, g := range ordered {
		out[i] = *g
	}
	return out
}

// chargeGroup attempts one merchant group's charge. Every failure mode is
// captured in the returned result; nothing here aborts the fan-out loop.
func (o *Orchestrator) chargeGroup(ctx context.Context, evt Event, order models.Order, group charge.Group) GroupResult {
	result := GroupResult{MerchantID: group.MerchantID}

	if group.MerchantID == models.PlatformMerchantID {
		return o.chargePlatformGroup(ctx, evt, order, group)
	}

	merchant, err := o.loadMerchant(ctx, group.MerchantID)
	if err != nil {
		result.Err = err
		return result
	}
	if merchant.Stripe.AccountID == "" {
		result.Err = fmt.Errorf("%w: merchant %s", connect.ErrNoConnectedAccount, merchant.ID)
		return result
	}

	req, err := o.builder.Build(ctx, order, *merchant, group)
	if err != nil {
		result.Err = err
		return result
	}

	bound, err := o.binder.Bind(ctx, *merchant, evt.PlatformCustomerID, orderEmail(order, evt), evt.PaymentMethodID)
	if err != nil {
		result.Err = err
		return result
	}
	req.CustomerID = bound.CustomerID
	req.PaymentMethodID = bound.PaymentMethodID

	intent, err := o.confirmCharge(ctx, o.gw.AsConnectedAccount(merchant.Stripe.AccountID), req, evt)
	if err != nil {
		result.Err = err
		return result
	}

	result.AmountCents = req.AmountCents
	result.Currency = req.Currency
	result.PaymentIntentID = intent.ID
	return result
}

// chargePlatformGroup settles lines the platform sells itself: the customer
// is charged directly on the platform account with the original payment
// method. No currency conversion, no connected-account cloning, no
// application fee.
func (o *Orchestrator) chargePlatformGroup(ctx context.Context, evt Event, order models.Order, group charge.Group) GroupResult {
	result := GroupResult{MerchantID: group.MerchantID}

	var total int64
	currency := ""
	for _, il := range group.Lines {
		line := il.Line
		if len(line.PriceLog) > 0 {
			total += line.PriceLog[0].Price.AmountCents * line.Quantity()
			if currency == "" {
				currency = line.PriceLog[0].Price.Currency
			}
			continue
		}
		total += line.Price.AmountCents * line.Quantity()
		if currency == "" {
			currency = line.Price.Currency
		}
	}
	if currency == "" {
		currency = "USD"
	}

	req := &charge.Request{
		AmountCents:     total,
		Currency:        currency,
		CustomerID:      evt.PlatformCustomerID,
		PaymentMethodID: evt.PaymentMethodID,
		Metadata: map[string]string{
			"order_id":    order.ID,
			"merchant_id": group.MerchantID,
		},
	}

	intent, err := o.confirmCharge(ctx, o.gw, req, evt)
	if err != nil {
		result.Err = err
		return result
	}

	result.AmountCents = req.AmountCents
	result.Currency = req.Currency
	result.PaymentIntentID = intent.ID
	return result
}

func (o *Orchestrator) loadMerchant(ctx context.Context, merchantID string) (*models.Merchant, error) {
	raw, err := o.store.Get(ctx, records.ContainerMerchants, merchantID, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load merchant %s: %w", merchantID, err)
	}
	var merchant models.Merchant
	if err := json.Unmarshal(raw, &merchant); err != nil {
		return nil, fmt.Errorf("decode merchant %s: %w", merchantID, err)
	}
	return &merchant, nil
}

// confirmCharge creates and confirms the payment intent for one group.
func (o *Orchestrator) confirmCharge(ctx context.Context, gw gateway.Gateway, req *charge.Request, evt Event) (*gateway.PaymentIntent, error) {
	params := gateway.Params{
		"amount":         strconv.FormatInt(req.AmountCents, 10),
		"currency":       strings.ToLower(req.Currency),
		"customer":       req.CustomerID,
		"payment_method": req.PaymentMethodID,
		"confirm":        "true",
		"off_session":    "true",
	}
	if req.ApplicationFeeCents > 0 {
		params["application_fee_amount"] = strconv.FormatInt(req.ApplicationFeeCents, 10)
	}
	for k, v := range req.Metadata {
		params[fmt.Sprintf("metadata[%s]", k)] = v
	}
	params["metadata[event_id]"] = evt.ID

	resp, err := gw.Call(ctx, http.MethodPost, "/v1/payment_intents", params)
	if err != nil {
		return nil, fmt.Errorf("confirm charge: %w", err)
	}
	var intent gateway.PaymentIntent
	if err := gateway.Decode(resp, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// recordGroupOutcome writes the audit record and per-line status entries for
// one group. Audit failures are logged, never propagated: the charge already
// happened or failed on its own terms.
func (o *Orchestrator) recordGroupOutcome(ctx context.Context, evt Event, order models.Order, group charge.Group, result GroupResult) {
	event := models.ChargeEvent{
		ID:              uuid.NewString(),
		EventID:         evt.ID,
		OrderID:         order.ID,
		MerchantID:      group.MerchantID,
		Outcome:         models.ChargeOutcomeSucceeded,
		PaymentIntentID: result.PaymentIntentID,
		AmountCents:     result.AmountCents,
		Currency:        result.Currency,
		CreatedAt:       time.Now().UTC(),
	}
	status := models.PaidStatusCharged
	if !result.Succeeded() {
		event.Outcome = models.ChargeOutcomeFailed
		event.FailureReason = result.FailureReason()
		status = models.PaidStatusChargeFailed
	}

	if err := o.store.Create(ctx, records.ContainerChargeEvents, event.ID, order.ID, event); err != nil {
		o.logger.Warn("could not write charge audit record",
			zap.String("order_id", order.ID),
			zap.String("merchant_id", group.MerchantID),
			zap.Error(err))
	}

	entry := models.PaidStatusEntry{
		Status: status,
		At:     time.Now().UTC(),
		Actor:  actor,
		Note:   result.FailureReason(),
	}
	ops := make([]records.PatchOp, 0, len(group.Lines))
	for _, il := range group.Lines {
		ops = append(ops, records.Add(fmt.Sprintf("/lines/%d/paidStatusLog/-", il.Index), entry))
	}
	if err := o.store.Patch(ctx, records.ContainerOrders, order.ID, order.ID, ops, actor); err != nil {
		o.logger.Warn("could not record line statuses",
			zap.String("order_id", order.ID),
			zap.String("merchant_id", group.MerchantID),
			zap.Error(err))
	}
}

// sendReceipt emails the customer a per-merchant settlement summary.
// Best-effort: a failed email never affects the fan-out's outcome.
func (o *Orchestrator) sendReceipt(ctx context.Context, order models.Order, results []GroupResult) {
	if o.mailer == nil || order.CustomerEmail == "" {
		return
	}

	var summary strings.Builder
	for _, r := range results {
		if r.Succeeded() {
			fmt.Fprintf(&summary, "%s: %d %s confirmed. ", r.MerchantID, r.AmountCents, r.Currency)
		} else {
			fmt.Fprintf(&summary, "%s: payment pending. ", r.MerchantID)
		}
	}

	err := o.mailer.SendEmail(ctx, o.cfg.FromEmail, order.CustomerEmail, notifier.TemplateOrderReceipt, map[string]interface{}{
		"OrderID": order.ID,
		"Summary": summary.String(),
	})
	if err != nil {
		o.logger.Warn("could not send receipt email",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func orderEmail(order models.Order, evt Event) string {
	if order.CustomerEmail != "" {
		return order.CustomerEmail
	}
	return evt.CustomerEmail
}

// Package publish flips vendors to published once their onboarding
// requirements are met.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
	"spiriverse/internal/records"
)

// Gate is the unpublished -> published state machine. The transition is
// irreversible and evaluated opportunistically after any card-save event.
type Gate struct {
	store  records.Store
	gw     gateway.Gateway
	logger *zap.Logger
	now    func() time.Time
}

// NewGate builds a Gate.
func NewGate(store records.Store, gw gateway.Gateway, logger *zap.Logger) *Gate {
	if store == nil {
		panic("record store is required")
	}
	if gw == nil {
		panic("gateway is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, gw: gw, logger: logger, now: time.Now}
}

// Evaluate publishes the vendor iff it is not already published and its
// connected account reports charges_enabled. A saved payment method is not
// required: vendors may launch on a trial with no card on file.
// Re-evaluating a published vendor is a no-op.
func (g *Gate) Evaluate(ctx context.Context, vendorID string) error {
	raw, err := g.store.Get(ctx, records.ContainerMerchants, vendorID, vendorID)
	if err != nil {
		return fmt.Errorf("load vendor %s: %w", vendorID, err)
	}
	var merchant models.Merchant
	if err := json.Unmarshal(raw, &merchant); err != nil {
		return fmt.Errorf("decode vendor %s: %w", vendorID, err)
	}

	if merchant.Published() {
		return nil
	}
	if merchant.Stripe.AccountID == "" {
		g.logger.Debug("vendor has no connected account, publish deferred",
			zap.String("vendor_id", vendorID))
		return nil
	}

	path := fmt.Sprintf("/v1/accounts/%s", merchant.Stripe.AccountID)
	resp, err := g.gw.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("fetch connected account for vendor %s: %w", vendorID, err)
	}
	var account gateway.Account
	if err := gateway.Decode(resp, &account); err != nil {
		return err
	}

	if !account.ChargesEnabled {
		g.logger.Info("vendor not yet chargeable, publish deferred",
			zap.String("vendor_id", vendorID),
			zap.String("account_id", account.ID))
		return nil
	}

	publishedAt := g.now().UTC().Format(time.RFC3339)
	ops := []records.PatchOp{records.Set("/publishedAt", publishedAt)}
	if err := g.store.Patch(ctx, records.ContainerMerchants, vendorID, vendorID, ops, "publish-gate"); err != nil {
		return fmt.Errorf("publish vendor %s: %w", vendorID, err)
	}

	g.logger.Info("vendor published",
		zap.String("vendor_id", vendorID),
		zap.String("published_at", publishedAt))
	return nil
}

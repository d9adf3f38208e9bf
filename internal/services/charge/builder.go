// Package charge composes one per-merchant charge request from an order's
// line group: currency normalization, fee derivation, tax resolution and
// shipping aggregation, in that order. Each stage feeds the next; reordering
// changes the total.
package charge

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"spiriverse/internal/models"
	"spiriverse/internal/records"
	"spiriverse/internal/services/currency"
	"spiriverse/internal/services/fees"
	"spiriverse/internal/services/tax"
)

// Builder builds merchant charge requests.
type Builder struct {
	normalizer currency.Normalizer
	fees       *fees.Calculator
	tax        tax.Resolver
	store      records.Store
	logger     *zap.Logger
}

// NewBuilder wires the builder's stages.
func NewBuilder(normalizer currency.Normalizer, feeCalc *fees.Calculator, taxResolver tax.Resolver, store records.Store, logger *zap.Logger) *Builder {
	if normalizer == nil {
		panic("normalizer is required")
	}
	if feeCalc == nil {
		panic("fee calculator is required")
	}
	if taxResolver == nil {
		panic("tax resolver is required")
	}
	if store == nil {
		panic("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		normalizer: normalizer,
		fees:       feeCalc,
		tax:        taxResolver,
		store:      store,
		logger:     logger,
	}
}

// Build produces the charge request for one merchant's group on an order.
// The resolved per-line tax is persisted onto each line's first price
// snapshot before returning, so the charge metadata always matches what was
// recorded.
func (b *Builder) Build(ctx context.Context, order models.Order, merchant models.Merchant, group Group) (*Request, error) {
	if len(group.Lines) == 0 {
		return nil, ErrEmptyGroup
	}
	if order.Billing == nil {
		return nil, ErrMissingBillingAddress
	}

	// Stage 1: bring every line into the merchant's settlement currency.
	normalized, err := b.normalizer.Normalize(ctx, group.OrderLines(), merchant.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency normalization: %w", err)
	}

	// Stage 2: derive the customer charge and platform share from the
	// normalized line total.
	lineTotal := sumLineTotal(normalized)
	breakdown := b.fees.Calculate(lineTotal)

	// Stage 3: resolve tax, or synthesize zeros when the merchant has tax
	// calculation disabled.
	taxResult, err := b.resolveTax(ctx, merchant, *order.Billing, normalized)
	if err != nil {
		return nil, err
	}
	if !taxResult.Complete(normalized) {
		return nil, fmt.Errorf("%w: merchant %s", ErrTaxMappingGap, merchant.ID)
	}
	if err := b.persistLineTax(ctx, order, group, taxResult); err != nil {
		return nil, fmt.Errorf("persist line tax: %w", err)
	}

	// Stage 4: shipping, plus the same processing surcharge applied to the
	// line total. Shipping is not exempt from the card-processing fee.
	shipping := AggregateShipping(order, merchant.ID)
	shippingGrand := shipping.Total()
	if shippingGrand > 0 {
		shippingGrand += b.fees.ProcessingFee(shipping.Total())
	}

	// Stage 5: totals. The platform takes no cut of shipping, so the
	// application fee carries only the line-total share.
	req := &Request{
		AmountCents:         breakdown.CustomerChargeCents + taxResult.AmountCents + shippingGrand,
		Currency:            merchant.Currency,
		ApplicationFeeCents: breakdown.PlatformShareCents,
		Metadata: map[string]string{
			"order_id":           order.ID,
			"merchant_id":        merchant.ID,
			"tax_amount":         strconv.FormatInt(taxResult.AmountCents, 10),
			"tax_calculation_id": taxResult.CalculationID,
			"shipping_total":     strconv.FormatInt(shippingGrand, 10),
		},
	}

	b.logger.Info("built merchant charge",
		zap.String("order_id", order.ID),
		zap.String("merchant_id", merchant.ID),
		zap.Int64("line_total_cents", lineTotal),
		zap.Int64("tax_cents", taxResult.AmountCents),
		zap.Int64("shipping_cents", shippingGrand),
		zap.Int64("amount_cents", req.AmountCents))
	return req, nil
}

func (b *Builder) resolveTax(ctx context.Context, merchant models.Merchant, billing models.Address, lines []models.OrderLine) (*tax.Result, error) {
	enabled, err := b.tax.Enabled(ctx, merchant.Stripe.AccountID)
	if err != nil {
		return nil, fmt.Errorf("tax settings for merchant %s: %w", merchant.ID, err)
	}
	if !enabled {
		return tax.Zero(lines, merchant.Currency), nil
	}
	result, err := b.tax.Resolve(ctx, merchant.Stripe.AccountID, billing, lines, merchant.Currency)
	if err != nil {
		return nil, fmt.Errorf("tax resolution for merchant %s: %w", merchant.ID, err)
	}
	return result, nil
}

// persistLineTax annotates each line's first price snapshot with its resolved
// tax amount. This side effect must complete before the charge is confirmed.
func (b *Builder) persistLineTax(ctx context.Context, order models.Order, group Group, result *tax.Result) error {
	var ops []records.PatchOp
	for _, il := range group.Lines {
		if len(il.Line.PriceLog) == 0 {
			continue
		}
		amount := result.LineTaxes[il.Line.ID]
		base := fmt.Sprintf("/lines/%d/priceLog/0", il.Index)
		ops = append(ops,
			records.Set(base+"/taxCents", amount),
			records.Set(base+"/taxCurrency", result.Currency),
		)
	}
	if len(ops) == 0 {
		return nil
	}
	return b.store.Patch(ctx, records.ContainerOrders, order.ID, order.ID, ops, "charge-builder")
}

// sumLineTotal sums the authoritative first-snapshot price times quantity
// across the normalized lines.
func sumLineTotal(lines []models.OrderLine) int64 {
	var total int64
	for _, line := range lines {
		if len(line.PriceLog) > 0 {
			total += line.PriceLog[0].Price.AmountCents * line.Quantity()
			continue
		}
		total += line.Price.AmountCents * line.Quantity()
	}
	return total
}

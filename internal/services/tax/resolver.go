// Package tax resolves per-line sales tax through the payment provider's tax
// product, with an all-zero fallback for merchants that have it disabled.
package tax

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
)

var ErrIncompleteMapping = errors.New("tax calculation missing line mapping")

// Result is the tax outcome for one merchant's line group. Every line in the
// group has an entry in LineTaxes; a charge must not proceed otherwise.
type Result struct {
	AmountCents   int64
	Currency      string
	CalculationID string
	LineTaxes     map[string]int64
}

// Complete reports whether every given line has a tax entry.
func (r *Result) Complete(lines []models.OrderLine) bool {
	for _, line := range lines {
		if _, ok := r.LineTaxes[line.ID]; !ok {
			return false
		}
	}
	return true
}

// Resolver computes tax for a merchant's line group.
type Resolver interface {
	// Enabled reports whether tax calculation is usable for the connected
	// account.
	Enabled(ctx context.Context, accountID string) (bool, error)

	// Resolve runs a full tax calculation keyed on the billing address.
	Resolve(ctx context.Context, accountID string, billing models.Address, lines []models.OrderLine, currency string) (*Result, error)
}

// Zero synthesizes an all-zero result in the given currency, so downstream
// code sees a uniform shape when tax is unavailable for a merchant.
func Zero(lines []models.OrderLine, currency string) *Result {
	taxes := make(map[string]int64, len(lines))
	for _, line := range lines {
		taxes[line.ID] = 0
	}
	return &Result{
		AmountCents: 0,
		Currency:    currency,
		LineTaxes:   taxes,
	}
}

type resolver struct {
	gw     gateway.Gateway
	logger *zap.Logger
}

// NewResolver builds the gateway-backed resolver.
func NewResolver(gw gateway.Gateway, logger *zap.Logger) Resolver {
	if gw == nil {
		panic("gateway is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resolver{gw: gw, logger: logger}
}

func (r *resolver) Enabled(ctx context.Context, accountID string) (bool, error) {
	scoped := r.gw.AsConnectedAccount(accountID)
	resp, err := scoped.Call(ctx, http.MethodGet, "/v1/tax/settings", nil)
	if err != nil {
		// Accounts without the tax product return an error here; that is
		// the disabled case, not a failure.
		r.logger.Debug("tax settings unavailable",
			zap.String("account", accountID), zap.Error(err))
		return false, nil
	}

	var settings gateway.TaxSettings
	if err := gateway.Decode(resp, &settings); err != nil {
		return false, err
	}
	return settings.Status == gateway.TaxSettingsActive, nil
}

func (r *resolver) Resolve(ctx context.Context, accountID string, billing models.Address, lines []models.OrderLine, currency string) (*Result, error) {
	params := gateway.Params{
		"currency":                               currency,
		"customer_details[address][line1]":       billing.Line1,
		"customer_details[address][city]":        billing.City,
		"customer_details[address][state]":       billing.State,
		"customer_details[address][postal_code]": billing.PostalCode,
		"customer_details[address][country]":     billing.Country,
		"customer_details[address_source]":       "billing",
		"expand[]":                               "line_items",
	}
	for i, line := range lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		params[prefix+"[amount]"] = strconv.FormatInt(lineAmount(line), 10)
		params[prefix+"[quantity]"] = strconv.FormatInt(line.Quantity(), 10)
		params[prefix+"[reference]"] = line.ID
	}

	scoped := r.gw.AsConnectedAccount(accountID)
	resp, err := scoped.Call(ctx, http.MethodPost, "/v1/tax/calculations", params)
	if err != nil {
		return nil, fmt.Errorf("tax calculation for account %s: %w", accountID, err)
	}

	var calc gateway.TaxCalculation
	if err := gateway.Decode(resp, &calc); err != nil {
		return nil, err
	}

	taxes := make(map[string]int64, len(calc.LineItems.Data))
	for _, item := range calc.LineItems.Data {
		taxes[item.Reference] = item.AmountTax
	}

	result := &Result{
		AmountCents:   calc.TaxAmountExclusive,
		Currency:      currency,
		CalculationID: calc.ID,
		LineTaxes:     taxes,
	}
	if !result.Complete(lines) {
		return nil, fmt.Errorf("%w: calculation %s", ErrIncompleteMapping, calc.ID)
	}
	return result, nil
}

// lineAmount is the taxable amount of a line: the authoritative first price
// snapshot times quantity.
func lineAmount(line models.OrderLine) int64 {
	if len(line.PriceLog) == 0 {
		return line.Price.AmountCents * line.Quantity()
	}
	return line.PriceLog[0].Price.AmountCents * line.Quantity()
}

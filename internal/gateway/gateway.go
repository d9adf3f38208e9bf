// Package gateway wraps the payment provider's REST surface behind a generic
// call contract, with optional connected-account scoping.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Params are form/query parameters for a gateway call. Nested fields use the
// provider's bracket syntax, e.g. "metadata[platform_customer_id]".
type Params map[string]string

// Response is the raw result of a gateway call.
type Response struct {
	Status int
	Data   json.RawMessage
}

// Gateway is the payment-provider collaborator.
type Gateway interface {
	// Call performs one request against the provider's REST surface.
	Call(ctx context.Context, method, path string, params Params) (*Response, error)

	// AsConnectedAccount returns a gateway whose calls execute in the given
	// connected account's context.
	AsConnectedAccount(accountID string) Gateway
}

// Decode unmarshals a response body into out.
func Decode(resp *Response, out interface{}) error {
	if resp == nil || len(resp.Data) == 0 {
		return fmt.Errorf("empty gateway response")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// Customer is the subset of the provider's customer object the core reads.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CustomerList is a paged customer listing.
type CustomerList struct {
	Data []Customer `json:"data"`
}

// CardDetails describes the card behind a payment method.
type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PaymentMethod is the subset of the provider's payment method object the
// core reads.
type PaymentMethod struct {
	ID       string      `json:"id"`
	Customer string      `json:"customer"`
	Card     CardDetails `json:"card"`
}

// PaymentIntent is the subset of the provider's payment intent object the
// core reads.
type PaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// Account is the subset of the provider's account object the publish gate
// reads.
type Account struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// TaxSettings is the provider's tax configuration for an account.
type TaxSettings struct {
	Status string `json:"status"`
}

// TaxSettingsActive is the status value meaning tax calculation is usable.
const TaxSettingsActive = "active"

// TaxLineItem is one line of a provider tax calculation.
type TaxLineItem struct {
	Reference string `json:"reference"`
	AmountTax int64  `json:"amount_tax"`
}

// TaxCalculation is the subset of the provider's tax calculation the core
// reads.
type TaxCalculation struct {
	ID                 string `json:"id"`
	TaxAmountExclusive int64  `json:"tax_amount_exclusive"`
	LineItems          struct {
		Data []TaxLineItem `json:"data"`
	} `json:"line_items"`
}

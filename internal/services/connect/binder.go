// Package connect makes platform-authorized payment methods chargeable
// against merchant connected accounts.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
)

var ErrNoConnectedAccount = errors.New("merchant has no connected account")

// BoundMethod is the result of binding: identifiers valid in the connected
// account's context.
type BoundMethod struct {
	CustomerID      string
	PaymentMethodID string
	Attached        bool
}

// Binder clones platform payment methods onto connected accounts.
//
// The steps are not naturally idempotent: repeated calls create duplicate
// clones. Callers must invoke Bind at most once per fan-out attempt per
// merchant group.
type Binder struct {
	gw     gateway.Gateway
	logger *zap.Logger
}

// NewBinder builds a Binder.
func NewBinder(gw gateway.Gateway, logger *zap.Logger) *Binder {
	if gw == nil {
		panic("gateway is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{gw: gw, logger: logger}
}

// Bind finds or creates the buyer's customer record on the merchant's
// connected account, clones the payment method onto it, and best-effort
// attaches the clone to that customer.
func (b *Binder) Bind(ctx context.Context, merchant models.Merchant, platformCustomerID, email, paymentMethodID string) (*BoundMethod, error) {
	if merchant.Stripe.AccountID == "" {
		return nil, fmt.Errorf("%w: merchant %s", ErrNoConnectedAccount, merchant.ID)
	}
	scoped := b.gw.AsConnectedAccount(merchant.Stripe.AccountID)

	customerID, err := b.findOrCreateCustomer(ctx, scoped, email, platformCustomerID)
	if err != nil {
		return nil, err
	}

	// The clone is authorized by the PLATFORM customer id even though the
	// call executes in the connected account's context: a payment method
	// attached to customer X on the platform can only be cloned by
	// referencing X. Passing the connected customer id here fails.
	resp, err := scoped.Call(ctx, http.MethodPost, "/v1/payment_methods", gateway.Params{
		"customer":       platformCustomerID,
		"payment_method": paymentMethodID,
	})
	if err != nil {
		return nil, fmt.Errorf("clone payment method for merchant %s: %w", merchant.ID, err)
	}
	var clone gateway.PaymentMethod
	if err := gateway.Decode(resp, &clone); err != nil {
		return nil, err
	}

	bound := &BoundMethod{CustomerID: customerID, PaymentMethodID: clone.ID}

	// Attaching lets the card show up on the connected customer for later
	// use, but a detached clone is still chargeable for this one-off
	// payment, so failure here is non-fatal.
	attachPath := fmt.Sprintf("/v1/payment_methods/%s/attach", clone.ID)
	if _, err := scoped.Call(ctx, http.MethodPost, attachPath, gateway.Params{"customer": customerID}); err != nil {
		b.logger.Warn("could not attach cloned payment method",
			zap.String("merchant_id", merchant.ID),
			zap.String("payment_method_id", clone.ID),
			zap.Error(err))
	} else {
		bound.Attached = true
	}

	return bound, nil
}

func (b *Binder) findOrCreateCustomer(ctx context.Context, scoped gateway.Gateway, email, platformCustomerID string) (string, error) {
	resp, err := scoped.Call(ctx, http.MethodGet, "/v1/customers", gateway.Params{
		"email": email,
		"limit": "1",
	})
	if err != nil {
		return "", fmt.Errorf("search connected customer: %w", err)
	}
	var list gateway.CustomerList
	if err := gateway.Decode(resp, &list); err != nil {
		return "", err
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	resp, err = scoped.Call(ctx, http.MethodPost, "/v1/customers", gateway.Params{
		"email":                          email,
		"metadata[platform_customer_id]": platformCustomerID,
	})
	if err != nil {
		return "", fmt.Errorf("create connected customer: %w", err)
	}
	var created gateway.Customer
	if err := gateway.Decode(resp, &created); err != nil {
		return "", err
	}

	b.logger.Info("created connected customer",
		zap.String("customer_id", created.ID),
		zap.String("email", email))
	return created.ID, nil
}

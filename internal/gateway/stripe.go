package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/form"
	"go.uber.org/zap"
)

type stripeGateway struct {
	backend stripe.Backend
	key     string
	account string
	logger  *zap.Logger
}

// NewStripe builds the Stripe-backed gateway. Calls go through the raw
// backend so the generic method/path contract is preserved; typed objects are
// decoded from the raw response by callers.
func NewStripe(key string, logger *zap.Logger) Gateway {
	if key == "" {
		panic("stripe key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stripeGateway{
		backend: stripe.GetBackend(stripe.APIBackend),
		key:     key,
		logger:  logger,
	}
}

func (g *stripeGateway) AsConnectedAccount(accountID string) Gateway {
	return &stripeGateway{
		backend: g.backend,
		key:     g.key,
		account: accountID,
		logger:  g.logger,
	}
}

func (g *stripeGateway) Call(ctx context.Context, method, path string, params Params) (*Response, error) {
	body := &form.Values{}
	for k, v := range params {
		body.Add(k, v)
	}

	sp := &stripe.Params{Context: ctx}
	if g.account != "" {
		sp.SetStripeAccount(g.account)
	}

	var res stripe.APIResource
	err := g.backend.CallRaw(method, path, g.key, body, sp, &res)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			g.logger.Warn("gateway call rejected",
				zap.String("method", method),
				zap.String("path", path),
				zap.String("account", g.account),
				zap.String("code", string(stripeErr.Code)),
				zap.Int("status", stripeErr.HTTPStatusCode))
			return &Response{Status: stripeErr.HTTPStatusCode}, fmt.Errorf("gateway %s %s: %w", method, path, err)
		}
		return nil, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}

	resp := &Response{}
	if res.LastResponse != nil {
		resp.Status = res.LastResponse.StatusCode
		resp.Data = res.LastResponse.RawJSON
	}
	return resp, nil
}

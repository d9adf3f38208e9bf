// Package fx provides currency conversion against an external rates API.
package fx

import (
	"context"
	"errors"
	"math"
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrRateUnavailable = errors.New("exchange rate unavailable")
)

// Converter converts a minor-unit amount between currencies.
type Converter interface {
	Convert(ctx context.Context, amountCents int64, from, to string) (int64, error)
}

// RateSource fetches a single exchange rate.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

type converter struct {
	rates RateSource
}

// NewConverter builds a Converter on top of a rate source.
func NewConverter(rates RateSource) Converter {
	if rates == nil {
		panic("rate source is required")
	}
	return &converter{rates: rates}
}

func (c *converter) Convert(ctx context.Context, amountCents int64, from, to string) (int64, error) {
	if from == to {
		return amountCents, nil
	}
	rate, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, ErrRateUnavailable
	}
	return int64(math.Round(float64(amountCents) * rate)), nil
}

// Package currency normalizes order-line pricing into a merchant's
// settlement currency.
package currency

import (
	"context"
	"fmt"

	"spiriverse/internal/fx"
	"spiriverse/internal/models"
)

// Normalizer converts a group of order lines into a target currency.
type Normalizer interface {
	// Normalize returns a converted copy of the lines. The canonical lines
	// are never mutated: the order as persisted and the order as charged
	// are distinct views.
	Normalize(ctx context.Context, lines []models.OrderLine, target string) ([]models.OrderLine, error)
}

type normalizer struct {
	converter fx.Converter
}

// NewNormalizer builds a Normalizer on top of the fx converter.
func NewNormalizer(converter fx.Converter) Normalizer {
	if converter == nil {
		panic("fx converter is required")
	}
	return &normalizer{converter: converter}
}

func (n *normalizer) Normalize(ctx context.Context, lines []models.OrderLine, target string) ([]models.OrderLine, error) {
	out := make([]models.OrderLine, len(lines))
	for i, line := range lines {
		converted, err := n.normalizeLine(ctx, line, target)
		if err != nil {
			return nil, fmt.Errorf("normalize line %s: %w", line.ID, err)
		}
		out[i] = converted
	}
	return out, nil
}

func (n *normalizer) normalizeLine(ctx context.Context, line models.OrderLine, target string) (models.OrderLine, error) {
	// Copy the price log so conversions never alias the caller's slice.
	log := make([]models.PriceSnapshot, len(line.PriceLog))
	copy(log, line.PriceLog)
	line.PriceLog = log

	if line.Price.Currency != "" && line.Price.Currency != target {
		amount, err := n.converter.Convert(ctx, line.Price.AmountCents, line.Price.Currency, target)
		if err != nil {
			return models.OrderLine{}, err
		}
		line.Price = models.Money{AmountCents: amount, Currency: target}
	}

	// Only the first snapshot feeds totals; later history stays in its
	// original currency.
	if len(line.PriceLog) > 0 {
		first := line.PriceLog[0]
		if first.Price.Currency != "" && first.Price.Currency != target {
			amount, err := n.converter.Convert(ctx, first.Price.AmountCents, first.Price.Currency, target)
			if err != nil {
				return models.OrderLine{}, err
			}
			first.Price = models.Money{AmountCents: amount, Currency: target}
			line.PriceLog[0] = first
		}
	}

	return line, nil
}

// Package fees computes the platform and processing fee splits applied to
// merchant charges.
package fees

import "math"

// Calculator derives the fee splits for a monetary amount. All amounts are
// minor units.
type Calculator struct {
	processingBaseCents int64
	processingRate      float64
	platformRate        float64
}

// NewCalculator returns a calculator with the standard rates: 2.9% + 30c
// card processing, 15% platform commission.
func NewCalculator() *Calculator {
	return &Calculator{
		processingBaseCents: 30,
		processingRate:      0.029,
		platformRate:        0.15,
	}
}

// NewCalculatorWithRates returns a calculator with explicit rates.
func NewCalculatorWithRates(processingBaseCents int64, processingRate, platformRate float64) *Calculator {
	return &Calculator{
		processingBaseCents: processingBaseCents,
		processingRate:      processingRate,
		platformRate:        platformRate,
	}
}

// Breakdown is the fee decomposition of one amount.
type Breakdown struct {
	// BaseCents is the amount the breakdown was computed from.
	BaseCents int64
	// ProcessingFeeCents is the card-processing surcharge passed to the
	// customer.
	ProcessingFeeCents int64
	// CustomerChargeCents is what the customer pays for the base amount:
	// base plus processing surcharge.
	CustomerChargeCents int64
	// PlatformShareCents is the platform's commission, collected as the
	// application fee on the connected-account charge.
	PlatformShareCents int64
	// MerchantPayoutCents is what the merchant keeps of the base amount.
	MerchantPayoutCents int64
}

// Calculate computes the full breakdown for amountCents.
func (c *Calculator) Calculate(amountCents int64) Breakdown {
	processing := c.ProcessingFee(amountCents)
	platform := int64(math.Round(float64(amountCents) * c.platformRate))
	return Breakdown{
		BaseCents:           amountCents,
		ProcessingFeeCents:  processing,
		CustomerChargeCents: amountCents + processing,
		PlatformShareCents:  platform,
		MerchantPayoutCents: amountCents - platform,
	}
}

// ProcessingFee computes only the card-processing surcharge for amountCents.
// A zero amount carries no surcharge.
func (c *Calculator) ProcessingFee(amountCents int64) int64 {
	if amountCents == 0 {
		return 0
	}
	return c.processingBaseCents + int64(math.Round(float64(amountCents)*c.processingRate))
}

package charge

import "spiriverse/internal/models"

// AggregateShipping sums the shipping subtotal and tax across all of one
// merchant's shipments on an order. Digital-only orders skip the step
// entirely and contribute zero regardless of the shipment list.
func AggregateShipping(order models.Order, merchantID string) ShippingTotals {
	var totals ShippingTotals
	if order.DigitalOnly {
		return totals
	}
	for _, shipment := range order.Shipments {
		if shipment.SendFromVendorID != merchantID {
			continue
		}
		pricing := shipment.SuggestedConfiguration.Pricing
		totals.SubtotalCents += pricing.SubtotalCents
		totals.TaxCents += pricing.TaxCents
	}
	return totals
}

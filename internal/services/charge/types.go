package charge

import "spiriverse/internal/models"

// IndexedLine pairs an order line with its position in the order document,
// so persisted annotations can address the line by path.
type IndexedLine struct {
	Index int
	Line  models.OrderLine
}

// Group is one merchant's slice of an order.
type Group struct {
	MerchantID string
	Lines      []IndexedLine
}

// OrderLines returns just the lines of the group.
func (g Group) OrderLines() []models.OrderLine {
	out := make([]models.OrderLine, len(g.Lines))
	for i, il := range g.Lines {
		out[i] = il.Line
	}
	return out
}

// Request is the composed charge for one merchant group. It is ephemeral:
// built once per group per event and never persisted or reused. CustomerID
// and PaymentMethodID are filled in after the payment method is bound to the
// merchant's connected account.
type Request struct {
	AmountCents         int64
	Currency            string
	CustomerID          string
	PaymentMethodID     string
	ApplicationFeeCents int64
	Metadata            map[string]string
}

// ShippingTotals is the summed shipping cost of one merchant's shipments.
type ShippingTotals struct {
	SubtotalCents int64
	TaxCents      int64
}

// Total returns subtotal plus tax.
func (s ShippingTotals) Total() int64 {
	return s.SubtotalCents + s.TaxCents
}

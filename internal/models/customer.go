package models

// SavedCard is one entry of a customer's saved-card list. Cards are
// deduplicated by brand + last4 when mirrored from a gateway payment method.
type SavedCard struct {
	PaymentMethodID string `json:"paymentMethodId"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4"`
	ExpMonth        int64  `json:"expMonth,omitempty"`
	ExpYear         int64  `json:"expYear,omitempty"`
}

// Customer is the platform-side customer document.
type Customer struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	StripeCustomerID string      `json:"stripeCustomerId"`
	SavedCards       []SavedCard `json:"savedCards,omitempty"`
}

// HasCard reports whether a card with the same brand and last4 is already on
// the saved-card list.
func (c Customer) HasCard(brand, last4 string) bool {
	for _, sc := range c.SavedCards {
		if sc.Brand == brand && sc.Last4 == last4 {
			return true
		}
	}
	return false
}

// ReadingRequest is a pending practitioner service request awaiting a saved
// payment method.
type ReadingRequest struct {
	ID              string `json:"id"`
	CustomerID      string `json:"customerId"`
	Status          string `json:"status"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
}

// Refund is an approved refund that may carry a pre-selected return-shipping
// rate to purchase a label from.
type Refund struct {
	ID            string `json:"id"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	ReturnRateID  string `json:"returnRateId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

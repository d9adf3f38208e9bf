package models

import "time"

// PlatformMerchantID is the synthetic merchant id used for lines the platform
// sells under its own identity. Charges for this merchant go straight to the
// platform account: no currency conversion, no connected-account cloning, no
// application fee.
const PlatformMerchantID = "SPIRIVERSE"

// MerchantStripe holds the merchant's payment-gateway identifiers.
type MerchantStripe struct {
	// AccountID is the connected account funds are routed to. A merchant
	// without one cannot receive a charge.
	AccountID string `json:"accountId"`
	// CustomerID is the merchant's own customer record on the platform
	// account, used to bill the merchant's subscription.
	CustomerID string `json:"customerId,omitempty"`
}

// MerchantSubscription tracks the merchant's platform-subscription state.
type MerchantSubscription struct {
	CardStatus                   string `json:"card_status,omitempty"`
	BillingModel                 string `json:"billingModel,omitempty"`
	TrialAuthHoldPaymentIntentID string `json:"trialAuthHoldPaymentIntentId,omitempty"`
}

// Merchant is a vendor selling on the marketplace.
type Merchant struct {
	ID           string               `json:"id"`
	Name         string               `json:"name,omitempty"`
	Currency     string               `json:"currency"`
	Stripe       MerchantStripe       `json:"stripe"`
	Subscription MerchantSubscription `json:"subscription"`
	// PublishedAt is set exactly once, by the publish gate, and never
	// cleared afterwards.
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Published reports whether the merchant has passed the publish gate.
func (m Merchant) Published() bool {
	return m.PublishedAt != nil
}

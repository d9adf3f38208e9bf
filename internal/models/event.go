package models

import "time"

// AuthorizedEvent is the stored copy of an inbound payment-method-authorized
// event. Events are persisted on receipt so they can be inspected and
// replayed from the admin surface.
type AuthorizedEvent struct {
	ID                 string            `json:"id"`
	PlatformCustomerID string            `json:"platformCustomerId"`
	PaymentMethodID    string            `json:"paymentMethodId"`
	CustomerEmail      string            `json:"customerEmail"`
	Metadata           map[string]string `json:"metadata"`
	ReceivedAt         time.Time         `json:"receivedAt"`
}

// ChargeEvent is the per-merchant audit record written during a fan-out. One
// record is created per merchant group per event, success or failure.
type ChargeEvent struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	OrderID         string    `json:"orderId"`
	MerchantID      string    `json:"merchantId"`
	Outcome         string    `json:"outcome"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	AmountCents     int64     `json:"amountCents,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	FailureReason   string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Charge event outcomes.
const (
	ChargeOutcomeSucceeded = "succeeded"
	ChargeOutcomeFailed    = "failed"
)

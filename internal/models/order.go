package models

import "time"

// OrderTarget identifies what an order's payment settles.
type OrderTarget string

const (
	TargetNormal               OrderTarget = "normal"
	TargetMerchantSubscription OrderTarget = "merchant_subscription"
	TargetReturnShipping       OrderTarget = "return_shipping"
)

// Paid status values recorded on order lines. The log is append-only; entries
// are never edited or removed.
const (
	PaidStatusAwaitingCharge = "AWAITING_CHARGE"
	PaidStatusCharged        = "CHARGED"
	PaidStatusChargeFailed   = "CHARGE_FAILED"
)

// Address is a billing or shipping address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// PriceSnapshot is one entry of a line's append-only price history. The first
// entry is the customer-facing source of truth used for totals. Tax resolved
// during charging is annotated onto that first entry.
type PriceSnapshot struct {
	Price       Money  `json:"price"`
	Quantity    int64  `json:"quantity"`
	TaxCents    *int64 `json:"taxCents,omitempty"`
	TaxCurrency string `json:"taxCurrency,omitempty"`
	RecordedAt  string `json:"recordedAt,omitempty"`
}

// PaidStatusEntry is one entry of a line's append-only charge-state log.
type PaidStatusEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Note   string    `json:"note,omitempty"`
}

// OrderLine is a single purchasable item on an order. Every line belongs to
// exactly one merchant. Price may temporarily diverge from PriceLog[0] during
// promotional overrides and must be restored from PriceLog[0] before any
// charge is computed.
type OrderLine struct {
	ID            string            `json:"id"`
	MerchantID    string            `json:"merchantId"`
	Descriptor    string            `json:"descriptor"`
	Price         Money             `json:"price"`
	PriceLog      []PriceSnapshot   `json:"priceLog"`
	PaidStatusLog []PaidStatusEntry `json:"paidStatusLog"`
}

// Quantity returns the authoritative quantity from the first price snapshot,
// defaulting to one when the log is empty.
func (l OrderLine) Quantity() int64 {
	if len(l.PriceLog) == 0 || l.PriceLog[0].Quantity == 0 {
		return 1
	}
	return l.PriceLog[0].Quantity
}

// ShipmentPricing is the priced configuration snapshot carried by a shipment.
type ShipmentPricing struct {
	SubtotalCents int64  `json:"subtotalCents"`
	TaxCents      int64  `json:"taxCents"`
	Currency      string `json:"currency"`
}

// Shipment is one physical parcel of an order, sent from one merchant.
type Shipment struct {
	ID                     string `json:"id"`
	SendFromVendorID       string `json:"sendFromVendorId"`
	SuggestedConfiguration struct {
		Pricing ShipmentPricing `json:"pricing"`
	} `json:"suggestedConfiguration"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	LabelID        string `json:"labelId,omitempty"`
}

// Order is the customer-facing order document. Orders are never destroyed,
// only soft-archived.
type Order struct {
	ID            string      `json:"id"`
	CustomerEmail string      `json:"customerEmail"`
	Target        OrderTarget `json:"target"`
	Billing       *Address    `json:"billing,omitempty"`
	Lines         []OrderLine `json:"lines"`
	Shipments     []Shipment  `json:"shipments,omitempty"`
	DigitalOnly   bool        `json:"digitalOnly"`
	ArchivedAt    *time.Time  `json:"archivedAt,omitempty"`
}

package models

// Money is a monetary amount in the currency's minor unit (cents for USD).
// Amounts are kept in minor units end to end so they can be handed to the
// payment gateway without rounding.
type Money struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.AmountCents == 0
}

package fanout

// GroupResult is the outcome of one merchant group's charge attempt. A
// failed group never rolls back or blocks the other groups: each merchant is
// an independent sub-transaction of the fan-out.
type GroupResult struct {
	MerchantID      string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	Err             error
}

// Succeeded reports whether the group's charge was confirmed.
func (r GroupResult) Succeeded() bool {
	return r.Err == nil
}

// FailureReason returns the error text, or empty for a successful group.
func (r GroupResult) FailureReason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

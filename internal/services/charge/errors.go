package charge

import "errors"

var (
	ErrEmptyGroup            = errors.New("merchant group has no lines")
	ErrMissingBillingAddress = errors.New("order has no billing address")
	// ErrTaxMappingGap means a line in the group has no resolved tax
	// amount. Charging without a verified tax amount is disallowed; better
	// to fail than under- or over-collect.
	ErrTaxMappingGap = errors.New("tax mapping incomplete for merchant group")
)

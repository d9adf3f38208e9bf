package fanout

import "errors"

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNoLines        = errors.New("order has no lines")
	ErrUnknownPurpose = errors.New("unknown event purpose")
)

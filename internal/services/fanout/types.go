package fanout

import (
	"fmt"
	"time"
)

// Event is one payment-method-authorized event, with its purpose already
// parsed into the matching payload type.
type Event struct {
	ID                 string
	PlatformCustomerID string
	PaymentMethodID    string
	CustomerEmail      string
	Purpose            Purpose
	ReceivedAt         time.Time
}

// Purpose identifies what a payment authorization settles. Exactly one
// payload type exists per known purpose; dispatch happens in a single type
// switch instead of branching on raw metadata strings.
type Purpose interface {
	purposeKind() string
}

// OrderPayment is the regular-order fan-out purpose.
type OrderPayment struct {
	OrderID string
}

// SubscriptionCardSave is a merchant saving its platform-subscription card.
type SubscriptionCardSave struct {
	VendorID string
}

// ReturnShippingPayment pays for a return-shipping label on an approved
// refund.
type ReturnShippingPayment struct {
	OrderID  string
	RefundID string
}

// ReadingRequestSave binds a saved card to a pending practitioner request.
type ReadingRequestSave struct {
	RequestID string
}

func (OrderPayment) purposeKind() string          { return PurposeOrderPayment }
func (SubscriptionCardSave) purposeKind() string  { return PurposeSubscriptionCard }
func (ReturnShippingPayment) purposeKind() string { return PurposeReturnShipping }
func (ReadingRequestSave) purposeKind() string    { return PurposeReadingRequest }

// Purpose metadata values carried on inbound events.
const (
	PurposeOrderPayment     = "order_payment"
	PurposeSubscriptionCard = "merchant_subscription"
	PurposeReturnShipping   = "return_shipping"
	PurposeReadingRequest   = "reading_request"
)

// ParsePurpose builds the typed purpose from event metadata. Each purpose
// names the metadata fields it requires; anything missing is an error rather
// than a silently empty field.
func ParsePurpose(metadata map[string]string) (Purpose, error) {
	kind := metadata["purpose"]
	switch kind {
	case PurposeOrderPayment:
		orderID := metadata["order_id"]
		if orderID == "" {
			return nil, fmt.Errorf("%w: order_payment needs order_id", ErrUnknownPurpose)
		}
		return OrderPayment{OrderID: orderID}, nil

	case PurposeSubscriptionCard:
		vendorID := metadata["vendor_id"]
		if vendorID == "" {
			return nil, fmt.Errorf("%w: merchant_subscription needs vendor_id", ErrUnknownPurpose)
		}
		return SubscriptionCardSave{VendorID: vendorID}, nil

	case PurposeReturnShipping:
		orderID, refundID := metadata["order_id"], metadata["refund_id"]
		if orderID == "" || refundID == "" {
			return nil, fmt.Errorf("%w: return_shipping needs order_id and refund_id", ErrUnknownPurpose)
		}
		return ReturnShippingPayment{OrderID: orderID, RefundID: refundID}, nil

	case PurposeReadingRequest:
		requestID := metadata["request_id"]
		if requestID == "" {
			return nil, fmt.Errorf("%w: reading_request needs request_id", ErrUnknownPurpose)
		}
		return ReadingRequestSave{RequestID: requestID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, kind)
	}
}

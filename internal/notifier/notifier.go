// Package notifier sends templated transactional email. Sends are always
// best-effort for callers: a failed email must never abort the transaction
// that triggered it.
package notifier

import (
	"context"
	"fmt"
)

// Template keys known to the sender.
const (
	TemplateOrderReceipt = "order_receipt"
	TemplateReturnLabel  = "return_label"
)

// Notifier delivers a templated email.
type Notifier interface {
	SendEmail(ctx context.Context, from, to, templateKey string, data map[string]interface{}) error
}

var templates = map[string]struct {
	subject string
	body    string
}{
	TemplateOrderReceipt: {
		subject: "Your order receipt",
		body: "<p>Thanks for your order {{.OrderID}}.</p>" +
			"<p>{{.Summary}}</p>",
	},
	TemplateReturnLabel: {
		subject: "Your return shipping label",
		body: "<p>Your return label for order {{.OrderID}} is ready.</p>" +
			"<p>Tracking number: {{.TrackingNumber}}</p>" +
			"<p><a href=\"{{.LabelURL}}\">Download label (PDF)</a></p>",
	},
}

func lookupTemplate(key string) (subject, body string, err error) {
	tpl, ok := templates[key]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", key)
	}
	return tpl.subject, tpl.body, nil
}

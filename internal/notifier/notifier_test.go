package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupTemplate(t *testing.T) {
	for _, key := range []string{TemplateOrderReceipt, TemplateReturnLabel} {
		subject, body, err := lookupTemplate(key)
		require.NoError(t, err, key)
		assert.NotEmpty(t, subject)
		assert.NotEmpty(t, body)
	}

	_, _, err := lookupTemplate("newsletter")
	assert.ErrorContains(t, err, "unknown email template")
}

func TestNewSMTPNotifier(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPConfig{Port: "587"}, nil)
	assert.ErrorContains(t, err, "host")

	_, err = NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com"}, nil)
	assert.ErrorContains(t, err, "port")

	n, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: "587"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, n)
}

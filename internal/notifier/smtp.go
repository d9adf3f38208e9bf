package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"go.uber.org/zap"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

type smtpNotifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTPNotifier builds the SMTP-backed notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) (Notifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host not set")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("smtp port not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &smtpNotifier{cfg: cfg, logger: logger}, nil
}

func (n *smtpNotifier) SendEmail(ctx context.Context, from, to, templateKey string, data map[string]interface{}) error {
	subject, body, err := lookupTemplate(templateKey)
	if err != nil {
		return err
	}

	tpl, err := template.New(templateKey).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", templateKey, err)
	}
	var rendered bytes.Buffer
	if err := tpl.Execute(&rendered, data); err != nil {
		return fmt.Errorf("render template %s: %w", templateKey, err)
	}

	msg := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			rendered.String(),
	)

	addr := fmt.Sprintf("%s:%s", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	n.logger.Info("sent email",
		zap.String("to", to),
		zap.String("template", templateKey))
	return nil
}

// internal/services/mailer.go
package services

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/provenance-backend/internal/config"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// NewMailer returns an SMTP mailer, or a logging one when SMTP is not configured.
func NewMailer(cfg config.EmailConfig) Mailer {
	if cfg.SMTPHost == "" {
		return LogMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

type SMTPMailer struct {
	cfg config.EmailConfig
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)

	from := fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.FromEmail)
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, mime.QEncoding.Encode("utf-8", subject), html,
	))

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	return smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{to}, msg)
}

// LogMailer only logs outgoing mail.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, html string) error {
	logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not configured, skipping send")
	return nil
}

// MemoryMailer records sent mail in memory.
type MemoryMailer struct {
	mu   sync.Mutex
	Sent []SentMail
}

type SentMail struct {
	To      string
	Subject string
	HTML    string
}

func (m *MemoryMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

// Package notify delivers transactional email and WhatsApp messages.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Email is a single HTML message; the plain-text part is derived from HTML.
type Email struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPConfig configures SMTPMailer. An incomplete config logs mails instead of sending.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	FromName string
}

func (c SMTPConfig) complete() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != ""
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	cfg  SMTPConfig
	send sendFunc
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

const boundary = "----=_RENTAL_EMAIL_BOUNDARY"

var blankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)

var textPolicy = bluemonday.StrictPolicy()

// PlainText strips markup from an HTML body.
func PlainText(htmlBody string) string {
	s := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "</p>", "</p>\n", "</li>", "</li>\n", "</h2>", "</h2>\n").Replace(htmlBody)
	s = html.UnescapeString(textPolicy.Sanitize(s))
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
}

// Build renders the multipart/alternative MIME message.
func (m *SMTPMailer) Build(e Email) []byte {
	from := fmt.Sprintf("%s <%s>", sanitizeHeader(m.cfg.FromName), m.cfg.Username)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeHeader(e.To)))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeHeader(e.Subject)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary))

	sb.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(PlainText(e.HTML) + "\r\n")

	sb.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	sb.WriteString(e.HTML + "\r\n")

	sb.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return []byte(sb.String())
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("email %q has no recipient", e.Subject)
	}
	if !m.cfg.complete() {
		slog.InfoContext(ctx, "[MOCK EMAIL]", slog.String("to", e.To), slog.String("subject", e.Subject))
		return nil
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.Username, []string{e.To}, m.Build(e)); err != nil {
		return fmt.Errorf("send email to %s: %w", e.To, err)
	}
	slog.InfoContext(ctx, "email sent", slog.String("to", e.To), slog.String("subject", e.Subject))
	return nil
}

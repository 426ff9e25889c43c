// Package mailer renders markdown to HTML and delivers it over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/lex/internal/config"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ErrNotConfigured is returned by Send when SMTP host or sender is missing.
var ErrNotConfigured = errors.New("smtp not configured")

// Message is a rendered email ready to send.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// SendFunc delivers raw RFC 5322 bytes.
type SendFunc func(ctx context.Context, from string, to []string, raw []byte) error

// Mailer sends HTML email.
type Mailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
	// Send overrides delivery; nil uses SMTP with STARTTLS.
	Send SendFunc
}

// New builds a Mailer from config, resolving credentials from the environment.
func New(cfg config.SMTP) *Mailer {
	return &Mailer{
		Host: cfg.Host,
		Port: cfg.Port,
		User: config.Env(cfg.UserEnv),
		Pass: config.Env(cfg.PassEnv),
		From: cfg.From,
	}
}

// Configured reports whether the mailer has a host and sender.
func (m *Mailer) Configured() bool {
	return m != nil && m.Host != "" && m.From != ""
}

// Render converts markdown to an HTML fragment.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// SendMarkdown renders markdown and mails it to the recipients.
func (m *Mailer) SendMarkdown(ctx context.Context, to []string, subject, markdown string) error {
	html, err := Render(markdown)
	if err != nil {
		return err
	}
	return m.SendHTML(ctx, Message{From: m.From, To: to, Subject: subject, HTML: html})
}

// SendHTML delivers a pre-rendered message.
func (m *Mailer) SendHTML(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	if msg.From == "" {
		msg.From = m.From
	}
	raw := Build(msg, time.Now())

	send := m.Send
	if send == nil {
		send = m.smtpSend
	}
	if err := send(ctx, msg.From, msg.To, raw); err != nil {
		return fmt.Errorf("sending mail to %s: %w", strings.Join(msg.To, ", "), err)
	}
	return nil
}

// Build assembles the MIME message.
func Build(msg Message, date time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@lex>", uuid.NewString()))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "base64")
	b.WriteString("\r\n")

	enc := base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")
	return b.Bytes()
}

func (m *Mailer) smtpSend(ctx context.Context, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.User != "" && m.Pass != "" {
		if err := c.Auth(smtp.PlainAuth("", m.User, m.Pass, m.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

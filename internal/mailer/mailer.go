// Package mailer sends recipient notification emails (spec.md §6
// `smtp{server,port,use_tls,auth?}`) over stdlib net/smtp — no ecosystem
// SMTP client appears anywhere in the retrieved corpus, so this is the one
// ambient concern built directly on the standard library (see DESIGN.md).
package mailer

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/esignhq/esign/internal/esignerr"
)

// Config mirrors spec.md §6's smtp config block.
type Config struct {
	Server string
	Port   int
	UseTLS bool
	Auth   *Auth
	From   string
}

// Auth holds optional SMTP AUTH credentials.
type Auth struct {
	Username string
	Password string
}

// Mailer sends plain-text notification emails through one configured SMTP
// server.
type Mailer struct {
	cfg Config
}

// New returns a Mailer for cfg.
func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers a single message with subject/body to to, from the
// configured From address.
func (m *Mailer) Send(to, subject, body string) error {
	addr := net.JoinHostPort(m.cfg.Server, fmt.Sprintf("%d", m.cfg.Port))

	msg := buildMessage(m.cfg.From, to, subject, body)

	var auth smtp.Auth
	if m.cfg.Auth != nil {
		auth = smtp.PlainAuth("", m.cfg.Auth.Username, m.cfg.Auth.Password, m.cfg.Server)
	}

	var err error
	if m.cfg.UseTLS {
		err = sendTLS(addr, m.cfg.Server, auth, m.cfg.From, []string{to}, msg)
	} else {
		err = smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
	}
	if err != nil {
		return esignerr.New(esignerr.StorageError, "mailer.Send", fmt.Errorf("send to %s: %w", to, err))
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Attachment is one file carried alongside a notification email (spec.md
// §4.F: request_signature/send_final "attach current PDF and JSON log").
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendWithAttachments is like Send but builds a multipart/mixed message
// carrying attachments as base64-encoded parts.
func (m *Mailer) SendWithAttachments(to, subject, body string, attachments []Attachment) error {
	addr := net.JoinHostPort(m.cfg.Server, fmt.Sprintf("%d", m.cfg.Port))
	msg := buildMultipartMessage(m.cfg.From, to, subject, body, attachments)

	var auth smtp.Auth
	if m.cfg.Auth != nil {
		auth = smtp.PlainAuth("", m.cfg.Auth.Username, m.cfg.Auth.Password, m.cfg.Server)
	}

	var err error
	if m.cfg.UseTLS {
		err = sendTLS(addr, m.cfg.Server, auth, m.cfg.From, []string{to}, msg)
	} else {
		err = smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
	}
	if err != nil {
		return esignerr.New(esignerr.StorageError, "mailer.SendWithAttachments", fmt.Errorf("send to %s: %w", to, err))
	}
	return nil
}

func buildMultipartMessage(from, to, subject, body string, attachments []Attachment) []byte {
	boundary := "esign-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	for _, a := range attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", a.ContentType)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", a.Filename)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		encoded := base64.StdEncoding.EncodeToString(a.Data)
		for i := 0; i < len(encoded); i += 76 {
			end := i + 76
			if end > len(encoded) {
				end = len(encoded)
			}
			b.WriteString(encoded[i:end])
			b.WriteString("\r\n")
		}
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// sendTLS sends a message over an implicit-TLS connection (smtp.SendMail
// only supports STARTTLS/plaintext), for SMTP servers that require TLS
// from the first byte.
func sendTLS(addr, serverName string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: serverName})
	if err != nil {
		return fmt.Errorf("dial tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, serverName)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("rcpt to %s: %w", addr, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return client.Quit()
}

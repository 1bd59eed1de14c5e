// Package notify mails generated documents to a recipient.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"moledger/internal/models"
)

// SMTPSendFunc is the function used to send emails. Override in tests.
var SMTPSendFunc = smtp.SendMail

// Config holds SMTP settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// Enabled reports whether a host is configured.
func (c Config) Enabled() bool { return c.Host != "" }

// Attachment is a file sent with a message.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Message is one outgoing email.
type Message struct {
	To         string
	Subject    string
	Body       string
	EventType  string
	Attachment *Attachment
}

// Notifier delivers messages.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// EmailLogger records every delivery attempt.
type EmailLogger interface {
	RecordEmail(ctx context.Context, e models.EmailLogEntry) error
}

// SMTP sends mail through a relay and logs each attempt.
type SMTP struct {
	cfg    Config
	log    EmailLogger
	logger *log.Logger
}

// NewSMTP returns a notifier. emailLog and logger may be nil.
func NewSMTP(cfg Config, emailLog EmailLogger, logger *log.Logger) *SMTP {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "MO Ledger"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SMTP{cfg: cfg, log: emailLog, logger: logger}
}

func (s *SMTP) Send(ctx context.Context, m Message) error {
	if !s.cfg.Enabled() {
		return fmt.Errorf("email not configured: %w", models.ErrExternalService)
	}
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient required: %w", models.ErrInvalidInput)
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}
	msg, err := buildMessage(s.cfg.FromName, from, m)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	sendErr := SMTPSendFunc(addr, auth, from, []string{m.To}, msg)

	entry := models.EmailLogEntry{To: m.To, Subject: m.Subject, EventType: m.EventType, Status: "sent"}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
		s.logger.Printf("Email to %s failed: %v", m.To, sendErr)
	} else {
		s.logger.Printf("Email sent to %s: %q (%s)", m.To, m.Subject, humanize.Bytes(uint64(len(msg))))
	}
	if s.log != nil {
		if err := s.log.RecordEmail(ctx, entry); err != nil {
			s.logger.Printf("Failed to record email log: %v", err)
		}
	}
	if sendErr != nil {
		return fmt.Errorf("send mail: %v: %w", sendErr, models.ErrExternalService)
	}
	return nil
}

func buildMessage(fromName, from string, m Message) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from))
	header("To", m.To)
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if m.Attachment == nil {
		header("Content-Type", "text/plain; charset=utf-8")
		buf.WriteString("\r\n")
		buf.WriteString(m.Body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	body := m.Body
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	body += fmt.Sprintf("\nAttachment: %s (%s)\n", m.Attachment.FileName, humanize.Bytes(uint64(len(m.Attachment.Data))))
	if _, err := text.Write([]byte(body)); err != nil {
		return nil, err
	}

	ct := m.Attachment.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	att, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": m.Attachment.FileName})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": m.Attachment.FileName})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(m.Attachment.Data)
	for len(encoded) > 76 {
		att.Write([]byte(encoded[:76] + "\r\n"))
		encoded = encoded[76:]
	}
	att.Write([]byte(encoded + "\r\n"))

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

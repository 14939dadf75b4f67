package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Body is a message with both renderings; mail clients pick one.
type Body struct {
	Text string
	HTML string
}

type Sender interface {
	SendMail(ctx context.Context, to []string, subject string, body Body) error
}

// NewSender picks the transport from MAIL_DRIVER.
func NewSender(cfg *MailConfig, awsCfg aws.Config) (Sender, error) {
	switch cfg.Driver {
	case DriverSES:
		return NewSESSender(cfg, NewSESClient(awsCfg)), nil
	case DriverSMTP:
		return NewMailServer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type MailServer struct {
	cfg  *MailConfig
	auth smtp.Auth
	send sendFunc
}

func NewMailServer(cfg *MailConfig) *MailServer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	return &MailServer{
		cfg:  cfg,
		auth: auth,
		send: smtp.SendMail,
	}
}

func (m *MailServer) SendMail(ctx context.Context, to []string, subject string, body Body) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort

	msg, err := buildMessage(m.cfg.From, to, subject, body)
	if err != nil {
		return err
	}
	if err := m.send(addr, m.auth, m.cfg.From, to, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	slog.Info("mail sent", "driver", DriverSMTP, "to", to, "subject", subject)
	return nil
}

func buildMessage(from string, to []string, subject string, body Body) ([]byte, error) {
	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)

	headers := map[string]string{
		"From":         from,
		"To":           strings.Join(to, ","),
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "multipart/alternative; boundary=\"" + mw.Boundary() + "\"",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, headers[k])
	}
	msg.WriteString("\r\n")

	for _, p := range []struct{ contentType, content string }{
		{"text/plain; charset=\"utf-8\"", body.Text},
		{"text/html; charset=\"utf-8\"", body.HTML},
	} {
		if p.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("building mail part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("building mail part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building mail: %w", err)
	}
	msg.Write(parts.Bytes())
	return msg.Bytes(), nil
}

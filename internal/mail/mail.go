// Package mail sends transactional dashboard mail over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"cambria.dev/dashboard/internal/obs"
)

// Dialer delivers composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender composes reset-code mails and hands them to a Dialer.
type Sender struct {
	dialer   Dialer
	from     string
	fromName string
	ttl      time.Duration
}

// Settings are the SMTP parameters for NewSender.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	CodeTTL  time.Duration
}

// NewSender builds a Sender backed by gomail's SMTP dialer.
func NewSender(s Settings) (*Sender, error) {
	if strings.TrimSpace(s.Host) == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	return NewSenderWithDialer(gomail.NewDialer(s.Host, port, s.Username, s.Password), s.From, s.FromName, s.CodeTTL)
}

// NewSenderWithDialer builds a Sender around an existing Dialer.
func NewSenderWithDialer(d Dialer, from, fromName string, ttl time.Duration) (*Sender, error) {
	if d == nil {
		return nil, errors.New("mail: dialer is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("mail: from address is required")
	}
	if fromName == "" {
		fromName = "Cambria Dashboard"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Sender{dialer: d, from: from, fromName: fromName, ttl: ttl}, nil
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8" /><title>Password reset</title></head>
<body style="margin:0;padding:24px;font-family:Arial,sans-serif;background-color:#f7f9fc;">
  <table align="center" width="560" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;">
    <tr><td style="padding:32px;color:#333333;font-size:16px;line-height:1.6;">
      <p style="margin-top:0;">Hello {{.Name}},</p>
      <p>Use the code below to reset your Cambria Dashboard password:</p>
      <p style="text-align:center;font-size:28px;font-weight:bold;letter-spacing:4px;color:#1f4fd8;">{{.Code}}</p>
      <p>The code expires in {{.Minutes}} minutes. If you did not ask for a reset you can ignore this email.</p>
    </td></tr>
  </table>
</body>
</html>`))

// SendResetCode mails code to the given recipient.
func (s *Sender) SendResetCode(ctx context.Context, to, name, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		name = to
	}
	var body bytes.Buffer
	err := resetTemplate.Execute(&body, struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, int(s.ttl / time.Minute)})
	if err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, s.fromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your Cambria Dashboard reset code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, int(s.ttl/time.Minute)))
	m.AddAlternative("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		obs.Logger().Error("send reset mail failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send reset mail: %w", err)
	}
	obs.Logger().Debug("reset mail sent", zap.String("to", to))
	return nil
}

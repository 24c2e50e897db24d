package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"lifeguard_alerts/internal/domain/notify"

	"gopkg.in/mail.v2"
)

const (
	emergencySenderName = "LifeGuard EMERGENCY"
	testSenderName      = "LifeGuard"
)

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	dialer *mail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	d := mail.NewDialer(host, port, username, password)
	d.Timeout = 10 * time.Second
	return &SMTPSender{dialer: d, from: from}
}

// Send dials the relay per message. The SMTP library has no context support,
// so a canceled ctx only stops the wait.
func (s *SMTPSender) Send(ctx context.Context, to string, msg notify.Message) error {
	m := buildEmail(s.from, to, msg)

	errc := make(chan error, 1)
	go func() {
		errc <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		sendErr := fmt.Errorf("failed to send email: %w", err)
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return notify.Permanent(sendErr)
		}
		return sendErr
	case <-ctx.Done():
		return fmt.Errorf("email send aborted: %w", ctx.Err())
	}
}

func buildEmail(from, to string, msg notify.Message) *mail.Message {
	m := mail.NewMessage()
	name := emergencySenderName
	if msg.Test {
		name = testSenderName
	} else {
		m.SetHeader("X-Priority", "1")
		m.SetHeader("Importance", "high")
	}
	m.SetAddressHeader("From", from, name)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	if msg.AttemptID != "" {
		m.SetHeader("X-LifeGuard-Attempt", msg.AttemptID)
	}
	m.SetBody("text/plain", msg.Body)
	return m
}

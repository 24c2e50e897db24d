package gateway

import (
	"context"
	"fmt"
	"strings"

	"lifeguard_alerts/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyAddress    = fmt.Errorf("recipient address is empty")
	ErrChannelDisabled = fmt.Errorf("channel is not configured")
)

// Sender delivers one message on one channel.
type Sender interface {
	Send(ctx context.Context, to string, msg notify.Message) error
}

// Router implements notify.Gateway on top of one sender per channel.
type Router struct {
	email Sender
	sms   Sender
}

func NewRouter(email, sms Sender) *Router {
	return &Router{email: email, sms: sms}
}

func (r *Router) SendEmail(ctx context.Context, to string, msg notify.Message) error {
	return route(ctx, r.email, notify.ChannelEmail, to, msg)
}

func (r *Router) SendSMS(ctx context.Context, to string, msg notify.Message) error {
	return route(ctx, r.sms, notify.ChannelSMS, to, msg)
}

func route(ctx context.Context, s Sender, ch notify.Channel, to string, msg notify.Message) error {
	if s == nil {
		return notify.Permanent(fmt.Errorf("%s: %w", ch, ErrChannelDisabled))
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return notify.Permanent(fmt.Errorf("%s: %w", ch, ErrEmptyAddress))
	}
	return s.Send(ctx, to, msg)
}

// LogSender only logs messages. Used when a provider is not configured outside production.
type LogSender struct {
	channel notify.Channel
	log     *logrus.Entry
}

func NewLogSender(ch notify.Channel, log *logrus.Entry) *LogSender {
	return &LogSender{channel: ch, log: log}
}

func (s *LogSender) Send(_ context.Context, to string, msg notify.Message) error {
	s.log.WithFields(logrus.Fields{
		"channel":    s.channel,
		"to":         to,
		"alert_id":   msg.AlertID,
		"contact_id": msg.ContactID,
		"attempt_id": msg.AttemptID,
		"test":       msg.Test,
	}).Infof("%s would be sent: %s", strings.ToUpper(string(s.channel)), msg.Body)
	return nil
}

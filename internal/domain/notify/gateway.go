package notify

import (
	"context"
	"errors"
)

// Channel is a delivery medium for a single recipient.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is the content of one channel attempt.
type Message struct {
	AttemptID string // Fresh per attempt; providers may use it as an idempotency key
	Subject   string // Email only
	Body      string
	AlertID   int64 // Zero for test notifications
	ContactID int64
	Test      bool
}

// Gateway is the notification transport capability the engine depends on.
// A nil error means the provider accepted the message.
type Gateway interface {
	SendEmail(ctx context.Context, to string, msg Message) error
	SendSMS(ctx context.Context, to string, msg Message) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a send error that retrying cannot fix (bad address, rejected sender).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

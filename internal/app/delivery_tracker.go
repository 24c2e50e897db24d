package app

import (
	"context"
	"fmt"
	"time"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

// ErrInvalidResponse is returned when a recipient submits a status they cannot set.
var ErrInvalidResponse = fmt.Errorf("response status must be Acknowledged or Declined")

// DeliveryTracker owns the per-recipient delivery and response state of alerts.
type DeliveryTracker struct {
	repo          alert.Repository
	clock         func() time.Time
	responseAfter time.Duration
	log           *logrus.Entry
}

func NewDeliveryTracker(repo alert.Repository, responseWindow time.Duration, log *logrus.Entry) *DeliveryTracker {
	return &DeliveryTracker{
		repo:          repo,
		clock:         time.Now,
		responseAfter: responseWindow,
		log:           log,
	}
}

// Record stores the outcome of one (alert, contact, channel) unit.
// Failures leave the flag untouched; flags only ever move to true.
func (t *DeliveryTracker) Record(ctx context.Context, alertID, contactID int64, ch notify.Channel, sendErr error) error {
	entry := t.log.WithFields(logrus.Fields{"alert_id": alertID, "contact_id": contactID, "channel": ch})
	if sendErr != nil {
		entry.WithError(sendErr).Warn("Channel delivery failed")
		return nil
	}
	if err := t.repo.MarkChannelSent(ctx, alertID, contactID, ch); err != nil {
		entry.WithError(err).Error("Failed to mark channel as sent")
		return fmt.Errorf("failed to mark %s sent for alert %d contact %d: %w", ch, alertID, contactID, err)
	}
	entry.Debug("Channel delivery recorded")
	return nil
}

// Snapshot returns the delivery records of an alert.
func (t *DeliveryTracker) Snapshot(ctx context.Context, alertID int64) ([]*alert.DeliveryRecord, error) {
	records, err := t.repo.ListDeliveries(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries for alert %d: %w", alertID, err)
	}
	return records, nil
}

// Respond stores a recipient's answer. Only the first answer counts; it reports
// false when a response (or a timeout) was already recorded.
func (t *DeliveryTracker) Respond(ctx context.Context, alertID, contactID int64, status alert.ResponseStatus) (bool, error) {
	if !status.IsRecipientAnswer() {
		return false, ErrInvalidResponse
	}
	written, err := t.repo.RecordResponse(ctx, alertID, contactID, status, t.clock())
	if err != nil {
		return false, fmt.Errorf("failed to record response for alert %d contact %d: %w", alertID, contactID, err)
	}

	entry := t.log.WithFields(logrus.Fields{"alert_id": alertID, "contact_id": contactID, "status": status})
	if written {
		entry.Info("Recipient response recorded")
	} else {
		entry.Info("Recipient response ignored; an earlier response exists")
	}
	return written, nil
}

// SweepTimeouts marks unanswered records of still-active alerts older than the
// response window as TimedOut.
func (t *DeliveryTracker) SweepTimeouts(ctx context.Context) (int64, error) {
	now := t.clock()
	n, err := t.repo.MarkTimedOut(ctx, now.Add(-t.responseAfter), now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep response timeouts: %w", err)
	}
	if n > 0 {
		t.log.WithField("records", n).Info("Marked unanswered deliveries as timed out")
	}
	return n, nil
}

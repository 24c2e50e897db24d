package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/contact"
	"lifeguard_alerts/internal/domain/notify"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrContactNotOwned    = fmt.Errorf("contact does not belong to the user")
	ErrNoDeliverableRoute = fmt.Errorf("no deliverable channel")
)

// TestResult is the outcome of one test notification.
type TestResult struct {
	Success bool
	Channel notify.Channel
	Error   string // Transport failure, if any
}

// TestAlertService sends single connectivity checks to a contact.
// It bypasses the cooldown and the resolver and never creates alert rows.
type TestAlertService struct {
	contacts contact.Directory
	audit    alert.TestAuditRepository
	gateway  notify.Gateway
	metrics  Metrics
	timeout  time.Duration
	clock    func() time.Time
	log      *logrus.Entry
}

func NewTestAlertService(cd contact.Directory, audit alert.TestAuditRepository, gw notify.Gateway, timeout time.Duration, log *logrus.Entry) *TestAlertService {
	return &TestAlertService{
		contacts: cd,
		audit:    audit,
		gateway:  gw,
		metrics:  nopMetrics{},
		timeout:  timeout,
		clock:    time.Now,
		log:      log,
	}
}

// SetMetrics replaces the no-op metrics sink.
func (s *TestAlertService) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// SendTest sends exactly one test notification on the contact's preferred channel.
// A transport failure is reported in the result, not as an error.
func (s *TestAlertService) SendTest(ctx context.Context, userID string, contactID int64) (*TestResult, error) {
	entry := s.log.WithFields(logrus.Fields{"user_id": userID, "contact_id": contactID})

	c, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, idb.ErrContactNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load contact %d: %w", contactID, err)
	}
	if c.UserID != userID {
		return nil, ErrContactNotOwned
	}

	var ch notify.Channel
	switch {
	case c.HasEmail():
		ch = notify.ChannelEmail
	case c.HasPhone():
		ch = notify.ChannelSMS
	default:
		entry.Warn("Test alert requested for a contact without email or phone")
		return nil, ErrNoDeliverableRoute
	}
	entry = entry.WithField("channel", ch)

	msg := testMessage(c, ch)
	msg.AttemptID = uuid.NewString()

	sendCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if ch == notify.ChannelEmail {
		err = s.gateway.SendEmail(sendCtx, c.Email, msg)
	} else {
		err = s.gateway.SendSMS(sendCtx, c.Phone, msg)
	}

	res := &TestResult{Success: err == nil, Channel: ch}
	auditEntry := &alert.TestAudit{
		UserID:    userID,
		ContactID: c.ID,
		Channel:   ch,
		Succeeded: err == nil,
		CreatedAt: s.clock(),
	}
	if err != nil {
		res.Error = err.Error()
		auditEntry.Error = sql.NullString{String: err.Error(), Valid: true}
		entry.WithError(err).Warn("Test alert delivery failed")
	} else {
		entry.Info("Test alert delivered")
	}
	s.metrics.TestAlertSent(ch, err == nil)

	if auditErr := s.audit.Create(context.WithoutCancel(ctx), auditEntry); auditErr != nil {
		entry.WithError(auditErr).Error("Failed to write test alert audit entry")
	}
	return res, nil
}

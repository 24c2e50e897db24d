// internal/domain/alert/delivery.go
package alert

import (
	"database/sql"
	"time"

	"lifeguard_alerts/internal/domain/notify"
)

// DeliveryRecord tracks one contact's delivery and response for one alert.
// Corresponds to the "EmergencyContactAlerts" table.
type DeliveryRecord struct {
	ID             int64
	EmergencyID    int64 // Foreign Key to "EmergencyAlerts"."Id"
	ContactID      int64 // Foreign Key to "EmergencyContacts"."Id"
	EmailSent      bool  // Set only after the gateway confirmed the email
	SmsSent        bool  // Set only after the gateway confirmed the SMS
	CreatedAt      time.Time
	ResponseStatus ResponseStatus // ResponseNone until the first answer or timeout
	ResponseTime   sql.NullTime
}

// Sent reports whether the given channel was confirmed for this record.
func (r *DeliveryRecord) Sent(ch notify.Channel) bool {
	switch ch {
	case notify.ChannelEmail:
		return r.EmailSent
	case notify.ChannelSMS:
		return r.SmsSent
	}
	return false
}

// Reached reports whether at least one channel was confirmed.
func (r *DeliveryRecord) Reached() bool {
	return r.EmailSent || r.SmsSent
}

// TestAudit is a lightweight log entry for a test notification.
// Kept apart from DeliveryRecord so test traffic never shows up in alert statistics.
type TestAudit struct {
	ID        int64
	UserID    string
	ContactID int64
	Channel   notify.Channel
	Succeeded bool
	Error     sql.NullString
	CreatedAt time.Time
}

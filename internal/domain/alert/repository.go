// internal/domain/alert/repository.go
package alert

import (
	"context"
	"time"

	"lifeguard_alerts/internal/domain/notify"
)

// Repository defines operations for EmergencyAlerts and their DeliveryRecords.
type Repository interface {
	// CreateWithDeliveries inserts the alert and one record per contact in a single transaction.
	// On success a.ID, a.CreatedAt and every record's ID/EmergencyID/CreatedAt are populated.
	CreateWithDeliveries(ctx context.Context, a *Alert, records []*DeliveryRecord) error
	GetByID(ctx context.Context, id int64) (*Alert, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Alert, error)
	// Resolve moves an Active alert to Resolved. It reports false when the alert was not Active.
	Resolve(ctx context.Context, id int64, at time.Time) (bool, error)

	// MarkChannelSent sets the channel flag of the (alert, contact) record to true. Repeating it is harmless.
	MarkChannelSent(ctx context.Context, alertID, contactID int64, ch notify.Channel) error
	ListDeliveries(ctx context.Context, alertID int64) ([]*DeliveryRecord, error)
	// RecordResponse writes a response only if none exists yet; it reports whether it wrote.
	RecordResponse(ctx context.Context, alertID, contactID int64, status ResponseStatus, at time.Time) (bool, error)
	// MarkTimedOut sets TimedOut on unanswered records of Active alerts created before cutoff.
	MarkTimedOut(ctx context.Context, cutoff time.Time, at time.Time) (int64, error)
}

// TestAuditRepository stores test notification audit entries.
type TestAuditRepository interface {
	Create(ctx context.Context, entry *TestAudit) error
}

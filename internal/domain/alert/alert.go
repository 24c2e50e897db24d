// internal/domain/alert/alert.go
package alert

import (
	"database/sql"
	"time"
)

// Alert is one triggering event. Corresponds to the "EmergencyAlerts" table.
type Alert struct {
	ID         int64
	UserID     string
	Message    string
	Location   string // Free text or "lat,lng"
	Status     Status
	CreatedAt  time.Time
	ResolvedAt sql.NullTime // Set only on the Active -> Resolved transition
}

// IsResolved reports whether the alert reached its terminal status.
func (a *Alert) IsResolved() bool {
	return a.Status == StatusResolved
}

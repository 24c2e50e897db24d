package preference

import (
	"context"
	"time"
)

// Preference holds a user's choice of who receives their emergency alerts.
// Corresponds to the "EmergencyPreferences" table (one row per user).
type Preference struct {
	UserID                  string
	SendToEmergencyContacts bool
	SendToAmbulanceService  bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Default is what a user gets before saving any preference.
func Default(userID string) *Preference {
	return &Preference{
		UserID:                  userID,
		SendToEmergencyContacts: true,
		SendToAmbulanceService:  false,
	}
}

// NotifiesAnyone is false when both toggles are off and no recipient can ever be selected.
func (p *Preference) NotifiesAnyone() bool {
	return p.SendToEmergencyContacts || p.SendToAmbulanceService
}

// Repository defines persistence for user preferences.
type Repository interface {
	Get(ctx context.Context, userID string) (*Preference, error)
	Upsert(ctx context.Context, p *Preference) error
}

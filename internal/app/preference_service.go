package app

import (
	"context"
	"errors"
	"fmt"

	"lifeguard_alerts/internal/domain/preference"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// PreferenceService reads and saves a user's emergency routing preference.
type PreferenceService struct {
	repo preference.Repository
	log  *logrus.Entry
}

func NewPreferenceService(repo preference.Repository, log *logrus.Entry) *PreferenceService {
	return &PreferenceService{repo: repo, log: log}
}

// Get returns the stored preference or the product default when none was saved.
func (s *PreferenceService) Get(ctx context.Context, userID string) (*preference.Preference, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrPreferenceNotFound) {
			return preference.Default(userID), nil
		}
		return nil, fmt.Errorf("failed to load preference for user %s: %w", userID, err)
	}
	return p, nil
}

// Save stores both toggles for the user.
func (s *PreferenceService) Save(ctx context.Context, userID string, contacts, ambulance bool) (*preference.Preference, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	p := &preference.Preference{
		UserID:                  userID,
		SendToEmergencyContacts: contacts,
		SendToAmbulanceService:  ambulance,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save preference for user %s: %w", userID, err)
	}

	entry := s.log.WithFields(logrus.Fields{"user_id": userID, "contacts": contacts, "ambulance": ambulance})
	if !p.NotifiesAnyone() {
		entry.Warn("User disabled every emergency recipient")
	} else {
		entry.Info("Emergency preference saved")
	}
	return p, nil
}

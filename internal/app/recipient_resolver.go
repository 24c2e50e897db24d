package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"lifeguard_alerts/internal/domain/contact"
	"lifeguard_alerts/internal/domain/notify"
	"lifeguard_alerts/internal/domain/preference"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// Recipient is a contact selected for an alert, with the channels it can be reached on.
type Recipient struct {
	Contact   *contact.Contact
	Channels  []notify.Channel // Email before SMS; empty means unreachable
	Ambulance bool
}

// Selection is the ordered recipient list plus the preference it was computed from.
type Selection struct {
	Recipients []Recipient
	Preference *preference.Preference
}

// RecipientResolver turns a user's preference and contacts into an ordered recipient list.
// It reads fresh data on every call.
type RecipientResolver struct {
	contacts           contact.Directory
	preferences        preference.Repository
	ambulanceContactID int64
	log                *logrus.Entry
}

func NewRecipientResolver(cd contact.Directory, pr preference.Repository, ambulanceContactID int64, log *logrus.Entry) *RecipientResolver {
	return &RecipientResolver{
		contacts:           cd,
		preferences:        pr,
		ambulanceContactID: ambulanceContactID,
		log:                log,
	}
}

// Resolve returns the ambulance service first (when enabled) followed by the user's
// verified contacts in priority order. An empty selection is not an error.
func (r *RecipientResolver) Resolve(ctx context.Context, userID string) (*Selection, error) {
	pref, err := r.preferenceFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Preference: pref}
	if !pref.NotifiesAnyone() {
		r.log.WithField("user_id", userID).Warn("Both emergency preference toggles are off; alert will have no recipients")
		return sel, nil
	}

	seen := make(map[int64]bool)
	if pref.SendToAmbulanceService {
		if amb := r.ambulance(ctx, userID); amb != nil {
			sel.Recipients = append(sel.Recipients, Recipient{
				Contact:   amb,
				Channels:  channelsFor(amb),
				Ambulance: true,
			})
			seen[amb.ID] = true
		}
	}

	if pref.SendToEmergencyContacts {
		list, err := r.contacts.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list contacts for user %s: %w", userID, err)
		}
		personal := make([]*contact.Contact, 0, len(list))
		for _, c := range list {
			if !c.IsVerified || seen[c.ID] {
				continue
			}
			personal = append(personal, c)
		}
		sort.SliceStable(personal, func(i, j int) bool {
			if personal[i].Priority != personal[j].Priority {
				return personal[i].Priority < personal[j].Priority
			}
			return personal[i].ID < personal[j].ID
		})
		for _, c := range personal {
			sel.Recipients = append(sel.Recipients, Recipient{Contact: c, Channels: channelsFor(c)})
			seen[c.ID] = true
		}
	}

	return sel, nil
}

func (r *RecipientResolver) preferenceFor(ctx context.Context, userID string) (*preference.Preference, error) {
	pref, err := r.preferences.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrPreferenceNotFound) {
			return preference.Default(userID), nil
		}
		return nil, fmt.Errorf("failed to load emergency preference for user %s: %w", userID, err)
	}
	return pref, nil
}

// ambulance loads the designated ambulance contact. Misconfiguration is logged and skipped.
func (r *RecipientResolver) ambulance(ctx context.Context, userID string) *contact.Contact {
	entry := r.log.WithFields(logrus.Fields{"user_id": userID, "contact_id": r.ambulanceContactID})

	c, err := r.contacts.GetByID(ctx, r.ambulanceContactID)
	if err != nil {
		if errors.Is(err, idb.ErrContactNotFound) {
			entry.Error("Ambulance service contact is missing; skipping it")
		} else {
			entry.WithError(err).Error("Failed to load ambulance service contact; skipping it")
		}
		return nil
	}
	if c.Role != contact.RoleEmergency {
		entry.WithField("role", c.Role).Error("Configured ambulance contact does not have the Emergency role; skipping it")
		return nil
	}
	return c
}

func channelsFor(c *contact.Contact) []notify.Channel {
	var chs []notify.Channel
	if c.HasEmail() {
		chs = append(chs, notify.ChannelEmail)
	}
	if c.HasPhone() {
		chs = append(chs, notify.ChannelSMS)
	}
	return chs
}

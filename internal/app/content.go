package app

import (
	"fmt"
	"strings"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/contact"
	"lifeguard_alerts/internal/domain/notify"
)

const (
	defaultAlertMessage  = "Emergency alert triggered"
	defaultAlertLocation = "Location not available"
	senderDisplayName    = "a LifeGuard user" // Profile data is not available to the engine
)

// alertMessage builds the per-channel content of a real alert.
func alertMessage(a *alert.Alert, c *contact.Contact, ch notify.Channel) notify.Message {
	text := strings.TrimSpace(a.Message)
	if text == "" {
		text = defaultAlertMessage
	}
	location := strings.TrimSpace(a.Location)
	if location == "" {
		location = defaultAlertLocation
	}

	msg := notify.Message{AlertID: a.ID, ContactID: c.ID}
	switch ch {
	case notify.ChannelEmail:
		msg.Subject = fmt.Sprintf("EMERGENCY ALERT from %s", senderDisplayName)
		msg.Body = fmt.Sprintf(
			"Dear %s,\n\n%s needs help.\n\nMessage: %s\nLocation: %s\nAlert reference: #%d\n\nPlease try to reach them immediately.\n",
			contactName(c), senderDisplayName, text, location, a.ID,
		)
	case notify.ChannelSMS:
		msg.Body = fmt.Sprintf(
			"EMERGENCY ALERT from %s\n%s\nLocation: %s\nPlease check your email for more details.",
			senderDisplayName, text, location,
		)
	}
	return msg
}

// testMessage builds the content of a connectivity test notification.
func testMessage(c *contact.Contact, ch notify.Channel) notify.Message {
	msg := notify.Message{ContactID: c.ID, Test: true}
	body := fmt.Sprintf(
		"TEST ALERT from LifeGuard\nThis is a TEST message to verify that %s can reach you in case of emergency.\nNo action is required.",
		senderDisplayName,
	)
	if ch == notify.ChannelEmail {
		msg.Subject = "Test Alert - LifeGuard Emergency Contact System"
		body = fmt.Sprintf("Dear %s,\n\n%s\n", contactName(c), body)
	}
	msg.Body = body
	return msg
}

func contactName(c *contact.Contact) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return "Emergency Contact"
}

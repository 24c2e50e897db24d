package app

import (
	"testing"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/contact"
	"lifeguard_alerts/internal/domain/notify"

	"github.com/stretchr/testify/assert"
)

func TestAlertMessage_Defaults(t *testing.T) {
	a := &alert.Alert{ID: 12, Message: "  ", Location: ""}
	c := &contact.Contact{ID: 3}

	email := alertMessage(a, c, notify.ChannelEmail)
	assert.Contains(t, email.Body, "Dear Emergency Contact")
	assert.Contains(t, email.Body, "Message: Emergency alert triggered")
	assert.Contains(t, email.Body, "Location: Location not available")
	assert.Contains(t, email.Body, "#12")
	assert.Equal(t, int64(12), email.AlertID)
	assert.Equal(t, int64(3), email.ContactID)

	sms := alertMessage(a, c, notify.ChannelSMS)
	assert.Empty(t, sms.Subject)
	assert.Contains(t, sms.Body, "Please check your email for more details.")
}

func TestTestMessage(t *testing.T) {
	c := &contact.Contact{ID: 3, Name: "Maria"}

	email := testMessage(c, notify.ChannelEmail)
	assert.True(t, email.Test)
	assert.Contains(t, email.Body, "Dear Maria")
	assert.Contains(t, email.Body, "No action is required.")

	sms := testMessage(c, notify.ChannelSMS)
	assert.Empty(t, sms.Subject)
	assert.NotContains(t, sms.Body, "Dear")
}

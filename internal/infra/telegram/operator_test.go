package telegram

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

const operatorID int64 = 42

type sentMessage struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

type fakeClient struct {
	sent []sentMessage
	err  error
}

func (f *fakeClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return f.err
}

type fakeOps struct {
	alerts   map[int64]*alert.Alert
	resolved []int64
	fail     error
}

func (f *fakeOps) Lookup(_ context.Context, userID string, id int64) (*app.AlertView, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if userID != "" {
		return nil, errors.New("operator lookups must skip the ownership check")
	}
	a, ok := f.alerts[id]
	if !ok {
		return nil, idb.ErrAlertNotFound
	}
	return &app.AlertView{
		Alert: a,
		Phase: alert.PhaseDispatchedPartial,
		Deliveries: []*alert.DeliveryRecord{
			{ContactID: 1, SmsSent: true, ResponseStatus: alert.ResponseAcknowledged},
			{ContactID: 7},
		},
	}, nil
}

func (f *fakeOps) Resolve(_ context.Context, _ string, id int64) (*alert.Alert, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	a, ok := f.alerts[id]
	if !ok {
		return nil, idb.ErrAlertNotFound
	}
	a.Status = alert.StatusResolved
	a.ResolvedAt = sql.NullTime{Time: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), Valid: true}
	f.resolved = append(f.resolved, id)
	return a, nil
}

func newLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func activeAlert(id int64) *alert.Alert {
	return &alert.Alert{
		ID:        id,
		UserID:    "user-1",
		Message:   "Help",
		Location:  "52.52,13.40",
		Status:    alert.StatusActive,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func inlineData(t *testing.T, opts *telebot.SendOptions) string {
	t.Helper()
	require.NotNil(t, opts)
	require.NotNil(t, opts.ReplyMarkup)
	require.Len(t, opts.ReplyMarkup.InlineKeyboard, 1)
	require.Len(t, opts.ReplyMarkup.InlineKeyboard[0], 1)
	return opts.ReplyMarkup.InlineKeyboard[0][0].Data
}

func TestOperatorNotifier_DispatchFinished(t *testing.T) {
	client := &fakeClient{}
	n := NewOperatorNotifier(client, operatorID, newLogger())

	res := &app.DispatchResult{
		Outcome: app.OutcomeSent,
		AlertID: 9,
		Phase:   alert.PhaseDispatchedPartial,
		Recipients: []app.RecipientOutcome{
			{ContactID: 1, Name: "Ambulance Service", Ambulance: true, State: app.StateNotified, ChannelsSucceeded: []notify.Channel{notify.ChannelSMS}},
			{ContactID: 7, Name: "Maria", State: app.StateUnreachable},
		},
		UnreachableCount: 1,
	}
	n.DispatchFinished(context.Background(), activeAlert(9), res)

	require.Len(t, client.sent, 1)
	msg := client.sent[0]
	assert.Equal(t, operatorID, msg.chatID)
	assert.Contains(t, msg.text, "EMERGENCY ALERT #9")
	assert.Contains(t, msg.text, "Ambulance Service (ambulance) [#1]: notified via sms")
	assert.Contains(t, msg.text, "Maria [#7]: unreachable")
	assert.Contains(t, msg.text, "Notified: 1, unreachable: 1, pending: 0")
	assert.Contains(t, inlineData(t, msg.opts), "9")
}

func TestOperatorNotifier_NoButtonWhenResolved(t *testing.T) {
	client := &fakeClient{}
	n := NewOperatorNotifier(client, operatorID, newLogger())

	a := activeAlert(3)
	a.Status = alert.StatusResolved
	n.DispatchFinished(context.Background(), a, &app.DispatchResult{Outcome: app.OutcomeSent, AlertID: 3, Phase: alert.PhaseResolved})

	require.Len(t, client.sent, 1)
	assert.Nil(t, client.sent[0].opts)
}

func TestOperatorNotifier_NoRecipients(t *testing.T) {
	client := &fakeClient{err: errors.New("telegram down")}
	n := NewOperatorNotifier(client, operatorID, newLogger())

	res := &app.DispatchResult{Outcome: app.OutcomeNoRecipients, AlertID: 5, Phase: alert.PhaseDispatchedComplete, Warning: "nobody to notify"}
	assert.NotPanics(t, func() {
		n.DispatchFinished(context.Background(), activeAlert(5), res)
	})
	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].text, "No recipients were notified.")
	assert.Contains(t, client.sent[0].text, "nobody to notify")
}

func TestOperatorConsole_AlertReport(t *testing.T) {
	ops := &fakeOps{alerts: map[int64]*alert.Alert{9: activeAlert(9)}}
	o := NewOperatorConsole(ops, operatorID, newLogger())
	ctx := context.Background()

	t.Run("unauthorized sender", func(t *testing.T) {
		text, markup := o.alertReport(ctx, 100, []string{"9"})
		assert.Equal(t, unauthorizedReply, text)
		assert.Nil(t, markup)
	})

	t.Run("bad arguments", func(t *testing.T) {
		text, _ := o.alertReport(ctx, operatorID, []string{"abc"})
		assert.Contains(t, text, "Invalid command format")
		text, _ = o.alertReport(ctx, operatorID, nil)
		assert.Contains(t, text, "Invalid command format")
	})

	t.Run("unknown alert", func(t *testing.T) {
		text, markup := o.alertReport(ctx, operatorID, []string{"77"})
		assert.Equal(t, "Alert #77 not found.", text)
		assert.Nil(t, markup)
	})

	t.Run("snapshot", func(t *testing.T) {
		text, markup := o.alertReport(ctx, operatorID, []string{"9"})
		assert.Contains(t, text, "Alert #9 (Active, phase dispatched_partial)")
		assert.Contains(t, text, "contact #1: email=false sms=true, Acknowledged")
		assert.Contains(t, text, "contact #7: email=false sms=false, no response")
		require.NotNil(t, markup)
	})
}

func TestOperatorConsole_Resolve(t *testing.T) {
	ops := &fakeOps{alerts: map[int64]*alert.Alert{9: activeAlert(9)}}
	o := NewOperatorConsole(ops, operatorID, newLogger())
	ctx := context.Background()

	assert.Equal(t, unauthorizedReply, o.resolveCommand(ctx, 100, []string{"9"}))
	assert.Empty(t, ops.resolved)

	assert.Equal(t, "Alert #9 resolved at 10:30:00.", o.resolveCommand(ctx, operatorID, []string{"9"}))
	assert.Equal(t, []int64{9}, ops.resolved)

	reply, ok := o.resolveCallback(ctx, operatorID, "9")
	assert.True(t, ok)
	assert.Contains(t, reply, "resolved")

	reply, ok = o.resolveCallback(ctx, operatorID, "not-a-number")
	assert.False(t, ok)
	assert.Equal(t, "Invalid alert reference.", reply)

	reply, ok = o.resolveCallback(ctx, 100, "9")
	assert.False(t, ok)
	assert.Equal(t, unauthorizedReply, reply)
}

func TestOperatorConsole_ResolveFailure(t *testing.T) {
	ops := &fakeOps{fail: errors.New("db down")}
	o := NewOperatorConsole(ops, operatorID, newLogger())

	reply, ok := o.resolve(context.Background(), 9)
	assert.False(t, ok)
	assert.Equal(t, "Failed to resolve the alert. Please try again later.", reply)
}

func TestOperatorConsole_Greeting(t *testing.T) {
	o := NewOperatorConsole(&fakeOps{}, operatorID, newLogger())
	assert.Contains(t, o.greeting(operatorID, "Ana"), "Hello, Ana!")
	assert.Contains(t, o.greeting(1, "Bob"), "restricted")
}

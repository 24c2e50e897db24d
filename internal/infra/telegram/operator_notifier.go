package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/alert"
	domainTelegram "lifeguard_alerts/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const resolveButtonUnique = "resolve_alert"

// OperatorNotifier posts every finished dispatch to the operator chat.
type OperatorNotifier struct {
	client     domainTelegram.Client
	operatorID int64
	log        *logrus.Entry
}

func NewOperatorNotifier(client domainTelegram.Client, operatorID int64, log *logrus.Entry) *OperatorNotifier {
	return &OperatorNotifier{client: client, operatorID: operatorID, log: log}
}

// DispatchFinished implements app.DispatchObserver. Failures are logged only.
func (n *OperatorNotifier) DispatchFinished(_ context.Context, a *alert.Alert, res *app.DispatchResult) {
	text := formatDispatchReport(a, res)

	var opts *telebot.SendOptions
	if !a.IsResolved() && res.Phase != alert.PhaseResolved {
		opts = &telebot.SendOptions{ReplyMarkup: resolveMarkup(a.ID)}
	}
	if err := n.client.SendMessage(n.operatorID, text, opts); err != nil {
		n.log.WithError(err).WithField("alert_id", a.ID).Error("Failed to notify operator about dispatch")
		return
	}
	n.log.WithField("alert_id", a.ID).Debug("Operator notified about dispatch")
}

func resolveMarkup(alertID int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	btn := markup.Data("Resolve", resolveButtonUnique, strconv.FormatInt(alertID, 10))
	markup.Inline(markup.Row(btn))
	return markup
}

func formatDispatchReport(a *alert.Alert, res *app.DispatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY ALERT #%d\n", a.ID)
	fmt.Fprintf(&b, "User: %s\n", a.UserID)
	if a.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", a.Message)
	}
	if a.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", a.Location)
	}
	fmt.Fprintf(&b, "Phase: %s\n", res.Phase)

	if res.Outcome == app.OutcomeNoRecipients {
		b.WriteString("No recipients were notified.")
		if res.Warning != "" {
			fmt.Fprintf(&b, "\n%s", res.Warning)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Notified: %d, unreachable: %d, pending: %d\n", len(res.Sent()), res.UnreachableCount, res.PendingCount)
	for _, r := range res.Recipients {
		name := r.Name
		if r.Ambulance {
			name += " (ambulance)"
		}
		fmt.Fprintf(&b, "- %s [#%d]: %s", name, r.ContactID, r.State)
		if len(r.ChannelsSucceeded) > 0 {
			chs := make([]string, 0, len(r.ChannelsSucceeded))
			for _, ch := range r.ChannelsSucceeded {
				chs = append(chs, string(ch))
			}
			fmt.Fprintf(&b, " via %s", strings.Join(chs, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ app.DispatchObserver = (*OperatorNotifier)(nil)

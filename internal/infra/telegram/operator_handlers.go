package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lifeguard_alerts/internal/app"
	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"
	idb "lifeguard_alerts/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AlertOperations is what the operator console can do with alerts.
type AlertOperations interface {
	Lookup(ctx context.Context, userID string, alertID int64) (*app.AlertView, error)
	Resolve(ctx context.Context, userID string, alertID int64) (*alert.Alert, error)
}

const unauthorizedReply = "Error: you are not allowed to use this command."

// OperatorConsole answers operator commands. Only operatorID may act.
type OperatorConsole struct {
	ops        AlertOperations
	operatorID int64
	log        *logrus.Entry
}

func NewOperatorConsole(ops AlertOperations, operatorID int64, log *logrus.Entry) *OperatorConsole {
	return &OperatorConsole{ops: ops, operatorID: operatorID, log: log}
}

// Register wires the console commands and the Resolve button into the bot.
func (o *OperatorConsole) Register(ctx context.Context, b *telebot.Bot) {
	b.Handle("/start", func(c telebot.Context) error {
		return c.Send(o.greeting(c.Sender().ID, c.Sender().FirstName))
	})

	b.Handle("/help", func(c telebot.Context) error {
		if c.Sender().ID != o.operatorID {
			return c.Send(unauthorizedReply)
		}
		return c.Send(helpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/alert", func(c telebot.Context) error {
		text, markup := o.alertReport(ctx, c.Sender().ID, c.Args())
		if markup != nil {
			return c.Send(text, &telebot.SendOptions{ReplyMarkup: markup})
		}
		return c.Send(text)
	})

	b.Handle("/resolve", func(c telebot.Context) error {
		return c.Send(o.resolveCommand(ctx, c.Sender().ID, c.Args()))
	})

	b.Handle(&telebot.Btn{Unique: resolveButtonUnique}, func(c telebot.Context) error {
		reply, resolved := o.resolveCallback(ctx, c.Sender().ID, c.Callback().Data)
		if err := c.Respond(&telebot.CallbackResponse{Text: reply}); err != nil {
			o.log.WithError(err).Warn("Failed to answer resolve callback")
		}
		if !resolved {
			return nil
		}
		// Drop the button once the alert is resolved.
		return c.Edit(c.Message().Text+"\n\n"+reply, &telebot.SendOptions{})
	})
}

func (o *OperatorConsole) greeting(senderID int64, firstName string) string {
	if senderID == o.operatorID {
		return fmt.Sprintf("Hello, %s! Emergency dispatch reports will be posted here. Use /help for commands.", firstName)
	}
	return "Hello! This bot is the LifeGuard emergency operator console and is restricted to the on-duty operator."
}

func helpText() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/alert <id>`\n - Show the delivery snapshot of an alert.\n\n")
	helpText.WriteString("`/resolve <id>`\n - Mark an alert as resolved.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func parseAlertID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (o *OperatorConsole) alertReport(ctx context.Context, senderID int64, args []string) (string, *telebot.ReplyMarkup) {
	logCtx := o.log.WithFields(logrus.Fields{"command": "/alert", "sender_id": senderID})
	if senderID != o.operatorID {
		logCtx.Warn("Unauthorized access attempt")
		return unauthorizedReply, nil
	}
	id, ok := parseAlertID(args)
	if !ok {
		return "Invalid command format. Use: /alert <id>", nil
	}

	view, err := o.ops.Lookup(ctx, "", id)
	if err != nil {
		if errors.Is(err, idb.ErrAlertNotFound) {
			return fmt.Sprintf("Alert #%d not found.", id), nil
		}
		logCtx.WithError(err).WithField("alert_id", id).Error("Failed to load alert")
		return "Failed to load the alert. Please try again later.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Alert #%d (%s, phase %s)\n", view.Alert.ID, view.Alert.Status, view.Phase)
	fmt.Fprintf(&b, "User: %s\n", view.Alert.UserID)
	fmt.Fprintf(&b, "Created: %s\n", view.Alert.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(view.Deliveries) == 0 {
		b.WriteString("No delivery records.")
	}
	for _, d := range view.Deliveries {
		response := string(d.ResponseStatus)
		if response == "" {
			response = "no response"
		}
		fmt.Fprintf(&b, "- contact #%d: email=%t sms=%t, %s\n", d.ContactID, d.Sent(notify.ChannelEmail), d.Sent(notify.ChannelSMS), response)
	}

	var markup *telebot.ReplyMarkup
	if !view.Alert.IsResolved() {
		markup = resolveMarkup(view.Alert.ID)
	}
	return strings.TrimRight(b.String(), "\n"), markup
}

func (o *OperatorConsole) resolveCommand(ctx context.Context, senderID int64, args []string) string {
	if senderID != o.operatorID {
		o.log.WithFields(logrus.Fields{"command": "/resolve", "sender_id": senderID}).Warn("Unauthorized access attempt")
		return unauthorizedReply
	}
	id, ok := parseAlertID(args)
	if !ok {
		return "Invalid command format. Use: /resolve <id>"
	}
	reply, _ := o.resolve(ctx, id)
	return reply
}

func (o *OperatorConsole) resolveCallback(ctx context.Context, senderID int64, data string) (string, bool) {
	if senderID != o.operatorID {
		o.log.WithFields(logrus.Fields{"callback": resolveButtonUnique, "sender_id": senderID}).Warn("Unauthorized access attempt")
		return unauthorizedReply, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(data), 10, 64)
	if err != nil {
		o.log.WithField("data", data).Warn("Malformed resolve callback payload")
		return "Invalid alert reference.", false
	}
	return o.resolve(ctx, id)
}

func (o *OperatorConsole) resolve(ctx context.Context, id int64) (string, bool) {
	logCtx := o.log.WithField("alert_id", id)
	a, err := o.ops.Resolve(ctx, "", id)
	if err != nil {
		if errors.Is(err, idb.ErrAlertNotFound) {
			return fmt.Sprintf("Alert #%d not found.", id), false
		}
		logCtx.WithError(err).Error("Operator failed to resolve alert")
		return "Failed to resolve the alert. Please try again later.", false
	}
	logCtx.Info("Alert resolved by operator")
	return fmt.Sprintf("Alert #%d resolved at %s.", a.ID, a.ResolvedAt.Time.Format("15:04:05")), true
}

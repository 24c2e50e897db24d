package telegram

import "gopkg.in/telebot.v3"

// Client sends messages to the operator chat.
// Keeps the app and notifier code independent of the bot wiring.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

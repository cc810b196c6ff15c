package bot

import (
	"strings"

	"github.com/runixer/tubegrab/internal/telegram"
)

// DownloadRequestData is the callback data of the menu's only button.
const DownloadRequestData = "download_request"

const startCommand = "/start"

// Event is an inbound update the dispatcher knows how to route.
// Implementations: StartEvent, ButtonEvent, TextEvent.
type Event interface {
	Chat() int64
	Sender() int64
	isEvent()
}

type origin struct {
	ChatID int64
	UserID int64
}

func (o origin) Chat() int64   { return o.ChatID }
func (o origin) Sender() int64 { return o.UserID }
func (origin) isEvent()        {}

// StartEvent is the /start command.
type StartEvent struct {
	origin
}

// ButtonEvent is a press on an inline keyboard button.
type ButtonEvent struct {
	origin
	QueryID string
	Data    string
}

// TextEvent is any other text message.
type TextEvent struct {
	origin
	Text string
}

// ClassifyUpdate turns an update into an Event. Updates without a sender or
// chat, and messages without text, are not classified.
func ClassifyUpdate(u *telegram.Update) (Event, bool) {
	if u == nil {
		return nil, false
	}

	if cq := u.CallbackQuery; cq != nil {
		if cq.From == nil {
			return nil, false
		}
		// Кнопки inline-режима приходят без сообщения, отвечаем в личку.
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return ButtonEvent{
			origin:  origin{ChatID: chatID, UserID: cq.From.ID},
			QueryID: cq.ID,
			Data:    cq.Data,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return nil, false
	}
	o := origin{ChatID: msg.Chat.ID, UserID: msg.From.ID}
	if isStartCommand(msg.Text) {
		return StartEvent{origin: o}, true
	}
	return TextEvent{origin: o, Text: msg.Text}, true
}

// isStartCommand matches "/start", "/start payload" and "/start@botname".
func isStartCommand(text string) bool {
	rest, ok := strings.CutPrefix(text, startCommand)
	if !ok {
		return false
	}
	return rest == "" || rest[0] == ' ' || rest[0] == '@'
}

func eventKind(e Event) string {
	switch e.(type) {
	case StartEvent:
		return "start"
	case ButtonEvent:
		return "button"
	case TextEvent:
		return "text"
	default:
		return "unknown"
	}
}

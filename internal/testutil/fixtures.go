package testutil

import (
	"github.com/runixer/tubegrab/internal/telegram"
)

// TestUser returns a standard test user.
func TestUser() *telegram.User {
	return &telegram.User{
		ID:        42,
		FirstName: "Test",
		Username:  "testuser",
	}
}

// PrivateChat returns a private chat with the given ID.
func PrivateChat(id int64) *telegram.Chat {
	return &telegram.Chat{ID: id, Type: "private"}
}

// TextUpdate builds a message update from user in their private chat.
func TextUpdate(updateID int, user *telegram.User, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			From:      user,
			Chat:      PrivateChat(user.ID),
			Text:      text,
		},
	}
}

// ButtonUpdate builds a callback query update for a button under a bot message.
func ButtonUpdate(updateID int, user *telegram.User, data string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb-" + data,
			From: user,
			Data: data,
			Message: &telegram.Message{
				MessageID: updateID,
				Chat:      PrivateChat(user.ID),
			},
		},
	}
}

package chat

import (
	"errors"
	"fmt"

	"chat-client/internal/models"
)

var (
	ErrNoConversation   = errors.New("no conversation open")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrMessageTooLong   = fmt.Errorf("message exceeds %d characters", models.MaxContentLength)
	ErrNotConnected     = errors.New("not connected")
	ErrRecipientOffline = errors.New("recipient is offline")
	ErrUnknownUser      = errors.New("user is not in the roster")
)

// rejection maps a send failure to its metric label and inline notice.
func rejection(err error) (reason, notice string) {
	switch {
	case errors.Is(err, ErrNoConversation):
		return "no_conversation", "Select a user to start chatting."
	case errors.Is(err, ErrEmptyMessage):
		return "empty", "Message cannot be empty."
	case errors.Is(err, ErrMessageTooLong):
		return "too_long", fmt.Sprintf("Message cannot exceed %d characters.", models.MaxContentLength)
	case errors.Is(err, ErrRecipientOffline):
		return "offline", "Cannot send message. The user is offline."
	case errors.Is(err, ErrNotConnected):
		return "disconnected", "Not connected. Waiting for the connection to come back."
	default:
		return "error", "Message could not be sent."
	}
}

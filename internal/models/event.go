package models

import "time"

// EventType discriminates live channel payloads.
type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stop_typing"
	// EventSystem is assigned locally to payloads sent by sender 0.
	EventSystem EventType = "system"
)

// Event is broadcasted through the live channel.
type Event struct {
	Type       EventType  `json:"type"`
	SenderID   int        `json:"sender_id"`
	ReceiverID int        `json:"receiver_id"`
	ID         int        `json:"id,omitempty"`
	Content    string     `json:"content,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// Message converts a message event into a transcript entry.
func (e Event) Message() Message {
	m := Message{ID: e.ID, SenderID: e.SenderID, ReceiverID: e.ReceiverID, Content: e.Content}
	if e.CreatedAt != nil {
		m.CreatedAt = *e.CreatedAt
	}
	return m
}

// NewMessageEvent builds an outbound chat message.
func NewMessageEvent(senderID, receiverID int, content string, at time.Time) Event {
	return Event{
		Type:       EventMessage,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  &at,
	}
}

// NewTypingEvent builds an outbound typing or stop_typing notification.
func NewTypingEvent(kind EventType, senderID, receiverID int) Event {
	return Event{Type: kind, SenderID: senderID, ReceiverID: receiverID}
}

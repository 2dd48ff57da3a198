package models

import "time"

// MaxContentLength is the longest message body, in characters, the server accepts.
const MaxContentLength = 50

// Message represents a chat message between two users.
type Message struct {
	ID         int       `json:"id,omitempty"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Counterpart returns the other side of the message relative to self.
func (m Message) Counterpart(self int) int {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether the message belongs to the conversation between a and b.
func (m Message) Involves(a, b int) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

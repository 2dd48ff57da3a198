package chat

import "chat-client/internal/models"

// Scroll tells a renderer what to do with the transcript viewport.
type Scroll int

const (
	// ScrollNone leaves the viewport where the reader put it.
	ScrollNone Scroll = iota
	// ScrollBottom pins the newest message into view.
	ScrollBottom
	// ScrollAnchor keeps the message that was on top in place after older
	// messages were prepended.
	ScrollAnchor
)

type RosterView struct {
	Users       []models.User
	OnlineCount int
	Search      string
	SelectedID  int
}

type ConversationView struct {
	Open      bool
	User      models.User
	Messages  []models.Message
	Self      int
	CanSend   bool
	Connected bool
	Typing    bool
	Loading   bool
	Exhausted bool
	Draft     string

	Scroll    Scroll
	Prepended int
}

// Renderer draws controller state. All calls come from the controller's loop goroutine.
type Renderer interface {
	RenderRoster(view RosterView)
	RenderConversation(view ConversationView)
	ShowNotice(text string)
	Notify(from models.User, msg models.Message)
}

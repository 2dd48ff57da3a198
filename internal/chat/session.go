package chat

import (
	"context"

	"chat-client/internal/models"
)

// Session is the state of the one open conversation. Its context is
// cancelled when the session is replaced or closed; late completions compare
// their session against the controller's current one and drop themselves.
type Session struct {
	User  models.User
	Store *Store

	ctx    context.Context
	cancel context.CancelFunc

	remoteTyping bool
	draft        string
}

func newSession(parent context.Context, user models.User) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		User:   user,
		Store:  NewStore(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Session) close() {
	s.cancel()
}

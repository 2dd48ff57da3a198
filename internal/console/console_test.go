package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/chat"
	"chat-client/internal/models"
)

type controlsMock struct {
	mock.Mock
}

func (m *controlsMock) Select(userID int) { m.Called(userID) }
func (m *controlsMock) Back() { m.Called() }
func (m *controlsMock) LoadOlder() { m.Called() }
func (m *controlsMock) Search(term string) { m.Called(term) }
func (m *controlsMock) Send(text string) { m.Called(text) }

var (
	bob   = models.User{ID: 2, Username: "bob", Online: true}
	carol = models.User{ID: 3, Username: "carol"}
)

func msg(id, sender, receiver int, content string, sec int64) models.Message {
	return models.Message{ID: id, SenderID: sender, ReceiverID: receiver, Content: content, CreatedAt: time.Unix(sec, 0)}
}

func TestReplDispatchesCommands(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)
	c.RenderRoster(chat.RosterView{Users: []models.User{bob, carol}, OnlineCount: 1})

	ctl := new(controlsMock)
	ctl.On("Select", 3).Once()
	ctl.On("Select", 2).Once()
	ctl.On("LoadOlder").Once()
	ctl.On("Search", "ca").Once()
	ctl.On("Send", "hello there").Once()
	ctl.On("Back").Once()

	in := strings.NewReader(strings.Join([]string{
		"/users",
		"/open carol",
		"/open 2",
		"/open nobody",
		"/older",
		"/search ca",
		"  hello there  ",
		"/back",
		"/bogus",
		"/quit",
		"ignored after quit",
	}, "\n"))

	require.NoError(t, c.Run(context.Background(), in, ctl))
	ctl.AssertExpectations(t)

	got := out.String()
	assert.Contains(t, got, "users (1 online):")
	assert.Contains(t, got, "Active now")
	assert.Contains(t, got, "! no such user: nobody")
	assert.Contains(t, got, "! unknown command /bogus")
}

func TestReplStopsAtEOF(t *testing.T) {
	c := New(&bytes.Buffer{})
	require.NoError(t, c.Run(context.Background(), strings.NewReader(""), new(controlsMock)))
}

func TestRenderConversationPrintsIncrementally(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)

	page := []models.Message{msg(5, 2, 1, "hi", 100), msg(6, 1, 2, "<b>yo</b>", 200)}
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: page, Scroll: chat.ScrollBottom})
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: page, Typing: true})

	older := append([]models.Message{msg(1, 2, 1, "first", 10)}, page...)
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: older, Scroll: chat.ScrollAnchor, Prepended: 1})

	live := append(older, msg(7, 2, 1, "again", 300))
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: false, Messages: live, Scroll: chat.ScrollBottom})

	got := out.String()
	assert.Contains(t, got, "== bob (Active now)")
	assert.Equal(t, 1, strings.Count(got, "bob: hi"))
	assert.Contains(t, got, "you: yo")
	assert.Contains(t, got, "bob is typing...")
	assert.Contains(t, got, "-- earlier messages")
	assert.Contains(t, got, "bob: first")
	assert.Contains(t, got, "bob: again")
	assert.Contains(t, got, "bob went offline")
	assert.Less(t, strings.Index(got, "earlier messages"), strings.Index(got, "bob: first"))
}

func TestRenderEmptyHistoryAndNotices(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)

	c.RenderConversation(chat.ConversationView{Open: true, User: carol, Self: 1, Exhausted: true, Scroll: chat.ScrollBottom})
	c.ShowNotice("Cannot send message. The user is offline.")
	c.Notify(bob, msg(9, 2, 1, "ping", 1))
	c.RenderConversation(chat.ConversationView{Self: 1})

	got := out.String()
	assert.Contains(t, got, "carol is offline, history only")
	assert.Contains(t, got, "-- no messages yet")
	assert.Contains(t, got, "! Cannot send message. The user is offline.")
	assert.Contains(t, got, "* bob: ping")
	assert.Contains(t, got, "== back to users")
}

func TestOlderPageOverlappingHeadPrintsEachMessageOnce(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)

	page := []models.Message{msg(5, 2, 1, "hi", 100), msg(6, 1, 2, "yo", 200)}
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: page, Scroll: chat.ScrollBottom})

	// the tied older message sorts after the head it ties with
	merged := []models.Message{msg(3, 2, 1, "oldest", 50), page[0], msg(4, 2, 1, "tied", 100), page[1]}
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: merged, Scroll: chat.ScrollAnchor, Prepended: 2})

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "bob: hi"))
	assert.Equal(t, 1, strings.Count(got, "bob: oldest"))
	assert.Equal(t, 1, strings.Count(got, "bob: tied"))
	assert.Equal(t, 1, strings.Count(got, "-- earlier messages"))

	local := models.Message{SenderID: 1, ReceiverID: 2, Content: "same", CreatedAt: time.Unix(300, 0)}
	c.RenderConversation(chat.ConversationView{Open: true, User: bob, Self: 1, CanSend: true, Messages: append(merged, local, local), Scroll: chat.ScrollBottom})
	assert.Equal(t, 2, strings.Count(out.String(), "you: same"))
}

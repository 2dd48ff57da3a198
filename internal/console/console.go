package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"chat-client/internal/chat"
	"chat-client/internal/models"
	"chat-client/internal/presence"
	"chat-client/internal/sanitize"
)

// msgKey identifies a transcript entry. Server messages are keyed by id,
// local sends by their contents.
type msgKey struct {
	id      int
	sender  int
	at      int64
	content string
}

func keyOf(m models.Message) msgKey {
	if m.ID != 0 {
		return msgKey{id: m.ID}
	}
	return msgKey{sender: m.SenderID, at: m.CreatedAt.UnixNano(), content: m.Content}
}

// Console renders controller state as plain lines.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	roster chat.RosterView

	openID    int
	printed   map[msgKey]int
	canSend   bool
	typing    bool
	connected bool
}

func New(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) RenderRoster(v chat.RosterView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster = v
}

func (c *Console) RenderConversation(v chat.ConversationView) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.Connected != c.connected {
		c.connected = v.Connected
		if v.Connected {
			c.printf("-- connected")
		} else {
			c.printf("-- disconnected, reconnecting")
		}
	}

	if !v.Open {
		if c.openID != 0 {
			c.printf("== back to users")
		}
		c.openID, c.printed, c.typing = 0, nil, false
		return
	}

	name := displayName(v.User)
	if v.User.ID != c.openID {
		c.openID, c.printed, c.typing = v.User.ID, make(map[msgKey]int), false
		c.canSend = v.CanSend
		c.printf("== %s (%s)", name, presence.StatusLine(v.User))
		if !v.CanSend {
			c.printf("-- %s is offline, history only", name)
		}
	}

	fresh := c.unprinted(v.Messages)
	if len(fresh) > 0 && v.Scroll == chat.ScrollAnchor {
		c.printf("-- earlier messages")
	}
	for _, m := range fresh {
		c.printMessage(v.Self, name, m)
	}
	if v.Exhausted && v.Scroll == chat.ScrollBottom && len(v.Messages) == 0 {
		c.printf("-- no messages yet")
	}

	if v.CanSend != c.canSend {
		c.canSend = v.CanSend
		if v.CanSend {
			c.printf("-- %s is online", name)
		} else {
			c.printf("-- %s went offline", name)
		}
	}
	if v.Typing != c.typing {
		c.typing = v.Typing
		if v.Typing {
			c.printf("-- %s is typing...", name)
		}
	}
}

// unprinted returns the messages not yet shown, in transcript order, and marks
// them as shown.
func (c *Console) unprinted(msgs []models.Message) []models.Message {
	seen := make(map[msgKey]int, len(msgs))
	var fresh []models.Message
	for _, m := range msgs {
		k := keyOf(m)
		seen[k]++
		if seen[k] > c.printed[k] {
			c.printed[k] = seen[k]
			fresh = append(fresh, m)
		}
	}
	return fresh
}

func (c *Console) printMessage(self int, name string, m models.Message) {
	who := name
	if m.SenderID == self {
		who = "you"
	}
	c.printf("[%s] %s: %s", m.CreatedAt.Local().Format(time.DateTime), who, sanitize.Text(m.Content))
}

func (c *Console) ShowNotice(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("! %s", sanitize.Text(text))
}

func (c *Console) Notify(from models.User, m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("* %s: %s", displayName(from), sanitize.Text(m.Content))
}

func (c *Console) printRoster() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("users (%d online):", c.roster.OnlineCount)
	for _, u := range c.roster.Users {
		badge := "offline"
		if u.Online {
			badge = "online"
		}
		c.printf("  %4d  %-24s %-7s %s", u.ID, displayName(u), badge, presence.StatusLine(u))
	}
}

// lookup resolves a roster entry by id or exact username.
func (c *Console) lookup(ref string) (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.roster.Users {
		if fmt.Sprint(u.ID) == ref || u.Username == ref {
			return u, true
		}
	}
	return models.User{}, false
}

func displayName(u models.User) string {
	if name := sanitize.Username(u.Username); name != "" {
		return name
	}
	return fmt.Sprintf("user %d", u.ID)
}

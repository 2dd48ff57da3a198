package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"chat-client/internal/chat"
	"chat-client/internal/models"
	"chat-client/internal/sanitize"
)

const (
	rosterHelp = " Enter:Open | /:Search | Esc:Users | Ctrl-C:Quit "
	chatHelp   = " Enter:Send | PgUp:Older | PgDn:Newer | Esc:Back "
)

func displayName(u models.User) string {
	if name := sanitize.Username(u.Username); name != "" {
		return name
	}
	return fmt.Sprintf("user %d", u.ID)
}

// rosterEntry is the main text of one list item.
func rosterEntry(u models.User) string {
	if u.Online {
		return "[green]●[-] " + tview.Escape(displayName(u))
	}
	return "[gray]○[-] " + tview.Escape(displayName(u))
}

func chatTitle(v chat.ConversationView) string {
	status := "○ offline"
	if v.User.Online {
		status = "● online"
	}
	return fmt.Sprintf(" %s ─ %s ", tview.Escape(displayName(v.User)), status)
}

// transcript renders one line per message so scroll anchors map to message counts.
func transcript(v chat.ConversationView) string {
	var b strings.Builder
	if v.Exhausted && len(v.Messages) > 0 {
		b.WriteString("[gray]── beginning of conversation ──[-]\n")
	}
	peer := tview.Escape(displayName(v.User))
	for _, m := range v.Messages {
		who, color := peer, "aqua"
		if m.SenderID == v.Self {
			who, color = "you", "yellow"
		}
		content := strings.ReplaceAll(sanitize.Text(m.Content), "\n", " ")
		fmt.Fprintf(&b, "[gray]%s[-] [%s]%s[-]: %s\n",
			m.CreatedAt.Local().Format(time.DateTime), color, who, tview.Escape(content))
	}
	if v.Exhausted && len(v.Messages) == 0 {
		b.WriteString("[gray]No messages yet. Say hi![-]\n")
	}
	return b.String()
}

func chatStatus(v chat.ConversationView) string {
	switch {
	case !v.Connected:
		return " [red]disconnected, reconnecting…[-] "
	case v.Typing:
		return fmt.Sprintf(" %s is typing… ", tview.Escape(displayName(v.User)))
	case v.Loading:
		return " loading messages… "
	case !v.CanSend:
		return " [gray]user is offline, history only[-] |" + chatHelp
	default:
		return chatHelp
	}
}

// sentConfirmed reports whether the transcript now ends with the message the
// input field was holding.
func sentConfirmed(v chat.ConversationView, pending string) bool {
	if pending == "" || v.Scroll != chat.ScrollBottom || len(v.Messages) == 0 {
		return false
	}
	last := v.Messages[len(v.Messages)-1]
	return last.SenderID == v.Self && last.Content == pending
}

const previewLength = 40

func preview(content string) string {
	r := []rune(sanitize.Text(content))
	if len(r) <= previewLength {
		return string(r)
	}
	return string(r[:previewLength-1]) + "…"
}

package presence

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"chat-client/internal/models"
)

// Visible returns the roster as it should be listed: self excluded, filtered
// by a case-insensitive substring of the username, online users first, then by
// most recent traffic, then by name.
func Visible(users []models.User, self int, term string) []models.User {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == self {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(u.Username), term) {
			continue
		}
		out = append(out, u)
	}

	col := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Online != b.Online {
			return a.Online
		}
		if at, bt := a.LastMessageUnix(), b.LastMessageUnix(); at != bt {
			return at > bt
		}
		return col.CompareString(a.Username, b.Username) < 0
	})
	return out
}

// OnlineCount counts online users other than self.
func OnlineCount(users []models.User, self int) int {
	n := 0
	for _, u := range users {
		if u.Online && u.ID != self {
			n++
		}
	}
	return n
}

// StatusLine is the secondary text shown under a roster entry.
func StatusLine(u models.User) string {
	switch {
	case u.Online:
		return "Active now"
	case u.LastMessageTime != nil:
		t := u.LastMessageTime.Local()
		return "Last active on " + t.Format("2006-01-02") + " at " + t.Format("15:04")
	default:
		return "Offline"
	}
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

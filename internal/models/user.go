package models

import "time"

// User is one roster entry as seen by the local client.
type User struct {
	ID              int        `json:"id"`
	Username        string     `json:"username"`
	Online          bool       `json:"online"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// LastMessageUnix returns the last traffic time in unix seconds, 0 when unknown.
func (u User) LastMessageUnix() int64 {
	if u.LastMessageTime == nil {
		return 0
	}
	return u.LastMessageTime.Unix()
}

// RosterEntry is the wire shape of a user in GET /api/online_users.
type RosterEntry struct {
	ID              int    `json:"id"`
	Username        string `json:"username"`
	Online          bool   `json:"online"`
	LastMessageTime int64  `json:"lastMessageTime,omitempty"`
}

// User converts the wire entry. A zero lastMessageTime means no traffic.
func (e RosterEntry) User() User {
	u := User{ID: e.ID, Username: e.Username, Online: e.Online}
	if e.LastMessageTime > 0 {
		t := time.Unix(e.LastMessageTime, 0).UTC()
		u.LastMessageTime = &t
	}
	return u
}

package chat

import (
	"sort"

	"chat-client/internal/models"
)

// PageSize is the number of messages requested per history page.
const PageSize = 10

// Store holds one conversation's transcript, ascending by CreatedAt, and its
// pagination cursor.
type Store struct {
	messages  []models.Message
	ids       map[int]struct{}
	offset    int
	exhausted bool
	loading   bool
}

func NewStore() *Store {
	return &Store{ids: make(map[int]struct{})}
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []models.Message {
	return append([]models.Message(nil), s.messages...)
}

func (s *Store) Len() int { return len(s.messages) }
func (s *Store) Offset() int { return s.offset }
func (s *Store) Exhausted() bool { return s.exhausted }
func (s *Store) Loading() bool { return s.loading }

// BeginLoad claims the next page. ok is false while a page is in flight or
// once history is exhausted.
func (s *Store) BeginLoad() (offset int, ok bool) {
	if s.loading || s.exhausted {
		return 0, false
	}
	s.loading = true
	return s.offset, true
}

// FailLoad releases the in-flight claim without moving the cursor.
func (s *Store) FailLoad() {
	s.loading = false
}

// CompletePage merges an older page into the transcript and reports whether
// it was the first page of the session and how many messages were added.
func (s *Store) CompletePage(page []models.Message) (first bool, added int) {
	first = s.offset == 0
	s.loading = false

	fresh := make([]models.Message, 0, len(page))
	for _, m := range page {
		if !s.remember(m) {
			continue
		}
		fresh = append(fresh, m)
	}
	s.messages = append(fresh, s.messages...)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})

	s.offset += PageSize
	if len(page) < PageSize {
		s.exhausted = true
	}
	return first, len(fresh)
}

// Append adds a live message after every message not newer than it. It
// reports false for a message already in the transcript.
func (s *Store) Append(m models.Message) bool {
	if !s.remember(m) {
		return false
	}
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	return true
}

func (s *Store) remember(m models.Message) bool {
	if m.ID == 0 {
		return true
	}
	if _, dup := s.ids[m.ID]; dup {
		return false
	}
	s.ids[m.ID] = struct{}{}
	return true
}

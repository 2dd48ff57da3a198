package presence

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// RosterFetcher fetches the full user list with online flags.
type RosterFetcher interface {
	OnlineUsers(ctx context.Context) ([]models.User, error)
}

// LastMessageStore persists observed traffic times across runs.
type LastMessageStore interface {
	Load(ctx context.Context) (map[int]time.Time, error)
	Save(ctx context.Context, userID int, at time.Time) error
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Store    LastMessageStore
	Logger   zerolog.Logger
}

// Tracker owns the roster. Refreshes replace online flags and names wholesale
// while observed last-message times are carried forward.
type Tracker struct {
	fetcher  RosterFetcher
	store    LastMessageStore
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	group    singleflight.Group

	mu        sync.RWMutex
	users     []models.User
	index     map[int]int
	seen      map[int]time.Time
	refreshed time.Time

	listenersMu sync.Mutex
	listeners   []func()
}

func NewTracker(fetcher RosterFetcher, opts Options) *Tracker {
	t := &Tracker{
		fetcher:  fetcher,
		store:    opts.Store,
		clock:    opts.Clock,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		index:    make(map[int]int),
		seen:     make(map[int]time.Time),
	}
	if t.clock == nil {
		t.clock = clock.New()
	}
	if t.interval <= 0 {
		t.interval = 5 * time.Second
	}
	if t.timeout <= 0 {
		t.timeout = 10 * time.Second
	}
	return t
}

// OnChange registers fn to be called after every roster change.
func (t *Tracker) OnChange(fn func()) {
	t.listenersMu.Lock()
	t.listeners = append(t.listeners, fn)
	t.listenersMu.Unlock()
}

func (t *Tracker) notify() {
	t.listenersMu.Lock()
	fns := append([]func(){}, t.listeners...)
	t.listenersMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Seed loads persisted last-message times. Without a store it does nothing.
func (t *Tracker) Seed(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	times, err := t.store.Load(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	for id, at := range times {
		if cur, ok := t.seen[id]; !ok || at.After(cur) {
			t.seen[id] = at
		}
	}
	t.mu.Unlock()
	t.log.Debug().Int("entries", len(times)).Msg("[presence] seeded last message times")
	return nil
}

// Run refreshes once immediately and then on every interval until ctx ends.
// Failed refreshes are logged and the loop carries on.
func (t *Tracker) Run(ctx context.Context) {
	_ = t.Refresh(ctx)

	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.Refresh(ctx)
		}
	}
}

// Refresh fetches the roster. Concurrent callers share one request. On
// failure the current roster is left untouched.
func (t *Tracker) Refresh(ctx context.Context) error {
	_, err, _ := t.group.Do("roster", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		users, err := t.fetcher.OnlineUsers(fetchCtx)
		if err != nil {
			observability.IncRosterRefresh(false)
			t.log.Warn().Err(err).Msg("[presence] roster refresh failed")
			return nil, err
		}
		observability.IncRosterRefresh(true)
		t.replace(users)
		return nil, nil
	})
	if err != nil {
		return err
	}
	t.notify()
	return nil
}

// RefreshAsync starts an out-of-band refresh, used when a live event names a
// user the roster does not know yet.
func (t *Tracker) RefreshAsync() {
	go func() {
		_ = t.Refresh(context.Background())
	}()
}

func (t *Tracker) replace(fresh []models.User) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.index
	old := t.users
	users := make([]models.User, len(fresh))
	index := make(map[int]int, len(fresh))
	for i, u := range fresh {
		if j, ok := prev[u.ID]; ok {
			u.LastMessageTime = later(u.LastMessageTime, old[j].LastMessageTime)
		}
		if at, ok := t.seen[u.ID]; ok {
			at := at
			u.LastMessageTime = later(u.LastMessageTime, &at)
		}
		users[i] = u
		index[u.ID] = i
	}
	t.users = users
	t.index = index
	t.refreshed = t.clock.Now()
}

// Touch records traffic with userID at the given time.
func (t *Tracker) Touch(userID int, at time.Time) {
	t.mu.Lock()
	if cur, ok := t.seen[userID]; !ok || at.After(cur) {
		t.seen[userID] = at
	}
	if i, ok := t.index[userID]; ok {
		at := at
		t.users[i].LastMessageTime = later(t.users[i].LastMessageTime, &at)
	}
	t.mu.Unlock()

	if t.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
			defer cancel()
			if err := t.store.Save(ctx, userID, at); err != nil {
				t.log.Debug().Err(err).Int("user_id", userID).Msg("[presence] persist last message time failed")
			}
		}()
	}
	t.notify()
}

// Lookup returns the latest snapshot entry for userID.
func (t *Tracker) Lookup(userID int) (models.User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[userID]
	if !ok {
		return models.User{}, false
	}
	return t.users[i], true
}

// Snapshot returns a copy of the current roster.
func (t *Tracker) Snapshot() []models.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.User(nil), t.users...)
}

// LastRefresh is the time of the last successful refresh, zero if none.
func (t *Tracker) LastRefresh() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshed
}

package presence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/models"
)

func newTestTracker(fetcher RosterFetcher, mc *clock.Mock, store LastMessageStore) *Tracker {
	return NewTracker(fetcher, Options{
		Interval: 5 * time.Second,
		Clock:    mc,
		Store:    store,
		Logger:   zerolog.Nop(),
	})
}

func TestRefreshCarriesLastMessageTimeForward(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{
		{ID: 2, Username: "bob", Online: true, LastMessageTime: at(100)},
	}, nil).Once()
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{
		{ID: 2, Username: "bob", Online: false},
	}, nil).Once()

	tr := newTestTracker(fetcher, clock.NewMock(), nil)
	require.NoError(t, tr.Refresh(context.Background()))
	require.NoError(t, tr.Refresh(context.Background()))

	bob, ok := tr.Lookup(2)
	require.True(t, ok)
	assert.False(t, bob.Online)
	require.NotNil(t, bob.LastMessageTime)
	assert.Equal(t, int64(100), bob.LastMessageUnix())
}

func TestRefreshKeepsLaterOfServerAndLocalTimes(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{
		{ID: 2, Username: "bob", Online: true, LastMessageTime: at(100)},
	}, nil)

	tr := newTestTracker(fetcher, clock.NewMock(), nil)
	tr.Touch(2, time.Unix(500, 0))
	require.NoError(t, tr.Refresh(context.Background()))

	bob, _ := tr.Lookup(2)
	assert.Equal(t, int64(500), bob.LastMessageUnix())
}

func TestRefreshFailureKeepsRoster(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{{ID: 2, Username: "bob", Online: true}}, nil).Once()
	fetcher.On("OnlineUsers", mock.Anything).Return(nil, errors.New("boom")).Once()

	tr := newTestTracker(fetcher, clock.NewMock(), nil)
	var changes atomic.Int32
	tr.OnChange(func() { changes.Add(1) })

	require.NoError(t, tr.Refresh(context.Background()))
	require.Error(t, tr.Refresh(context.Background()))

	assert.Len(t, tr.Snapshot(), 1)
	assert.Equal(t, int32(1), changes.Load())
}

func TestTouchUpdatesAndNotifies(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{{ID: 2, Username: "bob"}}, nil)
	tr := newTestTracker(fetcher, clock.NewMock(), nil)
	require.NoError(t, tr.Refresh(context.Background()))

	notified := false
	tr.OnChange(func() { notified = true })
	tr.Touch(2, time.Unix(900, 0))
	tr.Touch(2, time.Unix(800, 0))

	bob, _ := tr.Lookup(2)
	assert.Equal(t, int64(900), bob.LastMessageUnix())
	assert.True(t, notified)

	_, ok := tr.Lookup(42)
	assert.False(t, ok)
}

func TestRunPollsOnInterval(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	var calls atomic.Int32
	fetcher.On("OnlineUsers", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return([]models.User{}, nil)

	mc := clock.NewMock()
	tr := newTestTracker(fetcher, mc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mc.Add(5 * time.Second)
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	fetcher := new(mocks.RosterFetcherMock)
	var calls atomic.Int32
	fetcher.On("OnlineUsers", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(nil, errors.New("down"))

	mc := clock.NewMock()
	tr := newTestTracker(fetcher, mc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		mc.Add(5 * time.Second)
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, tr.Snapshot())
}

func TestSeedAndPersist(t *testing.T) {
	store := new(mocks.LastMessageRepositoryMock)
	store.On("Load", mock.Anything).Return(map[int]time.Time{2: time.Unix(400, 0)}, nil)
	saved := make(chan int, 1)
	store.On("Save", mock.Anything, 3, time.Unix(700, 0)).
		Run(func(args mock.Arguments) { saved <- args.Int(1) }).
		Return(nil)

	fetcher := new(mocks.RosterFetcherMock)
	fetcher.On("OnlineUsers", mock.Anything).Return([]models.User{{ID: 2, Username: "bob"}, {ID: 3, Username: "carol"}}, nil)

	tr := newTestTracker(fetcher, clock.NewMock(), store)
	require.NoError(t, tr.Seed(context.Background()))
	require.NoError(t, tr.Refresh(context.Background()))

	bob, _ := tr.Lookup(2)
	assert.Equal(t, int64(400), bob.LastMessageUnix())

	tr.Touch(3, time.Unix(700, 0))
	select {
	case id := <-saved:
		assert.Equal(t, 3, id)
	case <-time.After(time.Second):
		t.Fatal("last message time was not persisted")
	}
}

func TestSeedWithoutStore(t *testing.T) {
	tr := newTestTracker(new(mocks.RosterFetcherMock), clock.NewMock(), nil)
	assert.NoError(t, tr.Seed(context.Background()))
}

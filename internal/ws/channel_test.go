package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

type fakeServer struct {
	srv      *httptest.Server
	dials    atomic.Int32
	pings    atomic.Int32
	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan models.Event
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fs := &fakeServer{received: make(chan models.Event, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if _, err := c.Cookie("session_id"); err != nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		fs.dials.Add(1)
		conn.SetPingHandler(func(data string) error {
			fs.pings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
		for {
			var ev models.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			fs.received <- ev
		}
	})
	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

func (fs *fakeServer) last(t *testing.T, n int) *websocket.Conn {
	t.Helper()
	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.conns) >= n
	}, time.Second, 5*time.Millisecond)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.conns[n-1]
}

func startChannel(t *testing.T, fs *fakeServer, mock *clock.Mock, onEvent func(models.Event)) (*Channel, context.CancelFunc, chan error) {
	t.Helper()
	header := http.Header{}
	header.Set("Cookie", "session_id=abc")
	ch := NewChannel(Options{
		URL:     fs.url(),
		Header:  header,
		Policy:  FixedDelay{Delay: 5 * time.Second},
		Clock:   mock,
		Logger:  zerolog.Nop(),
		OnEvent: onEvent,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	t.Cleanup(cancel)
	return ch, cancel, done
}

func TestChannelDeliversInboundEventsInOrder(t *testing.T) {
	fs := newFakeServer(t)
	var mu sync.Mutex
	var got []models.Event
	ch, _, _ := startChannel(t, fs, clock.NewMock(), func(ev models.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)

	conn := fs.last(t, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","sender_id":2,"receiver_id":1}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","sender_id":2,"receiver_id":1,"content":"hi"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.EventTyping, got[0].Type)
	assert.Equal(t, models.EventMessage, got[1].Type)
	assert.Equal(t, "hi", got[1].Content)
}

func TestChannelSend(t *testing.T) {
	fs := newFakeServer(t)
	ch, _, _ := startChannel(t, fs, clock.NewMock(), nil)
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Send(models.NewTypingEvent(models.EventTyping, 1, 2)))

	select {
	case ev := <-fs.received:
		assert.Equal(t, models.EventTyping, ev.Type)
		assert.Equal(t, 2, ev.ReceiverID)
	case <-time.After(time.Second):
		t.Fatal("server did not receive event")
	}
}

func TestChannelSendWhenClosed(t *testing.T) {
	ch := NewChannel(Options{URL: "ws://127.0.0.1:1/ws", Logger: zerolog.Nop()})

	assert.Equal(t, StateClosed, ch.State())
	assert.ErrorIs(t, ch.Send(models.NewTypingEvent(models.EventTyping, 1, 2)), ErrNotConnected)
}

func TestChannelReconnectsAfterFixedDelay(t *testing.T) {
	fs := newFakeServer(t)
	mock := clock.NewMock()
	ch, _, _ := startChannel(t, fs, mock, nil)
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)
	require.NoError(t, fs.last(t, 1).Close())
	require.Eventually(t, func() bool {
		return ch.State() == StateReconnectScheduled
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, ch.Send(models.NewTypingEvent(models.EventTyping, 1, 2)), ErrNotConnected)

	mock.Add(4 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fs.dials.Load(), "redialed before the delay elapsed")

	mock.Add(time.Second)
	fs.last(t, 2)
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)
}

func TestChannelStopsOnCancel(t *testing.T) {
	fs := newFakeServer(t)
	ch, cancel, done := startChannel(t, fs, clock.NewMock(), nil)
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannelGivesUpWhenPolicyExhausted(t *testing.T) {
	ch := NewChannel(Options{
		URL:    "ws://127.0.0.1:1/ws",
		Policy: NewExponential(time.Millisecond, time.Millisecond, 1),
		Clock:  clock.NewMock(),
		Logger: zerolog.Nop(),
	})
	mock := ch.clock.(*clock.Mock)

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrReconnectExhausted)
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelPingsOnKeepaliveInterval(t *testing.T) {
	fs := newFakeServer(t)
	mock := clock.NewMock()
	ch, _, _ := startChannel(t, fs, mock, func(models.Event) {})
	require.Eventually(t, ch.IsOpen, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mock.Add(pingPeriod)
		return fs.pings.Load() > 0
	}, time.Second, 10*time.Millisecond)
	assert.True(t, ch.IsOpen())
}

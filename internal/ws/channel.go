package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var ErrNotConnected = errors.New("live channel is not open")

// State is the lifecycle position of the live channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Options struct {
	URL    string
	Header http.Header
	Policy ReconnectPolicy
	Clock  clock.Clock
	Dialer *websocket.Dialer

	Telemetry *telemetry.Emitter
	Logger    zerolog.Logger

	// OnEvent receives decoded inbound events in arrival order.
	OnEvent func(models.Event)
	// OnState is called on every state transition.
	OnState func(State)
}

// Channel keeps a single websocket connection to the chat server alive.
type Channel struct {
	url     string
	header  http.Header
	policy  ReconnectPolicy
	clock   clock.Clock
	dialer  *websocket.Dialer
	events  *telemetry.Emitter
	log     zerolog.Logger
	onEvent func(models.Event)
	onState func(State)

	state atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	info    ConnInfo
	attempt int

	writeMu sync.Mutex
}

func NewChannel(opts Options) *Channel {
	c := &Channel{
		url:     opts.URL,
		header:  opts.Header,
		policy:  opts.Policy,
		clock:   opts.Clock,
		dialer:  opts.Dialer,
		events:  opts.Telemetry,
		log:     opts.Logger,
		onEvent: opts.OnEvent,
		onState: opts.OnState,
	}
	if c.policy == nil {
		c.policy = FixedDelay{Delay: 5 * time.Second}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.onEvent == nil {
		c.onEvent = func(models.Event) {}
	}
	c.state.Store(int32(StateClosed))
	return c
}

func (c *Channel) State() State { return State(c.state.Load()) }

func (c *Channel) IsOpen() bool { return c.State() == StateOpen }

// Info returns details of the current or last connection.
func (c *Channel) Info() ConnInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Channel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	observability.SetWSConnected(s == StateOpen)
	if c.onState != nil {
		c.onState(s)
	}
}

// Run dials, serves and redials until ctx is cancelled or the reconnect
// policy gives up. Only one connection attempt is ever pending.
func (c *Channel) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		err := c.connectAndServe(ctx)
		c.setState(StateClosed)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := c.policy.Next()
		if !ok {
			c.log.Error().Err(err).Msg("[ws] giving up")
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}
		c.log.Info().Err(err).Dur("delay", delay).Msg("[ws] reconnect scheduled")
		timer := c.clock.Timer(delay)
		c.setState(StateReconnectScheduled)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Channel) connectAndServe(ctx context.Context) error {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		observability.IncWSEvent("ws_error")
		c.events.Emit(ctx, "ws_events", "ws_error", ConnInfo{URL: c.url, Attempt: attempt}.payload("ws_error", err.Error(), c.clock.Now()))
		c.log.Warn().Err(err).Str("url", c.url).Int("attempt", attempt).Msg("[ws] dial failed")
		return err
	}

	info := newConnInfo(c.url, attempt, c.clock.Now())
	c.mu.Lock()
	c.conn = conn
	c.info = info
	c.attempt = 0
	c.mu.Unlock()

	c.policy.Reset()
	c.setState(StateOpen)
	observability.IncWSEvent("ws_connect")
	c.events.Emit(ctx, "ws_events", "ws_connect", info.payload("ws_connect", "", c.clock.Now()))
	c.log.Info().Str("conn_id", info.ConnID).Msg("[ws] connected")

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.keepalive(serveCtx, conn)

	err = c.readPump(conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if err != nil && ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		observability.IncWSEvent("ws_error")
		c.events.Emit(ctx, "ws_events", "ws_error", info.payload("ws_error", reason, c.clock.Now()))
	}
	observability.IncWSEvent("ws_disconnect")
	c.events.Emit(context.WithoutCancel(ctx), "ws_events", "ws_disconnect", info.payload("ws_disconnect", reason, c.clock.Now()))
	c.log.Info().Str("conn_id", info.ConnID).Str("reason", reason).Msg("[ws] disconnected")
	return err
}

func (c *Channel) readPump(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := Decode(data)
		if err != nil {
			observability.IncDroppedPayload()
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("[ws] dropped payload")
			continue
		}
		observability.IncInboundEvent(string(ev.Type))
		c.onEvent(ev)
	}
}

// keepalive pings the server and closes the connection when ctx ends, which
// unblocks the read pump.
func (c *Channel) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := c.clock.Ticker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.writeMu.Unlock()
			_ = conn.Close()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug().Err(err).Msg("[ws] ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

// Send writes one event. It fails with ErrNotConnected unless the channel is open.
func (c *Channel) Send(ev models.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.IsOpen() {
		c.log.Debug().Str("type", string(ev.Type)).Msg("[ws] send while not open")
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := writeJSON(conn, ev); err != nil {
		c.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("[ws] write failed")
		return fmt.Errorf("write %s: %w", ev.Type, err)
	}
	return nil
}

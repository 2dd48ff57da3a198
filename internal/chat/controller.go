package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/presence"
	"chat-client/internal/telemetry"
)

// HistoryFetcher loads one page of a conversation.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, userID, limit, offset int) ([]models.Message, error)
}

// Channel is the outbound half of the live connection.
type Channel interface {
	IsOpen() bool
	Send(ev models.Event) error
}

// Roster is the controller's view of the presence tracker.
type Roster interface {
	Lookup(userID int) (models.User, bool)
	Snapshot() []models.User
	Touch(userID int, at time.Time)
	RefreshAsync()
}

type Options struct {
	Self           int
	History        HistoryFetcher
	Channel        Channel
	Roster         Roster
	Renderer       Renderer
	Clock          clock.Clock
	TypingIdle     time.Duration
	RequestTimeout time.Duration
	Telemetry      *telemetry.Emitter
	Logger         zerolog.Logger
}

// Controller owns the open conversation. Its exported methods may be called
// from any goroutine; the work itself runs on the controller's loop.
type Controller struct {
	self    int
	history HistoryFetcher
	channel Channel
	roster  Roster
	render  Renderer
	clock   clock.Clock
	timeout time.Duration
	typing  *TypingEmitter
	events  *telemetry.Emitter
	log     zerolog.Logger
	loop    *Loop
	baseCtx context.Context

	// loop-owned
	session   *Session
	search    string
	connected bool
}

func NewController(opts Options) *Controller {
	c := &Controller{
		self:    opts.Self,
		history: opts.History,
		channel: opts.Channel,
		roster:  opts.Roster,
		render:  opts.Renderer,
		clock:   opts.Clock,
		timeout: opts.RequestTimeout,
		events:  opts.Telemetry,
		log:     opts.Logger,
		baseCtx: context.Background(),
	}
	c.loop = NewLoop(c.rosterChanged)
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	c.typing = NewTypingEmitter(c.clock, opts.TypingIdle, c.emitTyping)
	return c
}

// Run processes controller work until ctx is cancelled. In-flight history
// requests are cancelled with it.
func (c *Controller) Run(ctx context.Context) {
	c.baseCtx = ctx
	c.loop.Post(func() {
		c.renderRoster()
		c.renderConversation(ScrollNone, 0)
	})
	c.loop.Run(ctx)
	if c.session != nil {
		c.session.close()
	}
	c.typing.Reset()
}

// Select opens the conversation with userID, offline users included.
func (c *Controller) Select(userID int) { c.loop.Post(func() { c.selectUser(userID) }) }

// Back closes the open conversation.
func (c *Controller) Back() { c.loop.Post(c.back) }

// LoadOlder requests the next older history page unless one is in flight
// or history is exhausted.
func (c *Controller) LoadOlder() { c.loop.Post(c.loadOlder) }

func (c *Controller) Search(term string) { c.loop.Post(func() { c.setSearch(term) }) }

// Input reports a change of the draft text.
func (c *Controller) Input(draft string) { c.loop.Post(func() { c.input(draft) }) }

// HandleEvent consumes one inbound live channel event.
func (c *Controller) HandleEvent(ev models.Event) { c.loop.Post(func() { c.handleEvent(ev) }) }

// HandleRoster re-reads the roster after the tracker changed it. It never
// blocks, so the tracker may call it from inside controller work.
func (c *Controller) HandleRoster() { c.loop.Wake() }

func (c *Controller) SetConnected(open bool) { c.loop.Post(func() { c.setConnected(open) }) }

// Send submits text to the open conversation. Rejections surface as notices.
func (c *Controller) Send(text string) {
	c.loop.Post(func() {
		if err := c.send(text); err != nil {
			c.reject(err)
		}
	})
}

// Flush waits until every task posted before it has run.
func (c *Controller) Flush(ctx context.Context) error {
	return c.loop.Call(ctx, func() {})
}

// State is a point-in-time summary for diagnostics.
type State struct {
	Self          int    `json:"self"`
	Connected     bool   `json:"connected"`
	Search        string `json:"search,omitempty"`
	SelectedID    int    `json:"selected_id,omitempty"`
	SelectedName  string `json:"selected_name,omitempty"`
	Messages      int    `json:"messages"`
	PageOffset    int    `json:"page_offset"`
	HistoryLoaded bool   `json:"history_loaded"`
	LoadingPage   bool   `json:"loading_page"`
	LocalTyping   bool   `json:"local_typing"`
}

func (c *Controller) State(ctx context.Context) (State, error) {
	var st State
	err := c.loop.Call(ctx, func() {
		st = State{Self: c.self, Connected: c.connected, Search: c.search, LocalTyping: c.typing.Typing()}
		if s := c.session; s != nil {
			st.SelectedID = s.User.ID
			st.SelectedName = s.User.Username
			st.Messages = s.Store.Len()
			st.PageOffset = s.Store.Offset()
			st.HistoryLoaded = s.Store.Exhausted()
			st.LoadingPage = s.Store.Loading()
		}
	})
	return st, err
}

func (c *Controller) selectUser(userID int) {
	u, ok := c.roster.Lookup(userID)
	if !ok {
		c.log.Warn().Int("user_id", userID).Msg("[chat] select: unknown user")
		c.render.ShowNotice(ErrUnknownUser.Error())
		return
	}
	c.closeSession()

	c.session = newSession(c.baseCtx, u)
	c.log.Debug().Int("user_id", u.ID).Bool("online", u.Online).Msg("[chat] conversation opened")
	c.renderRoster()
	c.loadOlder()
}

func (c *Controller) back() {
	if c.session == nil {
		return
	}
	c.closeSession()
	c.renderRoster()
	c.renderConversation(ScrollNone, 0)
}

func (c *Controller) closeSession() {
	if c.session == nil {
		return
	}
	c.session.close()
	c.session = nil
	c.typing.Reset()
}

func (c *Controller) loadOlder() {
	sess := c.session
	if sess == nil {
		return
	}
	offset, ok := sess.Store.BeginLoad()
	if !ok {
		return
	}
	c.renderConversation(ScrollNone, 0)

	userID := sess.User.ID
	go func() {
		ctx, cancel := context.WithTimeout(sess.ctx, c.timeout)
		defer cancel()
		page, err := c.history.ChatHistory(ctx, userID, PageSize, offset)
		c.loop.Post(func() { c.completePage(sess, page, err) })
	}()
}

func (c *Controller) completePage(sess *Session, page []models.Message, err error) {
	if c.session != sess {
		c.log.Debug().Int("user_id", sess.User.ID).Msg("[chat] dropped stale history page")
		return
	}
	if err != nil {
		sess.Store.FailLoad()
		c.log.Warn().Err(err).Int("user_id", sess.User.ID).Int("offset", sess.Store.Offset()).Msg("[chat] history page failed")
		c.renderConversation(ScrollNone, 0)
		return
	}

	first, added := sess.Store.CompletePage(page)
	if first {
		c.renderConversation(ScrollBottom, 0)
		return
	}
	c.renderConversation(ScrollAnchor, added)
}

func (c *Controller) send(text string) error {
	sess := c.session
	if sess == nil {
		return ErrNoConversation
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return ErrMessageTooLong
	}
	if !c.channel.IsOpen() {
		return ErrNotConnected
	}
	if u, ok := c.roster.Lookup(sess.User.ID); !ok || !u.Online {
		return ErrRecipientOffline
	}

	now := c.clock.Now()
	ev := models.NewMessageEvent(c.self, sess.User.ID, content, now)
	if err := c.channel.Send(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	c.typing.Sent()

	sess.Store.Append(ev.Message())
	sess.draft = ""
	c.roster.Touch(sess.User.ID, now)
	c.renderConversation(ScrollBottom, 0)
	return nil
}

func (c *Controller) reject(err error) {
	reason, notice := rejection(err)
	observability.IncSendRejected(reason)
	payload := map[string]any{"reason": reason}
	if c.session != nil {
		payload["receiver_id"] = c.session.User.ID
	}
	c.events.Emit(c.baseCtx, "chat_events", "send_rejected", payload)
	c.log.Info().Err(err).Str("reason", reason).Msg("[chat] send rejected")
	c.render.ShowNotice(notice)
}

func (c *Controller) input(draft string) {
	sess := c.session
	if sess == nil {
		return
	}
	sess.draft = draft
	c.typing.Input(sess.User.ID)
}

func (c *Controller) emitTyping(kind models.EventType, receiverID int) {
	if !c.channel.IsOpen() {
		return
	}
	if err := c.channel.Send(models.NewTypingEvent(kind, c.self, receiverID)); err != nil {
		c.log.Debug().Err(err).Str("type", string(kind)).Msg("[chat] typing event not sent")
	}
}

func (c *Controller) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventSystem:
		c.render.ShowNotice(ev.Content)
	case models.EventMessage:
		c.handleMessage(ev.Message())
	case models.EventTyping, models.EventStopTyping:
		c.handleTyping(ev)
	default:
		c.log.Debug().Str("type", string(ev.Type)).Msg("[chat] ignored event")
	}
}

func (c *Controller) handleMessage(m models.Message) {
	if m.SenderID != c.self && m.ReceiverID != c.self {
		return
	}
	counterpart := m.Counterpart(c.self)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.clock.Now()
	}

	from, known := c.roster.Lookup(counterpart)
	if !known {
		c.roster.RefreshAsync()
		from = models.User{ID: counterpart}
	}
	c.roster.Touch(counterpart, m.CreatedAt)

	sess := c.session
	if sess != nil && m.Involves(c.self, sess.User.ID) {
		// the server echoes our own messages back; they are already shown
		if m.SenderID == c.self {
			return
		}
		sess.Store.Append(m)
		sess.remoteTyping = false
		c.renderConversation(ScrollBottom, 0)
		return
	}
	if m.SenderID != c.self {
		c.render.Notify(from, m)
	}
}

func (c *Controller) handleTyping(ev models.Event) {
	sess := c.session
	if sess == nil || ev.SenderID != sess.User.ID || ev.ReceiverID != c.self {
		return
	}
	typing := ev.Type == models.EventTyping
	if sess.remoteTyping == typing {
		return
	}
	sess.remoteTyping = typing
	c.renderConversation(ScrollNone, 0)
}

func (c *Controller) rosterChanged() {
	c.renderRoster()
	sess := c.session
	if sess == nil {
		return
	}
	u, ok := c.roster.Lookup(sess.User.ID)
	if !ok {
		u = sess.User
		u.Online = false
	}
	if u.Online == sess.User.Online && u.Username == sess.User.Username {
		sess.User = u
		return
	}
	sess.User = u
	c.renderConversation(ScrollNone, 0)
}

func (c *Controller) setSearch(term string) {
	c.search = term
	c.renderRoster()
}

func (c *Controller) setConnected(open bool) {
	if c.connected == open {
		return
	}
	c.connected = open
	c.renderConversation(ScrollNone, 0)
}

func (c *Controller) renderRoster() {
	users := c.roster.Snapshot()
	view := RosterView{
		Users:       presence.Visible(users, c.self, c.search),
		OnlineCount: presence.OnlineCount(users, c.self),
		Search:      c.search,
	}
	if c.session != nil {
		view.SelectedID = c.session.User.ID
	}
	c.render.RenderRoster(view)
}

func (c *Controller) renderConversation(scroll Scroll, prepended int) {
	sess := c.session
	if sess == nil {
		c.render.RenderConversation(ConversationView{Self: c.self, Connected: c.connected})
		return
	}
	c.render.RenderConversation(ConversationView{
		Open:      true,
		User:      sess.User,
		Messages:  sess.Store.Messages(),
		Self:      c.self,
		CanSend:   sess.User.Online,
		Connected: c.connected,
		Typing:    sess.remoteTyping,
		Loading:   sess.Store.Loading(),
		Exhausted: sess.Store.Exhausted(),
		Draft:     sess.draft,
		Scroll:    scroll,
		Prepended: prepended,
	})
}

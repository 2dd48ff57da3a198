package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// SessionCookie is the cookie the forum uses to identify a logged-in user.
const SessionCookie = "session_id"

var (
	// ErrUnauthenticated means the forum did not accept the session.
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Client wraps the forum's JSON API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a client that presents sessionID on every request.
func NewClient(baseURL, sessionID string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if sessionID != "" {
		jar.SetCookies(u, []*http.Cookie{{Name: SessionCookie, Value: sessionID, Path: "/"}})
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: timeout},
		log:     logger,
	}, nil
}

// SessionHeader returns the headers the live channel handshake must carry.
func (c *Client) SessionHeader() http.Header {
	h := http.Header{}
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		h.Add("Cookie", ck.String())
	}
	return h
}

// Profile resolves the local user's id.
func (c *Client) Profile(ctx context.Context) (int, error) {
	var resp struct {
		UserID int `json:"userID"`
	}
	if err := c.getJSON(ctx, "profile", "/api/profile", nil, &resp); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if resp.UserID == 0 {
		return 0, fmt.Errorf("%w: profile has no user id", ErrUnauthenticated)
	}
	return resp.UserID, nil
}

// OnlineUsers fetches the full roster with online flags.
func (c *Client) OnlineUsers(ctx context.Context) ([]models.User, error) {
	var resp struct {
		Users []models.RosterEntry `json:"users"`
	}
	if err := c.getJSON(ctx, "online_users", "/api/online_users", nil, &resp); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(resp.Users))
	for _, e := range resp.Users {
		users = append(users, e.User())
	}
	return users, nil
}

// ChatHistory fetches one page of the conversation with userID, newest first on the server side.
func (c *Client) ChatHistory(ctx context.Context, userID, limit, offset int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("user_id", strconv.Itoa(userID))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var msgs []models.Message
	if err := c.getJSON(ctx, "chat_history", "/api/chat_history", q, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	ctx, span := otel.Tracer("chat-client/api").Start(ctx, "api."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	requestID := observability.TagRequest(req)
	span.SetAttributes(attribute.String("request_id", requestID), attribute.String("http.url", u.String()))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveAPIRequest(endpoint, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	observability.ObserveAPIRequest(endpoint, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		span.SetStatus(codes.Error, "unauthorized")
		return ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		span.SetStatus(codes.Error, resp.Status)
		return fmt.Errorf("%s: %w %d", endpoint, ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	c.log.Trace().Str("endpoint", endpoint).Str("request_id", requestID).Msg("[api] ok")
	return nil
}

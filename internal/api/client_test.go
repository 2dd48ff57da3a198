package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupForum(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := func(c *gin.Context) {
		if ck, err := c.Cookie(SessionCookie); err != nil || ck != "sess-1" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
	r.GET("/api/profile", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": 1, "username": "alice"})
	})
	r.GET("/api/online_users", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": []gin.H{
			{"id": 2, "username": "bob", "online": true, "lastMessageTime": 1700000000},
			{"id": 3, "username": "carol", "online": false, "lastMessageTime": 0},
		}})
	})
	r.GET("/api/chat_history", authed, func(c *gin.Context) {
		if c.Query("user_id") != "2" || c.Query("limit") != "10" || c.Query("offset") != "20" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(`[{"id":5,"sender_id":2,"receiver_id":1,"content":"hi","created_at":"2024-01-02T03:04:05Z"}]`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL, session string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, session, 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestProfileResolvesUserID(t *testing.T) {
	srv := setupForum(t)
	c := newTestClient(t, srv.URL, "sess-1")

	id, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestProfileWithoutSessionIsUnauthenticated(t *testing.T) {
	srv := setupForum(t)
	c := newTestClient(t, srv.URL, "")

	_, err := c.Profile(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestProfileTransportFailureIsUnauthenticated(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "sess-1")

	_, err := c.Profile(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOnlineUsersConvertsLastMessageTime(t *testing.T) {
	srv := setupForum(t)
	c := newTestClient(t, srv.URL, "sess-1")

	users, err := c.OnlineUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "bob", users[0].Username)
	assert.True(t, users[0].Online)
	require.NotNil(t, users[0].LastMessageTime)
	assert.Equal(t, int64(1700000000), users[0].LastMessageTime.Unix())
	assert.Nil(t, users[1].LastMessageTime)
}

func TestChatHistoryPassesPagination(t *testing.T) {
	srv := setupForum(t)
	c := newTestClient(t, srv.URL, "sess-1")

	msgs, err := c.ChatHistory(context.Background(), 2, 10, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, 2024, msgs[0].CreatedAt.Year())
}

func TestChatHistoryUnexpectedStatus(t *testing.T) {
	srv := setupForum(t)
	c := newTestClient(t, srv.URL, "sess-1")

	_, err := c.ChatHistory(context.Background(), 9, 10, 0)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestSessionHeaderCarriesCookie(t *testing.T) {
	c := newTestClient(t, "http://forum.local", "sess-1")

	assert.Equal(t, "session_id=sess-1", c.SessionHeader().Get("Cookie"))
}

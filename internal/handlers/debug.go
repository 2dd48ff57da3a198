package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/chat"
	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/ws"
)

type StateSource interface {
	State(ctx context.Context) (chat.State, error)
}

type RosterSource interface {
	Snapshot() []models.User
	LastRefresh() time.Time
}

type ConnectionSource interface {
	State() ws.State
	Info() ws.ConnInfo
}

// DebugHandler exposes the running client's state for local inspection.
type DebugHandler struct {
	state  StateSource
	roster RosterSource
	conn   ConnectionSource
}

func NewDebugHandler(state StateSource, roster RosterSource, conn ConnectionSource) *DebugHandler {
	return &DebugHandler{state: state, roster: roster, conn: conn}
}

type connectionState struct {
	State       string     `json:"state"`
	ConnID      string     `json:"conn_id,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

type rosterState struct {
	Users       []models.User `json:"users"`
	LastRefresh *time.Time    `json:"last_refresh,omitempty"`
}

// State handles GET /debug/state.
func (h *DebugHandler) State(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	st, err := h.state.State(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	info := h.conn.Info()
	conn := connectionState{State: h.conn.State().String(), ConnID: info.ConnID}
	if !info.ConnectedAt.IsZero() {
		conn.ConnectedAt = &info.ConnectedAt
	}

	roster := rosterState{Users: h.roster.Snapshot()}
	if at := h.roster.LastRefresh(); !at.IsZero() {
		roster.LastRefresh = &at
	}
	if roster.Users == nil {
		roster.Users = []models.User{}
	}

	c.JSON(http.StatusOK, gin.H{
		"session":    st,
		"connection": conn,
		"roster":     roster,
	})
}

// NewRouter builds the debug server: /metrics is open, /debug requires token when set.
func NewRouter(h *DebugHandler, serviceName, token string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug := router.Group("/debug", middleware.TokenMiddleware(token))
	debug.GET("/state", h.State)
	return router
}

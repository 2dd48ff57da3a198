package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_debug_http_requests_total",
			Help: "Total number of HTTP requests processed by the local debug server.",
		},
		[]string{"method", "route", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_api_request_duration_seconds",
			Help:    "Latency of forum API calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_ws_events_total",
			Help: "Total number of live channel lifecycle events.",
		},
		[]string{"event"},
	)
	wsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_ws_connected",
			Help: "1 while the live channel is open.",
		},
	)
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_inbound_events_total",
			Help: "Inbound live channel payloads by type.",
		},
		[]string{"type"},
	)
	droppedPayloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_dropped_payloads_total",
			Help: "Inbound payloads dropped because they could not be parsed.",
		},
	)
	sendRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_send_rejected_total",
			Help: "Outbound messages rejected before reaching the channel.",
		},
		[]string{"reason"},
	)
	rosterRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_roster_refresh_total",
			Help: "Roster refreshes by result.",
		},
		[]string{"result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		apiRequestDuration,
		wsEventsTotal,
		wsConnected,
		inboundEventsTotal,
		droppedPayloadsTotal,
		sendRejectedTotal,
		rosterRefreshTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func ObserveAPIRequest(endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestDuration.WithLabelValues(endpoint, label).Observe(elapsed.Seconds())
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func SetWSConnected(open bool) {
	if open {
		wsConnected.Set(1)
		return
	}
	wsConnected.Set(0)
}

func IncInboundEvent(eventType string) {
	inboundEventsTotal.WithLabelValues(eventType).Inc()
}

func IncDroppedPayload() {
	droppedPayloadsTotal.Inc()
}

func IncSendRejected(reason string) {
	sendRejectedTotal.WithLabelValues(reason).Inc()
}

func IncRosterRefresh(ok bool) {
	if ok {
		rosterRefreshTotal.WithLabelValues("ok").Inc()
		return
	}
	rosterRefreshTotal.WithLabelValues("error").Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

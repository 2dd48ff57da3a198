package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

const (
	queueSize      = 64
	publishTimeout = 2 * time.Second
	// lifecycle events are stale after an hour
	eventTTL = time.Hour
)

var (
	ErrQueueFull = errors.New("amqp publish queue full")
	ErrClosed    = errors.New("amqp publisher closed")
)

// Publisher publishes client lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// NewPublisher connects to the broker and declares the topic exchange. Any
// failure yields a noop publisher; the client runs without a broker.
func NewPublisher(amqpURL, exchange string, logger zerolog.Logger) Publisher {
	if amqpURL == "" {
		logger.Debug().Msg("[amqp] disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url", log: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn().Err(err).Msg("[amqp] dial failed, using noop")
		return noopPublisher{reason: err.Error(), log: logger}
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("[amqp] channel failed, using noop")
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: logger}
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warn().Err(err).Str("exchange", exchange).Msg("[amqp] exchange declare failed, using noop")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: logger}
	}

	logger.Info().Str("exchange", exchange).Msg("[amqp] connected")
	return newAMQPPublisher(ch, conn, exchange, logger)
}

type outbound struct {
	routingKey string
	msg        amqp.Publishing
}

// amqpPublisher hands envelopes to a single worker so callers on the
// controller loop or the read pump never wait on the broker. When the
// queue is full events are dropped.
type amqpPublisher struct {
	ch       amqpChannel
	conn     io.Closer
	exchange string
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	done   chan struct{}
}

func newAMQPPublisher(ch amqpChannel, conn io.Closer, exchange string, logger zerolog.Logger) *amqpPublisher {
	p := &amqpPublisher{
		ch:       ch,
		conn:     conn,
		exchange: exchange,
		log:      logger,
		queue:    make(chan outbound, queueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues event. ctx only bounds the enqueue; delivery happens later
// with its own timeout, so events emitted while shutting down still go out.
func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	msg, err := buildPublishing(event, time.Now())
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- outbound{routingKey: routingKey, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.log.Debug().Str("routing_key", routingKey).Msg("[amqp] queue full, event dropped")
		return ErrQueueFull
	}
}

func (p *amqpPublisher) run() {
	defer close(p.done)
	for out := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.ch.PublishWithContext(ctx, p.exchange, out.routingKey, false, false, out.msg)
		cancel()
		if err != nil {
			observability.IncAMQPPublishError()
			p.log.Warn().Err(err).Str("routing_key", out.routingKey).Msg("[amqp] publish failed")
		}
	}
}

// Close flushes queued events, waiting at most one publish timeout, then
// closes the channel and connection.
func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(publishTimeout):
		p.log.Warn().Int("pending", len(p.queue)).Msg("[amqp] close before queue drained")
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// buildPublishing encodes event as a transient JSON message. Envelopes also
// set the AMQP type, app id and headers so consumers can filter without
// decoding the body.
func buildPublishing(event any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Expiration:   strconv.FormatInt(eventTTL.Milliseconds(), 10),
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         body,
	}

	var env *telemetry.Envelope
	switch e := event.(type) {
	case telemetry.Envelope:
		env = &e
	case *telemetry.Envelope:
		env = e
	}
	if env != nil {
		msg.Type = env.EventName
		msg.AppId = env.Service
		msg.Headers = amqp.Table{
			"event_type":     env.EventType,
			"environment":    env.Environment,
			"schema_version": int32(env.SchemaVersion),
		}
		if env.UserID != 0 {
			msg.Headers["user_id"] = int32(env.UserID)
		}
	}
	return msg, nil
}

type noopPublisher struct {
	reason string
	log    zerolog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.log.Trace().Str("routing_key", routingKey).Msg("[amqp] noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why p is a noop, empty otherwise.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}

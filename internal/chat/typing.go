package chat

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"chat-client/internal/models"
)

// DefaultTypingIdle is how long input may pause before typing is considered over.
const DefaultTypingIdle = 500 * time.Millisecond

// TypingEmitter turns raw input changes into one typing event per burst and
// a stop_typing event after the idle period.
type TypingEmitter struct {
	clock clock.Clock
	idle  time.Duration
	emit  func(kind models.EventType, receiverID int)

	mu       sync.Mutex
	typing   bool
	receiver int
	timer    *clock.Timer
	gen      uint64
}

func NewTypingEmitter(clk clock.Clock, idle time.Duration, emit func(models.EventType, int)) *TypingEmitter {
	if clk == nil {
		clk = clock.New()
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingEmitter{clock: clk, idle: idle, emit: emit}
}

// Input records one input change addressed to receiverID.
func (e *TypingEmitter) Input(receiverID int) {
	e.mu.Lock()
	var stopFor int
	if e.typing && e.receiver != receiverID {
		stopFor = e.receiver
	}
	start := !e.typing || stopFor != 0
	e.typing = true
	e.receiver = receiverID
	e.rearm()
	e.mu.Unlock()

	if stopFor != 0 {
		e.emit(models.EventStopTyping, stopFor)
	}
	if start {
		e.emit(models.EventTyping, receiverID)
	}
}

// Sent ends the burst because the draft went out.
func (e *TypingEmitter) Sent() { e.Reset() }

// Reset cancels the idle timer and emits stop_typing if a burst was active.
func (e *TypingEmitter) Reset() {
	e.mu.Lock()
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	was, receiver := e.typing, e.receiver
	e.typing = false
	e.mu.Unlock()

	if was {
		e.emit(models.EventStopTyping, receiver)
	}
}

func (e *TypingEmitter) Typing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing
}

// rearm must be called with mu held.
func (e *TypingEmitter) rearm() {
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = e.clock.AfterFunc(e.idle, func() { e.expire(gen) })
}

func (e *TypingEmitter) expire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || !e.typing {
		e.mu.Unlock()
		return
	}
	e.typing = false
	e.timer = nil
	receiver := e.receiver
	e.mu.Unlock()

	e.emit(models.EventStopTyping, receiver)
}

package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

type emitted struct {
	kind     models.EventType
	receiver int
}

type emitRecorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *emitRecorder) emit(kind models.EventType, receiver int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{kind, receiver})
}

func (r *emitRecorder) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

func TestTypingBurstEmitsOnceThenStops(t *testing.T) {
	mc := clock.NewMock()
	rec := &emitRecorder{}
	e := NewTypingEmitter(mc, 500*time.Millisecond, rec.emit)

	for range "hello" {
		e.Input(2)
		mc.Add(100 * time.Millisecond)
	}
	assert.Equal(t, []emitted{{models.EventTyping, 2}}, rec.all())
	assert.True(t, e.Typing())

	mc.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []emitted{{models.EventTyping, 2}, {models.EventStopTyping, 2}}, rec.all())
	assert.False(t, e.Typing())

	mc.Add(5 * time.Second)
	assert.Len(t, rec.all(), 2)
}

func TestTypingNewBurstAfterIdle(t *testing.T) {
	mc := clock.NewMock()
	rec := &emitRecorder{}
	e := NewTypingEmitter(mc, 500*time.Millisecond, rec.emit)

	e.Input(2)
	mc.Add(600 * time.Millisecond)
	require.Eventually(t, func() bool { return !e.Typing() }, time.Second, time.Millisecond)
	e.Input(2)

	assert.Equal(t, []emitted{
		{models.EventTyping, 2},
		{models.EventStopTyping, 2},
		{models.EventTyping, 2},
	}, rec.all())
}

func TestTypingSentForcesStop(t *testing.T) {
	mc := clock.NewMock()
	rec := &emitRecorder{}
	e := NewTypingEmitter(mc, 500*time.Millisecond, rec.emit)

	e.Input(2)
	e.Sent()
	mc.Add(time.Second)

	assert.Equal(t, []emitted{{models.EventTyping, 2}, {models.EventStopTyping, 2}}, rec.all())
}

func TestTypingResetWhenIdleIsSilent(t *testing.T) {
	rec := &emitRecorder{}
	e := NewTypingEmitter(clock.NewMock(), 0, rec.emit)

	e.Reset()
	e.Sent()
	assert.Empty(t, rec.all())
}

func TestTypingSwitchingReceiverStopsPrevious(t *testing.T) {
	mc := clock.NewMock()
	rec := &emitRecorder{}
	e := NewTypingEmitter(mc, 500*time.Millisecond, rec.emit)

	e.Input(2)
	e.Input(3)
	mc.Add(time.Second)
	require.Eventually(t, func() bool { return len(rec.all()) == 4 }, time.Second, time.Millisecond)

	assert.Equal(t, []emitted{
		{models.EventTyping, 2},
		{models.EventStopTyping, 2},
		{models.EventTyping, 3},
		{models.EventStopTyping, 3},
	}, rec.all())
}

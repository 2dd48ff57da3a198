package chat

import (
	"context"
	"errors"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Loop serialises all controller work onto one goroutine. Anything touching
// controller state runs as a posted task.
type Loop struct {
	tasks  chan func()
	wake   chan struct{}
	onWake func()
	done   chan struct{}
}

// NewLoop returns a stopped loop. onWake, when set, runs on the loop after
// Wake.
func NewLoop(onWake func()) *Loop {
	return &Loop{
		tasks:  make(chan func(), 256),
		wake:   make(chan struct{}, 1),
		onWake: onWake,
		done:   make(chan struct{}),
	}
}

// Post queues fn. It reports false once the loop has stopped. Tasks must not
// Post; they may Wake.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Wake schedules onWake. Wakes pending at the same time collapse into one run
// and Wake never blocks.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it. A Wake issued before Call is
// handled before fn runs. It must not be used from a task.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}

	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		l.drainWake()
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks in order until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		case <-l.wake:
			l.runWake()
		}
	}
}

func (l *Loop) drainWake() {
	select {
	case <-l.wake:
		l.runWake()
	default:
	}
}

func (l *Loop) runWake() {
	if l.onWake != nil {
		l.onWake()
	}
}

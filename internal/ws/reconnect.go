package ws

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ReconnectPolicy decides how long to wait before the next dial attempt.
// Next returns false once no further attempts should be made.
type ReconnectPolicy interface {
	Next() (time.Duration, bool)
	Reset()
}

// FixedDelay retries forever after the same delay.
type FixedDelay struct {
	Delay time.Duration
}

func (p FixedDelay) Next() (time.Duration, bool) { return p.Delay, true }

func (p FixedDelay) Reset() {}

// Exponential grows the delay from initial up to max and gives up after maxRetries
// consecutive failures. A successful connection resets it.
type Exponential struct {
	b backoff.BackOff
}

func NewExponential(initial, max time.Duration, maxRetries int) *Exponential {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = max
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(eb, uint64(maxRetries))
	}
	b.Reset()
	return &Exponential{b: b}
}

func (p *Exponential) Next() (time.Duration, bool) {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

func (p *Exponential) Reset() { p.b.Reset() }

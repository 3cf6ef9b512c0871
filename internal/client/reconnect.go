package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectPolicy controls automatic reconnection.
type ReconnectPolicy struct {
	// MaxAttempts is the number of consecutive attempts before giving up.
	// Zero means no limit and a negative value disables retries.
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// Reconnector reconnects a Connection after it drops unexpectedly.
// A disconnect requested by the client is never retried. When MaxAttempts
// consecutive attempts fail the connection is moved to Failed.
type Reconnector struct {
	conn    *Connection
	policy  ReconnectPolicy
	logger  *slog.Logger
	backoff *backoff.ExponentialBackOff

	mu       sync.Mutex
	attempts int
	round    uint64
	timer    *time.Timer
	stopped  bool
}

// NewReconnector attaches a Reconnector to conn.
func NewReconnector(conn *Connection, policy ReconnectPolicy) *Reconnector {
	b := backoff.NewExponentialBackOff()
	if policy.MinDelay > 0 {
		b.InitialInterval = policy.MinDelay
	}
	if policy.MaxDelay > 0 {
		b.MaxInterval = policy.MaxDelay
	}
	b.Reset()

	r := &Reconnector{
		conn:    conn,
		policy:  policy,
		logger:  conn.logger,
		backoff: b,
	}
	conn.Observe(r.observe)
	return r
}

// Stop cancels any pending attempt and disables the Reconnector.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.cancelLocked()
}

// Attempts returns the number of consecutive attempts made so far.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *Reconnector) observe(ev StateEvent) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	var giveUp error
	switch ev.To {
	case StateConnected:
		r.attempts = 0
		r.backoff.Reset()
	case StateDisconnected:
		if errors.Is(ev.Err, ErrClosedByClient) {
			r.cancelLocked()
			r.attempts = 0
			r.backoff.Reset()
			break
		}
		if r.policy.MaxAttempts != 0 && r.attempts >= r.policy.MaxAttempts {
			giveUp = fmt.Errorf("gave up after %d attempts: %w", r.attempts, ev.Err)
			r.attempts = 0
			r.backoff.Reset()
			break
		}
		r.attempts++
		delay := r.backoff.NextBackOff()
		round := r.round
		attempt := r.attempts
		gen := ev.gen
		r.timer = time.AfterFunc(delay, func() { r.reconnect(round, attempt, gen) })
		r.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
	}
	r.mu.Unlock()

	if giveUp != nil {
		r.conn.fail(ev.gen, giveUp)
	}
}

func (r *Reconnector) reconnect(round uint64, attempt int, gen uint64) {
	r.mu.Lock()
	if r.stopped || round != r.round {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.logger.Info("reconnecting", "attempt", attempt)
	if err := r.conn.reconnect(context.Background(), gen); err != nil {
		r.logger.Error("failed to reconnect", "error", err)
		r.observe(StateEvent{From: StateDisconnected, To: StateDisconnected, Err: err, gen: gen})
	}
}

func (r *Reconnector) cancelLocked() {
	r.round++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

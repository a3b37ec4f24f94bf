// Package ratelimit implements the per-client token-bucket admission
// control of spec.md §6: requests are keyed by (client_id, operation_class),
// each class backed by its own golang.org/x/time/rate limiter per client.
//
// Grounded on Heikkila-Pty-Ltd-cortex's internal/dispatch/ratelimit.go:
// PickAndReserveProvider's reserve-then-double-check-then-cleanup-on-failure
// pattern, generalized from provider selection to request admission — a
// caller reserves a token, and on downstream failure can roll the
// reservation back so the denied request doesn't permanently consume quota.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OperationClass distinguishes read-like and write-like tool calls, which
// are budgeted independently per client.
type OperationClass string

const (
	ClassRead  OperationClass = "read"
	ClassWrite OperationClass = "write"
)

// Config sets the rate and burst for each operation class.
type Config struct {
	ReadRPS   float64
	WriteRPS  float64
	BurstSize int
}

func (c Config) rpsFor(class OperationClass) float64 {
	if class == ClassWrite {
		return c.WriteRPS
	}
	return c.ReadRPS
}

// Decision is returned by Admit: if Allowed is false, RetryAfter, Limit, and
// Remaining describe the response the caller should surface as the
// protocol's RateLimited error.
type Decision struct {
	Allowed      bool
	RetryAfter   time.Duration
	Limit        float64
	Remaining    float64
}

type limiterKey struct {
	clientID string
	class    OperationClass
}

// Limiter holds one token bucket per (client_id, operation_class) pair,
// created lazily on first use.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	limiters map[limiterKey]*rate.Limiter
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, limiters: make(map[limiterKey]*rate.Limiter)}
}

func (l *Limiter) bucket(clientID string, class OperationClass) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := limiterKey{clientID: clientID, class: class}
	rl, ok := l.limiters[key]
	if !ok {
		burst := l.cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		rl = rate.NewLimiter(rate.Limit(l.cfg.rpsFor(class)), burst)
		l.limiters[key] = rl
	}
	return rl
}

// Reservation is an admitted token that the caller must eventually Commit
// (keep) or Cancel (roll back, returning the token to the bucket) —
// mirroring the reserve-then-cleanup-on-failure pattern for admission
// decisions that may still fail downstream (e.g. a write later rejected by
// storage).
type Reservation struct {
	rl  *rate.Limiter
	res *rate.Reservation
}

// Cancel rolls back the reservation, making the token available again
// immediately. Call this when the operation the reservation gated did not
// actually proceed (e.g. the request was rejected for an unrelated reason
// before being dispatched).
func (r *Reservation) Cancel() {
	if r == nil || r.res == nil {
		return
	}
	r.res.Cancel()
}

// Admit checks whether clientID may perform one operation of class now. It
// returns a Decision the caller can turn directly into a protocol response,
// and, when allowed, a Reservation the caller may Cancel if the operation
// turns out not to be performed after all.
func (l *Limiter) Admit(clientID string, class OperationClass) (Decision, *Reservation) {
	rl := l.bucket(clientID, class)
	res := rl.Reserve()
	if !res.OK() {
		return Decision{Allowed: false, Limit: float64(rl.Limit())}, nil
	}
	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return Decision{
			Allowed:    false,
			RetryAfter: delay,
			Limit:      float64(rl.Limit()),
			Remaining:  rl.Tokens(),
		}, nil
	}
	return Decision{Allowed: true, Limit: float64(rl.Limit()), Remaining: rl.Tokens()}, &Reservation{rl: rl, res: res}
}

// Error implements the protocol-level RateLimited response payload.
type Error struct {
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
	Limit             float64 `json:"limit"`
	Remaining         float64 `json:"remaining"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limited: retry after %.2fs (limit=%.1f, remaining=%.1f)", e.RetryAfterSeconds, e.Limit, e.Remaining)
}

// AsError converts a denied Decision into the protocol error type. Callers
// must only call this when Decision.Allowed is false.
func (d Decision) AsError() *Error {
	return &Error{
		RetryAfterSeconds: d.RetryAfter.Seconds(),
		Limit:             d.Limit,
		Remaining:         d.Remaining,
	}
}

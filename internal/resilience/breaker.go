// Package resilience keeps the turn pipeline alive when a provider
// misbehaves. [Breaker] is a three-state circuit breaker; [Chain] composes
// several instances of one provider capability behind per-entry breakers so
// a failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probes through. Enough successes
	// close the breaker; any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// FailureThreshold is how many consecutive failures trip the breaker.
	// Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration

	// ProbeQuota is how many half-open probes must succeed before the
	// breaker closes. Default 3.
	ProbeQuota int
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	quota     int

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		quota:     cfg.ProbeQuota,
	}
}

// Do runs fn unless the breaker rejects the call. The fn error is passed
// through unchanged; a rejected call returns [ErrOpen] without running fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeOK = 0
		slog.Info("breaker probing", "name", b.name)
	case HalfOpen:
		if b.probes >= b.quota {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

// fail updates failure accounting. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	if probing {
		b.state = Open
		b.openedAt = time.Now()
		b.fails = b.threshold
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.fails++
	if b.state == Closed && b.fails >= b.threshold {
		b.state = Open
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.fails)
	}
}

// succeed updates success accounting. Caller holds b.mu.
func (b *Breaker) succeed(probing bool) {
	if probing {
		b.probeOK++
		if b.probeOK >= b.quota {
			b.state = Closed
			b.fails = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.fails = 0
}

// State returns the breaker state, reporting [HalfOpen] for an open
// breaker whose cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fails = 0
	b.probes = 0
	b.probeOK = 0
}

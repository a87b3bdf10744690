package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Chain] failed or was
// rejected by its breaker.
var ErrExhausted = errors.New("resilience: all providers failed")

// link pairs one provider value with its dedicated breaker.
type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is an ordered failover group: the primary first, then fallbacks in
// registration order. Each entry trips independently, so an unhealthy
// primary is skipped without probing it on every call.
//
// Register all entries before use; Add is not synchronized against Try.
type Chain[T any] struct {
	entries []link[T]
	breaker BreakerConfig
}

// NewChain creates a chain with primary as the first entry. cfg seeds the
// per-entry breakers.
func NewChain[T any](primaryName string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{breaker: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback entry.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, link[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Primary returns the first registered provider.
func (c *Chain[T]) Primary() T {
	return c.entries[0].value
}

// Try runs fn against each healthy entry in order and returns the first
// success. When everything fails, the last error is wrapped in
// [ErrExhausted]. A package-level function because methods cannot carry
// their own type parameters.
func Try[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("provider skipped, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

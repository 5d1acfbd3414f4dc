package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed means no entry of a [FallbackGroup] produced a result, either
// because each failed or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is shared by every entry of a [FallbackGroup].
type FallbackConfig struct {
	// Template for each entry's breaker; Name is overwritten with the entry
	// name.
	CircuitBreaker CircuitBreakerConfig

	// Definitive reports errors that are a legitimate answer from a healthy
	// backend, such as a clip with no speech in it. They go straight back to
	// the caller without touching the breaker or trying the next entry.
	Definitive func(error) bool
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable backends, each behind
// its own [CircuitBreaker]. Calls go to the first entry that is admitted
// and succeeds.
//
// Add every entry before sharing the group; the group is read-only and safe
// for concurrent use afterwards.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup starts a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Breakers lists the entries' breakers in call order.
func (fg *FallbackGroup[T]) Breakers() []*CircuitBreaker {
	return collect(fg, func(e fallbackEntry[T]) *CircuitBreaker { return e.breaker })
}

// Values lists the wrapped backends in call order.
func (fg *FallbackGroup[T]) Values() []T {
	return collect(fg, func(e fallbackEntry[T]) T { return e.value })
}

func collect[T, V any](fg *FallbackGroup[T], get func(fallbackEntry[T]) V) []V {
	out := make([]V, 0, len(fg.entries))
	for _, e := range fg.entries {
		out = append(out, get(e))
	}
	return out
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against the group's entries in order and returns
// the first successful result. It is a function rather than a method because
// the result type is not a type parameter of the group.
//
// Entries whose breaker is open are skipped. Caller errors (context
// cancellation) and definitive errors end the attempt immediately and are
// returned unwrapped. When every entry fails the result wraps both
// [ErrAllFailed] and the last backend error.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var lastErr error
	for i := range fg.entries {
		res, stop, err := try(fg, &fg.entries[i], fn)
		if err == nil || stop {
			return res, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// try runs fn against one entry. stop reports that err must be returned to the
// caller without trying further entries.
func try[T any, R any](fg *FallbackGroup[T], e *fallbackEntry[T], fn func(T) (R, error)) (res R, stop bool, err error) {
	var definitive error
	err = e.breaker.Execute(func() error {
		r, ferr := fn(e.value)
		if ferr != nil && fg.cfg.Definitive != nil && fg.cfg.Definitive(ferr) {
			definitive = ferr
			return nil
		}
		if ferr == nil {
			res = r
		}
		return ferr
	})
	switch {
	case definitive != nil:
		var zero R
		return zero, true, definitive
	case err == nil:
		return res, false, nil
	case IsCallerError(err):
		return res, true, err
	case errors.Is(err, ErrCircuitOpen):
		slog.Debug("resilience: provider skipped, circuit open", "provider", e.name)
	default:
		slog.Warn("resilience: provider failed, trying next", "provider", e.name, "err", err)
	}
	return res, false, err
}

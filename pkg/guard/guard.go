// Package guard serializes lazy initialization of external clients. Exactly
// one caller runs the initializer at a time; everyone else waits for its
// outcome. Repeated failures stop burning attempts after a cap, until the
// configuration changes or the guard is reset.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxAttempts is the failed-initialization cap before the guard
// refuses further attempts for the same configuration key.
const DefaultMaxAttempts = 3

// ErrAttemptsExhausted indicates initialization failed the maximum number
// of times for the current configuration. Reset or a configuration change
// clears it.
var ErrAttemptsExhausted = errors.New("initialization attempts exhausted")

// InitFunc builds the client for a configuration key.
type InitFunc[T any] func(ctx context.Context, key string) (T, error)

type state int

const (
	stateIdle state = iota
	stateInitializing
	stateCompleted
	stateError
)

// Guard manages one client instance keyed by a configuration string.
type Guard[T any] struct {
	mu          sync.Mutex
	init        InitFunc[T]
	maxAttempts int

	key      string
	state    state
	attempts int
	client   T
	lastErr  error
	inflight chan struct{}
}

// New creates a guard. maxAttempts below 1 falls back to DefaultMaxAttempts.
func New[T any](maxAttempts int, init InitFunc[T]) *Guard[T] {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Guard[T]{init: init, maxAttempts: maxAttempts}
}

// Get returns the client for key, initializing it if needed. Concurrent
// calls with an initialization in flight wait for that one attempt instead
// of starting their own. A key different from the current one discards the
// existing state, so a configuration change always reinitializes.
func (g *Guard[T]) Get(ctx context.Context, key string) (T, error) {
	for {
		g.mu.Lock()

		if key != g.key {
			g.resetLocked(key)
		}

		switch g.state {
		case stateCompleted:
			client := g.client
			g.mu.Unlock()

			return client, nil

		case stateError:
			if g.attempts >= g.maxAttempts {
				err := fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, g.attempts, g.lastErr)
				g.mu.Unlock()

				var zero T

				return zero, err
			}

			// Attempts remain; fall through and try again.
			g.state = stateIdle

		case stateInitializing:
			done := g.inflight
			g.mu.Unlock()

			select {
			case <-done:
				// Re-evaluate the outcome.
				continue
			case <-ctx.Done():
				var zero T

				return zero, ctx.Err()
			}

		case stateIdle:
		}

		// This caller runs the attempt.
		g.state = stateInitializing
		g.attempts++
		g.inflight = make(chan struct{})
		done := g.inflight
		g.mu.Unlock()

		client, err := g.init(ctx, key)

		g.mu.Lock()
		// A Reset or key change during the attempt supersedes its outcome.
		if g.inflight == done {
			if err != nil {
				g.state = stateError
				g.lastErr = err
			} else {
				g.state = stateCompleted
				g.client = client
				g.lastErr = nil
			}
		}
		g.mu.Unlock()
		close(done)

		if err != nil {
			var zero T

			return zero, err
		}

		return client, nil
	}
}

// Reset discards the current client and error state. The next Get starts a
// fresh attempt count.
func (g *Guard[T]) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetLocked(g.key)
}

// Attempts reports how many initialization attempts have run for the
// current configuration.
func (g *Guard[T]) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.attempts
}

func (g *Guard[T]) resetLocked(key string) {
	var zero T

	g.key = key
	g.state = stateIdle
	g.attempts = 0
	g.client = zero
	g.lastErr = nil
	g.inflight = nil
}

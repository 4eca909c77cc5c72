// Package resilience provides the fault-tolerance wrappers used around model
// calls: an explicit retry policy, a circuit breaker and a bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds resilience parameters. MaxRetries is the number of extra
// attempts after the first one; zero means a single attempt.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg.InitialBackoff, attempt)):
			}
		}
	}
	return lastErr
}

func backoff(initial time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	base := time.Duration(math.Pow(2, float64(attempt))) * initial
	half := int64(base / 2)
	if half <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(half))
}

// PermanentError stops RetryWithBackoff immediately. Used for responses that
// will not improve on retry, such as 4xx answers from the model service.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// NewCircuitBreaker creates a circuit breaker that trips on a sustained
// failure ratio and logs state changes.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    60 * time.Second, // closed: reset counters every minute
		Timeout:     15 * time.Second, // open -> half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the backend
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// InFlight reports the number of occupied slots.
func (b *Bulkhead) InFlight() int {
	return len(b.sem)
}

// Guard composes bulkhead, circuit breaker and retry policy around a call.
type Guard struct {
	cfg      Config
	breaker  *gobreaker.CircuitBreaker
	bulkhead *Bulkhead
}

// NewGuard builds a Guard for the named backend.
func NewGuard(name string, cfg Config, logger *zap.Logger) *Guard {
	return &Guard{
		cfg:      cfg,
		breaker:  NewCircuitBreaker(name, logger),
		bulkhead: NewBulkhead(cfg.MaxConcurrency),
	}
}

// Do runs fn once per attempt inside the breaker while holding a bulkhead
// slot. An open breaker is reported as gobreaker.ErrOpenState.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer g.bulkhead.Release()

	_, err := g.breaker.Execute(func() (any, error) {
		return nil, RetryWithBackoff(ctx, g.cfg, func() error {
			return fn(ctx)
		})
	})
	return err
}

// State exposes the breaker state for readiness checks.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"

	"github.com/windfall/lecturelens/internal/errors"
	"github.com/windfall/lecturelens/internal/telemetry"
)

// Config holds the retry and circuit breaker parameters. All of them are
// deployment configuration, not constants.
type Config struct {
	CallTimeout      time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	FailureThreshold uint32
	Cooldown         time.Duration
	Window           time.Duration
}

// Caller guards every external engine call with a per-attempt timeout,
// bounded exponential-backoff retry, and one circuit breaker per engine.
// Breakers live for the whole process and are shared by all in-flight
// requests; gobreaker serializes the counter and state transition updates.
type Caller struct {
	cfg Config
	log zerolog.Logger
	tel *telemetry.Recorder

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewCaller creates a caller. tel may be nil in tests.
func NewCaller(cfg Config, log zerolog.Logger, tel *telemetry.Recorder) *Caller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Caller{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		tel:      tel,
	}
}

// breaker returns the engine's breaker, creating it closed with zero
// failures on first use.
func (c *Caller) breaker(engine string) *gobreaker.CircuitBreaker[any] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[engine]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        engine,
		MaxRequests: 1,
		Interval:    c.cfg.Window,
		Timeout:     c.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// A caller hanging up says nothing about the engine's
			// health; it must not count toward tripping the circuit.
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("engine", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit state changed")
		},
	})
	c.breakers[engine] = b
	return b
}

func (c *Caller) recordAttempt(engine, outcome string) {
	if c.tel != nil {
		c.tel.RecordEngineCall(engine, outcome)
	}
}

// classify inspects an engine error for a 4xx-class status signaled by
// the provider SDK. Anything but rate limiting (429) or a request
// timeout (408) means the engine rejected the input itself, which no
// amount of retrying will change.
func classify(engine string, err error) error {
	status := 0

	var openaiErr *openai.APIError
	var genaiErr genai.APIError
	switch {
	case stderrors.As(err, &openaiErr):
		status = openaiErr.HTTPStatusCode
	case stderrors.As(err, &genaiErr):
		status = genaiErr.Code
	}

	if status >= 400 && status < 500 &&
		status != http.StatusTooManyRequests &&
		status != http.StatusRequestTimeout {
		return errors.Wrap(errors.ErrEngineRejected, fmt.Sprintf("%s engine rejected the request", engine), err)
	}
	return err
}

// Call invokes op against the named engine. Each attempt passes through
// the engine's circuit breaker before dispatch and runs under the
// configured timeout. Transient failures (timeouts, engine errors) retry
// with exponential backoff up to the attempt budget; permanent failures
// and an open circuit end the loop immediately. The error returned after
// exhaustion carries the engine id and the last cause.
func Call[T any](ctx context.Context, c *Caller, engine string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var result T

	b := c.breaker(engine)

	attempt := func() error {
		out, err := b.Execute(func() (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()

			v, opErr := op(callCtx)
			if opErr != nil {
				if stderrors.Is(opErr, context.DeadlineExceeded) {
					return nil, errors.Timeout(engine)
				}
				return nil, classify(engine, opErr)
			}
			return v, nil
		})
		if err != nil {
			if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
				c.recordAttempt(engine, "circuit_open")
				return backoff.Permanent(errors.CircuitOpen(engine))
			}

			if stderrors.Is(err, context.Canceled) {
				c.recordAttempt(engine, "canceled")
				return backoff.Permanent(err)
			}

			c.recordAttempt(engine, "failure")
			if errors.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			c.log.Warn().Str("engine", engine).Err(err).Msg("Engine call attempt failed")
			return err
		}

		c.recordAttempt(engine, "success")
		result = out.(T)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Code(err) == errors.ErrCircuitOpen {
			return zero, err
		}
		return zero, errors.External(engine, err)
	}
	return result, nil
}

package llm

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig allows a single retry: transient failures (network,
// 408/429/5xx) get one more attempt with backoff, everything else
// surfaces immediately.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryProvider wraps a provider with automatic retry on transient errors.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WrapWithRetry wraps a provider with retry logic.
func WrapWithRetry(p Provider, config RetryConfig) Provider {
	return &RetryProvider{inner: p, config: config}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) Capabilities() Capabilities {
	return r.inner.Capabilities()
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error

		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			// While a retry remains, withhold events until the attempt
			// succeeds: a connection can reset mid-stream, and partial
			// text from a doomed attempt must never reach the consumer.
			withhold := attempt < r.config.MaxAttempts

			stream, err := r.inner.Stream(ctx, req)
			if err != nil {
				if !IsTransient(err) {
					return err
				}
				lastErr = err
			} else {
				err = r.forwardEvents(ctx, stream, events, withhold)
				if err == nil {
					return nil
				}
				if !IsTransient(err) {
					return err
				}
				lastErr = err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.config.MaxAttempts {
				break
			}

			wait := r.calculateBackoff(attempt)
			events <- Event{
				Type:          EventRetry,
				RetryAttempt:  attempt,
				RetryWaitSecs: wait.Seconds(),
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		return lastErr
	}), nil
}

// forwardEvents reads events from the inner stream and forwards them,
// eating a terminal EventEnd error so the retry attempt can produce the
// real one. With withhold set, events are buffered and flushed only once
// the attempt has run to completion; a mid-stream failure then discards
// the buffer instead of leaking a partial attempt downstream.
func (r *RetryProvider) forwardEvents(ctx context.Context, stream Stream, events chan<- Event, withhold bool) error {
	defer stream.Close()

	emit := func(event Event) error {
		select {
		case events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var buffered []Event
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := stream.Recv()
		if err == io.EOF {
			for _, e := range buffered {
				if err := emit(e); err != nil {
					return err
				}
			}
			return nil
		}
		if err != nil {
			return err
		}

		if event.Type == EventEnd && event.Finish == FinishError && event.Err != nil {
			return event.Err
		}

		if withhold {
			buffered = append(buffered, event)
			continue
		}
		if err := emit(event); err != nil {
			return err
		}
	}
}

// calculateBackoff computes the wait for a retry attempt: exponential
// with +/- 25% jitter, capped.
func (r *RetryProvider) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))
	jitter := (rand.Float64() - 0.5) * 0.5 * backoff
	backoff += jitter
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

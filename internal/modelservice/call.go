package modelservice

import (
	"context"
	"errors"
	"time"

	"github.com/osaurus/memory-core/internal/memerr"
)

// CallTimeout is the per-attempt deadline for a core-model call.
const CallTimeout = 60 * time.Second

var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Call executes req against svc with the documented retry/timeout/circuit
// breaker contract (§4.7.2): each attempt races a 60-second timeout, 1
// initial attempt plus up to 3 retries with 1s/2s/4s backoff between them
// (4 attempts total), non-retryable errors abort immediately, and breaker
// opens after 5 consecutive failures for 60s.
func Call(ctx context.Context, svc Service, req Request, breaker *CircuitBreaker) (*Response, error) {
	if !breaker.Allow(timeNow()) {
		return nil, memerr.ErrCircuitBreakerOpen
	}

	maxAttempts := len(retryDelays) + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := callOnce(ctx, svc, req)
		if err == nil {
			breaker.RecordSuccess()
			return resp, nil
		}
		if errors.Is(err, context.Canceled) {
			breaker.RecordCancellation()
			return nil, err
		}
		lastErr = err
		if !memerr.IsRetryable(err) {
			breaker.RecordFailure(timeNow())
			return nil, err
		}
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				breaker.RecordCancellation()
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt]):
			}
		}
	}
	breaker.RecordFailure(timeNow())
	return nil, lastErr
}

func callOnce(ctx context.Context, svc Service, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := svc.Generate(callCtx, req)
		done <- result{resp, err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, memerr.ErrModelCallTimedOut
	case r := <-done:
		return r.resp, r.err
	}
}

// timeNow is a seam so breaker-opening tests can't race wall-clock flakiness.
var timeNow = time.Now

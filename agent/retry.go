package agent

import (
	"context"
	"time"

	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/types"
)

// RetryPolicy bounds retries around the model call. Only transient provider
// failures are retried; auth and unexpected failures return immediately.
// Sleep is injectable so tests run without real delays.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		p.Sleep(d)
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// generate calls the provider with exponential backoff: with the defaults it
// makes up to 3 attempts, waiting 1s then 2s before the second and third.
func (p RetryPolicy) generate(ctx context.Context, provider llm.Provider, req types.Request) (types.Response, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, delay); err != nil {
				return types.Response{}, err
			}
			delay *= 2
		}

		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llm.Transient(err) {
			return types.Response{}, err
		}
	}
	return types.Response{}, lastErr
}

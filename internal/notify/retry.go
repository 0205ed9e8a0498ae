package notify

import (
	"context"
	"time"
)

// retryDelays is the blanket provider-level retry schedule. It is applied
// regardless of error class.
var retryDelays = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

const maxSendAttempts = 3

// SendWithRetry attempts delivery up to three times, waiting 60s, then 300s,
// then 900s between attempts. The sleep function is injectable for tests.
func SendWithRetry(ctx context.Context, provider Provider, msg Message, sleep func(context.Context, time.Duration) error) (DeliveryResult, error) {
	if sleep == nil {
		sleep = sleepCtx
	}

	var result DeliveryResult
	var err error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleep(ctx, retryDelays[attempt-1]); sleepErr != nil {
				return result, sleepErr
			}
		}
		result, err = provider.Send(ctx, msg)
		if err == nil && result.Success {
			return result, nil
		}
	}
	return result, err
}

type retryProvider struct {
	inner Provider
	sleep func(context.Context, time.Duration) error
}

// WithRetry wraps a provider so every Send goes through SendWithRetry.
func WithRetry(inner Provider) Provider {
	return &retryProvider{inner: inner, sleep: sleepCtx}
}

func (p *retryProvider) Channel() string { return p.inner.Channel() }

func (p *retryProvider) ValidateRecipient(recipient string) bool {
	return p.inner.ValidateRecipient(recipient)
}

func (p *retryProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	return SendWithRetry(ctx, p.inner, msg, p.sleep)
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedProvider struct {
	channel string
	results []DeliveryResult
	errs    []error
	calls   int
}

func (p *scriptedProvider) Channel() string                        { return p.channel }
func (p *scriptedProvider) ValidateRecipient(recipient string) bool { return true }

func (p *scriptedProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.results[i], err
}

func TestSendWithRetryDelays(t *testing.T) {
	provider := &scriptedProvider{
		channel: "sms",
		results: []DeliveryResult{
			{Success: false, Status: "failed"},
			{Success: false, Status: "failed"},
			{Success: true, Status: "sent", MessageID: "SM9"},
		},
		errs: []error{errors.New("boom"), errors.New("boom"), nil},
	}

	var slept []time.Duration
	result, err := SendWithRetry(context.Background(), provider, Message{}, func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success || result.MessageID != "SM9" {
		t.Fatalf("result=%+v", result)
	}
	if len(slept) != 2 || slept[0] != 60*time.Second || slept[1] != 300*time.Second {
		t.Fatalf("slept=%v, want [1m 5m]", slept)
	}
}

func TestSendWithRetryGivesUpAfterThreeAttempts(t *testing.T) {
	provider := &scriptedProvider{
		channel: "sms",
		results: []DeliveryResult{{Success: false, Status: "failed", Error: "down"}},
		errs:    []error{errors.New("down")},
	}

	var slept []time.Duration
	_, err := SendWithRetry(context.Background(), provider, Message{}, func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.calls != 3 {
		t.Fatalf("calls=%d, want 3", provider.calls)
	}
	if len(slept) != 2 || slept[1] != 300*time.Second {
		t.Fatalf("slept=%v", slept)
	}
}

func TestSendWithRetryStopsOnCancelledContext(t *testing.T) {
	provider := &scriptedProvider{
		channel: "sms",
		results: []DeliveryResult{{Success: false}},
		errs:    []error{errors.New("down")},
	}

	_, err := SendWithRetry(context.Background(), provider, Message{}, func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if provider.calls != 1 {
		t.Fatalf("calls=%d, want 1", provider.calls)
	}
}

func TestWithRetryWrapsProvider(t *testing.T) {
	inner := &scriptedProvider{
		channel: "push",
		results: []DeliveryResult{
			{Success: false},
			{Success: true, Status: "sent"},
		},
		errs: []error{errors.New("down"), nil},
	}
	wrapped := WithRetry(inner).(*retryProvider)
	wrapped.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if wrapped.Channel() != "push" {
		t.Fatalf("channel=%q", wrapped.Channel())
	}
	result, err := wrapped.Send(context.Background(), Message{})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success || inner.calls != 2 {
		t.Fatalf("result=%+v calls=%d", result, inner.calls)
	}
}

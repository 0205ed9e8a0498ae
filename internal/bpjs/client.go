package bpjs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config carries the credentials and retry policy shared by both BPJS APIs.
type Config struct {
	BaseURL    string
	ConsID     string
	SecretKey  string
	UserKey    string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// APIError is a BPJS response whose metaData.code is not "200".
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bpjs: api error code=%s message=%s", e.Code, e.Message)
}

// Temporary reports whether the failure is worth retrying: BPJS signals
// server-side trouble with 5xx-style metaData codes.
func (e *APIError) Temporary() bool {
	return len(e.Code) > 0 && e.Code[0] == '5'
}

type metaData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	MetaData metaData        `json:"metaData"`
	Response json.RawMessage `json:"response"`
}

// Client issues signed requests against a BPJS API and retries transient
// failures with doubling delay up to the configured cap.
type Client struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.CapDelay <= 0 {
		cfg.CapDelay = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay << attempt
	if delay > c.cfg.CapDelay || delay <= 0 {
		return c.cfg.CapDelay
	}
	return delay
}

// Do sends one signed request, retrying timeouts and 5xx-coded API errors.
// The decoded response payload is unmarshalled into out when it is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	timestamp := Timestamp(c.now())
	req.Header.Set("X-cons-id", c.cfg.ConsID)
	req.Header.Set("X-timestamp", timestamp)
	req.Header.Set("X-signature", Signature(c.cfg.ConsID, timestamp, c.cfg.SecretKey))
	if c.cfg.UserKey != "" {
		req.Header.Set("X-user-key", c.cfg.UserKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", errTransport, err)
	}
	if resp.StatusCode >= 500 {
		return &APIError{Code: fmt.Sprintf("%d", resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("bpjs: decode envelope: %w", err)
	}
	if env.MetaData.Code != "200" {
		return &APIError{Code: env.MetaData.Code, Message: env.MetaData.Message}
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("bpjs: decode response: %w", err)
		}
	}
	return nil
}

var errTransport = errors.New("bpjs: transport failure")

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, errTransport) || errors.Is(err, context.DeadlineExceeded)
}

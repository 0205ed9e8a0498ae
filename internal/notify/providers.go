package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

type Message struct {
	Recipient string
	Subject   string
	Body      string
	Metadata  map[string]string
}

type DeliveryResult struct {
	Success   bool
	Status    string
	MessageID string
	Error     string
}

type Provider interface {
	Channel() string
	ValidateRecipient(recipient string) bool
	Send(ctx context.Context, msg Message) (DeliveryResult, error)
}

// transportDelays bounds the in-provider backoff for transient transport
// failures. The dispatch-level retry policy lives in SendWithRetry.
var transportDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

const transportDelayCap = 60 * time.Second

func transportDelay(attempt int) time.Duration {
	if attempt < len(transportDelays) {
		return transportDelays[attempt]
	}
	delay := transportDelays[len(transportDelays)-1] << (attempt - len(transportDelays) + 1)
	if delay > transportDelayCap {
		return transportDelayCap
	}
	return delay
}

var errTransient = errors.New("transient transport failure")

type httpSender struct {
	client      *http.Client
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
}

func newHTTPSender(timeout time.Duration) httpSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpSender{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: 3,
		sleep:       sleepCtx,
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

// post retries transient failures (network errors and 5xx) with bounded
// backoff; 4xx responses fail immediately.
func (h httpSender) post(ctx context.Context, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := h.sleep(ctx, transportDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", errTransient, err)
			continue
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", errTransient, readErr)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
		}
		return respBody, nil
	}
	return nil, lastErr
}

type SMSProvider struct {
	sender httpSender
	apiURL string
	from   string
	token  string
}

func NewSMSProvider(apiURL, from, token string, timeout time.Duration) *SMSProvider {
	return &SMSProvider{
		sender: newHTTPSender(timeout),
		apiURL: apiURL,
		from:   from,
		token:  token,
	}
}

func (p *SMSProvider) Channel() string { return "sms" }

func (p *SMSProvider) ValidateRecipient(recipient string) bool {
	return validPhone(recipient)
}

func (p *SMSProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	payload := map[string]string{
		"to":   msg.Recipient,
		"from": p.from,
		"body": msg.Body,
	}
	respBody, err := p.sender.post(ctx, p.apiURL+"/Messages", map[string]string{
		"Authorization": "Bearer " + p.token,
	}, payload)
	if err != nil {
		return DeliveryResult{Status: "failed", Error: err.Error()}, err
	}

	var resp struct {
		MessageID string `json:"message_id"`
		Sid       string `json:"sid"`
	}
	_ = json.Unmarshal(respBody, &resp)
	messageID := resp.MessageID
	if messageID == "" {
		messageID = resp.Sid
	}
	return DeliveryResult{Success: true, Status: "sent", MessageID: messageID}, nil
}

type WhatsAppProvider struct {
	sender  httpSender
	apiURL  string
	phoneID string
	token   string
}

func NewWhatsAppProvider(apiURL, phoneID, token string, timeout time.Duration) *WhatsAppProvider {
	return &WhatsAppProvider{
		sender:  newHTTPSender(timeout),
		apiURL:  apiURL,
		phoneID: phoneID,
		token:   token,
	}
}

func (p *WhatsAppProvider) Channel() string { return "whatsapp" }

func (p *WhatsAppProvider) ValidateRecipient(recipient string) bool {
	return validPhone(recipient)
}

func (p *WhatsAppProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                msg.Recipient,
		"type":              "text",
		"text":              map[string]string{"body": msg.Body},
	}
	respBody, err := p.sender.post(ctx, p.apiURL+"/"+p.phoneID+"/messages", map[string]string{
		"Authorization": "Bearer " + p.token,
	}, payload)
	if err != nil {
		return DeliveryResult{Status: "failed", Error: err.Error()}, err
	}

	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	_ = json.Unmarshal(respBody, &resp)
	messageID := ""
	if len(resp.Messages) > 0 {
		messageID = resp.Messages[0].ID
	}
	return DeliveryResult{Success: true, Status: "sent", MessageID: messageID}, nil
}

type PushProvider struct {
	sender    httpSender
	apiURL    string
	serverKey string
}

func NewPushProvider(apiURL, serverKey string, timeout time.Duration) *PushProvider {
	return &PushProvider{
		sender:    newHTTPSender(timeout),
		apiURL:    apiURL,
		serverKey: serverKey,
	}
}

func (p *PushProvider) Channel() string { return "push" }

func (p *PushProvider) ValidateRecipient(recipient string) bool {
	return strings.TrimSpace(recipient) != ""
}

func (p *PushProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	payload := map[string]interface{}{
		"to": msg.Recipient,
		"notification": map[string]string{
			"title": msg.Subject,
			"body":  msg.Body,
		},
		"data": msg.Metadata,
	}
	respBody, err := p.sender.post(ctx, p.apiURL+"/fcm/send", map[string]string{
		"Authorization": "key=" + p.serverKey,
	}, payload)
	if err != nil {
		return DeliveryResult{Status: "failed", Error: err.Error()}, err
	}

	var resp struct {
		MessageID int64 `json:"message_id"`
	}
	_ = json.Unmarshal(respBody, &resp)
	messageID := ""
	if resp.MessageID != 0 {
		messageID = fmt.Sprintf("%d", resp.MessageID)
	}
	return DeliveryResult{Success: true, Status: "sent", MessageID: messageID}, nil
}

type EmailProvider struct {
	host     string
	port     string
	username string
	password string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailProvider(host, port, username, password, from string) *EmailProvider {
	return &EmailProvider{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

func (p *EmailProvider) Channel() string { return "email" }

func (p *EmailProvider) ValidateRecipient(recipient string) bool {
	at := strings.Index(recipient, "@")
	return at > 0 && at < len(recipient)-1 && !strings.ContainsAny(recipient, " \t\r\n")
}

func (p *EmailProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		p.from, msg.Recipient, msg.Subject, msg.Body)
	if err := p.sendMail(p.host+":"+p.port, auth, p.from, []string{msg.Recipient}, []byte(body)); err != nil {
		return DeliveryResult{Status: "failed", Error: err.Error()}, err
	}
	return DeliveryResult{Success: true, Status: "sent"}, nil
}

type inAppStore interface {
	InsertInAppMessage(ctx context.Context, recipientID, title, message string) error
}

type InAppProvider struct {
	store inAppStore
}

func NewInAppProvider(store inAppStore) *InAppProvider {
	return &InAppProvider{store: store}
}

func (p *InAppProvider) Channel() string { return "in_app" }

func (p *InAppProvider) ValidateRecipient(recipient string) bool {
	return strings.TrimSpace(recipient) != ""
}

func (p *InAppProvider) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	if err := p.store.InsertInAppMessage(ctx, msg.Recipient, msg.Subject, msg.Body); err != nil {
		return DeliveryResult{Status: "failed", Error: err.Error()}, err
	}
	return DeliveryResult{Success: true, Status: "sent"}, nil
}

func validPhone(value string) bool {
	value = strings.TrimPrefix(value, "+")
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

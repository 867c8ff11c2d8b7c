package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
	tokenHeader      = "X-Webhook-Token"
)

// ErrUnauthorized indicates the receiver rejected the shared token.
var ErrUnauthorized = errors.New("webhook unauthorized")

// ErrRejected indicates the receiver refused the payload.
var ErrRejected = errors.New("webhook rejected")

// Emitter posts change events to an external HTTP endpoint.
type Emitter struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// Delivery is the body sent to the receiver.
type Delivery struct {
	Topic  string          `json:"topic"`
	Event  json.RawMessage `json:"event"`
	SentAt string          `json:"sent_at"`
}

// NewEmitter creates an emitter targeting url. token is optional.
func NewEmitter(url, token string, client *http.Client, logger *slog.Logger) (*Emitter, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("webhook url required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, fmt.Errorf("webhook url must be http(s): %q", trimmed)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		url:    trimmed,
		token:  strings.TrimSpace(token),
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Broadcast delivers payload in the background. Failures are logged and dropped.
func (e *Emitter) Broadcast(topic string, payload []byte) {
	if e == nil {
		return
	}
	body := append([]byte(nil), payload...)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
		defer cancel()
		if err := e.Emit(ctx, topic, body); err != nil {
			e.logger.Warn("webhook delivery failed", "topic", topic, "error", err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (e *Emitter) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}

// Emit sends one event synchronously.
func (e *Emitter) Emit(ctx context.Context, topic string, payload []byte) error {
	if e == nil {
		return errors.New("webhook emitter not initialised")
	}
	if !json.Valid(payload) {
		return errors.New("webhook payload must be valid json")
	}
	body, err := json.Marshal(Delivery{
		Topic:  topic,
		Event:  payload,
		SentAt: e.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook delivery: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set(tokenHeader, e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, summary)
	default:
		return fmt.Errorf("webhook request failed: %s", summary)
	}
}

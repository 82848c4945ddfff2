package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/voice"
)

// maxBody bounds how much of a response body is read.
const maxBody = 1 << 20

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithBreaker guards every call with b.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithMetrics records respond latency and outcomes into m.
func WithMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client talks to a remote backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *resilience.Breaker
	metrics *observe.Metrics
}

var _ voice.Responder = (*Client)(nil)

// NewClient returns a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("respond: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("respond: base url %q must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 60 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Respond posts message to /api/therapy.
func (c *Client) Respond(ctx context.Context, message string) (voice.Reply, error) {
	start := time.Now()
	var reply voice.Reply
	call := func(ctx context.Context) error {
		var err error
		reply, err = c.therapy(ctx, message)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	c.record(ctx, err, time.Since(start))
	if err != nil {
		return voice.Reply{}, err
	}
	return reply, nil
}

func (c *Client) therapy(ctx context.Context, message string) (voice.Reply, error) {
	body, err := json.Marshal(MessageRequest{Message: message})
	if err != nil {
		return voice.Reply{}, fmt.Errorf("respond: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("api", "therapy").String(), bytes.NewReader(body))
	if err != nil {
		return voice.Reply{}, fmt.Errorf("respond: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return voice.Reply{}, fmt.Errorf("respond: post therapy: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return voice.Reply{}, fmt.Errorf("respond: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return voice.Reply{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var tr TherapyResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return voice.Reply{}, fmt.Errorf("respond: decode response: %w", err)
	}
	if strings.TrimSpace(tr.Response) == "" {
		return voice.Reply{}, ErrEmptyResponse
	}
	return tr.Reply(), nil
}

func (c *Client) record(ctx context.Context, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	var se *StatusError
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrOpen):
		status = "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case errors.Is(err, context.Canceled):
		status = "canceled"
	case errors.As(err, &se):
		status = "http_" + fmt.Sprint(se.Code)
	case errors.Is(err, ErrEmptyResponse):
		status = "empty"
	default:
		status = "error"
	}
	c.metrics.RecordRespond(context.WithoutCancel(ctx), "remote", status, d)
	if err != nil && status != "canceled" {
		c.metrics.RecordProviderError(context.WithoutCancel(ctx), "respond", status)
	}
}

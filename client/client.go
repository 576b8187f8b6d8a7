// Package client talks to a running mailservice over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const apiKeyHeader = "X-API-Key"

// Request mirrors the body accepted by /send and /send_async.
type Request struct {
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	MessageType *string  `json:"message_type"`
}

// Response mirrors the service answer for an accepted request.
type Response struct {
	OK      bool    `json:"ok"`
	Queued  bool    `json:"queued"`
	Message string  `json:"message"`
	ID      *string `json:"id"`
}

// StatusError is returned for any non 2xx answer.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("mailservice returned %d", e.Code)
	}
	return fmt.Sprintf("mailservice returned %d: %s", e.Code, e.Detail)
}

type Client struct {
	http *resty.Client
}

type Option func(*Client) error

// New builds a client for the service at baseURL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("server is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server: %w", err)
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader(apiKeyHeader, apiKey).
			SetTimeout(30 * time.Second),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		c.http.SetTimeout(timeout)
		return nil
	}
}

// SendSync delivers through POST /send and waits for the SMTP outcome.
func (c *Client) SendSync(ctx context.Context, req Request) (Response, error) {
	return c.post(ctx, "/send", req)
}

// SendAsync queues through POST /send_async.
func (c *Client) SendAsync(ctx context.Context, req Request) (Response, error) {
	return c.post(ctx, "/send_async", req)
}

func (c *Client) post(ctx context.Context, endpoint string, req Request) (Response, error) {
	var out Response
	var failure struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("post %s: %w", endpoint, err)
	}
	if resp.IsError() {
		detail := failure.Detail
		if detail == "" {
			detail = failure.Message
		}
		return Response{}, &StatusError{Code: resp.StatusCode(), Detail: detail}
	}
	return out, nil
}

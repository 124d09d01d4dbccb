// Package api is a thin client for the library REST endpoints the
// realtime commands depend on: chat sessions and processing status.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	basePath         = "/api/v1"
	defaultUserAgent = "realtime/0.1"
	requestTimeout   = 10 * time.Second
)

// StatusError is returned for non 2xx responses
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the library HTTP API
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient builds a Client for the given page origin, e.g. http://localhost:8000
func NewClient(origin string) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin %q: scheme must be http or https", origin)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", origin)
	}

	return &Client{
		baseURL:   &url.URL{Scheme: base.Scheme, Host: base.Host, Path: basePath},
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}, nil
}

// CreateChatSession opens a new chat session, optionally scoped to books
func (c *Client) CreateChatSession(ctx context.Context, req CreateChatSessionRequest) (*ChatSession, error) {
	var payload ChatSession
	if err := c.do(ctx, http.MethodPost, "/chat/sessions", req, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ListChatSessions returns the existing chat sessions
func (c *Client) ListChatSessions(ctx context.Context) ([]ChatSession, error) {
	var payload []ChatSession
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ChatMessages returns the messages of a chat session
func (c *Client) ChatMessages(ctx context.Context, sessionID int64) ([]ChatMessage, error) {
	var payload []ChatMessage
	path := fmt.Sprintf("/chat/sessions/%d/messages", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ProcessingStatus returns the job counts by status and the latest failures
func (c *Client) ProcessingStatus(ctx context.Context) (*ProcessingStatus, error) {
	var payload ProcessingStatus
	if err := c.do(ctx, http.MethodGet, "/library/processing", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

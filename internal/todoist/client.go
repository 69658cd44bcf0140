// Package todoist speaks the Todoist Sync API v9: incremental fetches by
// sync token and batched command execution.
package todoist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soimon/notion-todoist/internal/httpretry"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

// DefaultURL is the Sync API endpoint.
const DefaultURL = "https://api.todoist.com/sync/v9/sync"

// ResourceTypes are the resources requested on every fetch.
var ResourceTypes = []string{"projects", "project_notes", "notes", "items", "sections", "labels"}

// Client is a Sync API client. It satisfies engine.TargetStore.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	url    string
	token  string
	doer   *httpretry.Doer
	logger *slog.Logger

	retryOpts []httpretry.Option
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the endpoint. Tests point it at an httptest server.
func WithURL(url string) Option {
	return func(c *Client) { c.url = strings.TrimRight(url, "/") }
}

// WithRetry passes options to the underlying retrying transport.
func WithRetry(opts ...httpretry.Option) Option {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client authenticating with the given API token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		url:    DefaultURL,
		token:  strings.TrimSpace(token),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.doer = httpretry.New(append([]httpretry.Option{httpretry.WithLogger(c.logger)}, c.retryOpts...)...)
	return c
}

type readRequest struct {
	SyncToken     string   `json:"sync_token"`
	ResourceTypes []string `json:"resource_types"`
}

type readResponse struct {
	SyncToken string `json:"sync_token"`
	FullSync  bool   `json:"full_sync"`
	snapshot.Snapshot
}

// Fetch returns the resources changed since token, or everything for "*",
// and the token to pass next time.
func (c *Client) Fetch(ctx context.Context, token string) (*snapshot.Snapshot, string, error) {
	if token == "" {
		token = "*"
	}
	var out readResponse
	if err := c.post(ctx, readRequest{SyncToken: token, ResourceTypes: ResourceTypes}, &out); err != nil {
		return nil, "", fmt.Errorf("fetch since %q: %w", token, err)
	}
	if out.SyncToken == "" {
		return nil, "", fmt.Errorf("fetch since %q: response has no sync token: %w", token, ErrUnavailable)
	}
	c.logger.Debug("todoist fetch",
		"since", token,
		"full_sync", out.FullSync,
		"projects", len(out.Projects),
		"sections", len(out.Sections),
		"items", len(out.Items),
		"notes", len(out.Notes),
	)
	snap := out.Snapshot
	return &snap, out.SyncToken, nil
}

type writeRequest struct {
	Commands []queue.Command `json:"commands"`
}

// Execute sends one batch of commands. Per-command rejections are reported
// in the response status map, not as an error.
func (c *Client) Execute(ctx context.Context, commands []queue.Command) (*queue.Response, error) {
	var out queue.Response
	if err := c.post(ctx, writeRequest{Commands: commands}, &out); err != nil {
		return nil, fmt.Errorf("execute %d commands: %w", len(commands), err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, payload, into any) error {
	if c.token == "" {
		return ErrNoToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.doer.Do(ctx, httpretry.Request{
		Method: http.MethodPost,
		URL:    c.url,
		Header: http.Header{
			"Authorization": {"Bearer " + c.token},
			"Content-Type":  {"application/json"},
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !resp.OK() {
		return newHTTPError(resp)
	}
	if unavailable(resp.Body) {
		return fmt.Errorf("status %d with unusable body: %w", resp.StatusCode, ErrUnavailable)
	}
	if err := json.Unmarshal(resp.Body, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// unavailable recognizes the maintenance and timeout pages the API serves
// in place of JSON.
func unavailable(body []byte) bool {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return true
	}
	if json.Valid([]byte(text)) {
		return false
	}
	return strings.Contains(text, "Scheduled maintenance") || strings.Contains(text, "Timeout")
}

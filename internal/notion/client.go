// Package notion reads projects, goals and tasks from Notion databases and
// writes task changes back through the Notion REST API.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/httpretry"
)

const (
	// DefaultBaseURL is the Notion API root.
	DefaultBaseURL = "https://api.notion.com"

	// DefaultVersion is the Notion-Version header sent on every request.
	DefaultVersion = "2022-06-28"

	pageSize = 100
)

// Client is a Notion API client bound to one Schema. It satisfies
// engine.SourceStore.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	version  string
	schema   Schema
	lookback time.Duration
	now      func() time.Time
	doer     *httpretry.Doer
	logger   *slog.Logger

	mu sync.Mutex
	// verbs are the verb options seen by the last FetchLabels.
	verbs map[string]bool

	retryOpts []httpretry.Option
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root. Tests point it at an httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(strings.TrimSpace(url), "/") }
}

// WithVersion overrides the Notion-Version header.
func WithVersion(v string) Option {
	return func(c *Client) {
		if v = strings.TrimSpace(v); v != "" {
			c.version = v
		}
	}
}

// WithLookback sets how far back completed tasks are still fetched.
func WithLookback(d time.Duration) Option {
	return func(c *Client) { c.lookback = d }
}

// WithNow sets the clock used for the lookback window.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
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

// New creates a client for the databases in schema.
func New(token string, schema Schema, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		token:    strings.TrimSpace(token),
		version:  DefaultVersion,
		schema:   schema,
		lookback: 7 * 24 * time.Hour,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.doer = httpretry.New(append([]httpretry.Option{httpretry.WithLogger(c.logger)}, c.retryOpts...)...)
	return c
}

type queryRequest struct {
	Filter      any    `json:"filter,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size"`
}

type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// query returns every page of database matching filter, following cursors.
func (c *Client) query(ctx context.Context, database string, filter any) ([]page, error) {
	if database == "" {
		return nil, fmt.Errorf("query: database id is empty")
	}
	var out []page
	req := queryRequest{Filter: filter, PageSize: pageSize}
	for {
		var resp queryResponse
		path := "/v1/databases/" + database + "/query"
		if err := c.call(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, fmt.Errorf("query %s: %w", database, err)
		}
		out = append(out, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return out, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

type createRequest struct {
	Parent     parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

// createPage adds a row to database and returns its id.
func (c *Client) createPage(ctx context.Context, database string, props map[string]any) (string, error) {
	var created page
	req := createRequest{Parent: parent{DatabaseID: database}, Properties: props}
	if err := c.send(ctx, http.MethodPost, "/v1/pages", req, &created, true); err != nil {
		return "", fmt.Errorf("create page in %s: %w", database, err)
	}
	return normalizeID(created.ID), nil
}

type updateRequest struct {
	Properties map[string]any `json:"properties"`
}

// updatePage overwrites the given properties of a page.
func (c *Client) updatePage(ctx context.Context, id string, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	if err := c.call(ctx, http.MethodPatch, "/v1/pages/"+id, updateRequest{Properties: props}, nil); err != nil {
		return fmt.Errorf("update page %s: %w", id, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, into any) error {
	return c.send(ctx, method, path, payload, into, false)
}

// send performs one API call. Creations pass once, so that a request that
// may already have landed is not repeated.
func (c *Client) send(ctx context.Context, method, path string, payload, into any, once bool) error {
	if c.token == "" {
		return ErrNoToken
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	resp, err := c.doer.Do(ctx, httpretry.Request{
		Method: method,
		URL:    c.baseURL + path,
		Header: http.Header{
			"Authorization":  {"Bearer " + c.token},
			"Content-Type":   {"application/json"},
			"Notion-Version": {c.version},
		},
		Body:          body,
		NotIdempotent: once,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !resp.OK() {
		return newHTTPError(resp)
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Package httpretry sends JSON API requests with exponential backoff on
// rate limits and server errors.
package httpretry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retries. Zero fields take the defaults of DefaultPolicy.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy retries three times, doubling from 500ms up to 10s.
var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   10 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultPolicy.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}

// Request describes one API call. Body is re-sent on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// NotIdempotent marks a request that may have taken effect even when no
	// response came back, such as a page creation. Transport errors and 5xx
	// responses are returned at once; 429 is still retried.
	NotIdempotent bool
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

// Retryable reports a status worth retrying: 429 or any 5xx.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// Doer sends requests with a retry policy.
//
// Thread-safety: Doer is safe for concurrent use when its http.Client is.
type Doer struct {
	client *http.Client
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Doer.
type Option func(*Doer)

// WithHTTPClient replaces the default client (20s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Doer) {
		if c != nil {
			d.client = c
		}
	}
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(d *Doer) { d.policy = p.withDefaults() }
}

// WithLogger sets the logger for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(d *Doer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSleep replaces the backoff wait. Tests use it to skip real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Doer) { d.sleep = fn }
}

// New creates a Doer.
func New(opts ...Option) *Doer {
	d := &Doer{
		client: &http.Client{Timeout: 20 * time.Second},
		policy: DefaultPolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// statusError carries a retryable response to the backoff loop.
type statusError struct {
	status int
}

func (e *statusError) Error() string { return "status " + strconv.Itoa(e.status) }

// Do sends r, retrying transport errors, 429 and 5xx responses until the
// policy runs out. The last response is returned as is when retries are
// exhausted on a status; callers decide how to map non-2xx codes.
func (d *Doer) Do(ctx context.Context, r Request) (*Response, error) {
	b := d.backOff()
	var (
		out     *Response
		attempt int
	)
	op := func() error {
		attempt++
		out = nil
		req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range r.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := d.client.Do(req)
		if err != nil {
			if r.NotIdempotent {
				return backoff.Permanent(err)
			}
			return err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", readErr))
		}
		out = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}

		if !Retryable(resp.StatusCode) {
			return nil
		}
		if r.NotIdempotent && resp.StatusCode != http.StatusTooManyRequests {
			return nil
		}
		b.after = parseRetryAfter(resp.Header.Get("Retry-After"))
		return &statusError{status: resp.StatusCode}
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Debug("request failed, retrying",
			"method", r.Method,
			"url", r.URL,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, d.timer(ctx))
	var se *statusError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &se) && out != nil:
		return out, nil
	default:
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.URL, err)
	}
}

// retryAfter is the policy's exponential backoff, except that a wait the
// server asked for replaces the next interval.
type retryAfter struct {
	backoff.BackOff
	after time.Duration
	max   time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	next := r.BackOff.NextBackOff()
	after := r.after
	r.after = 0
	if next == backoff.Stop || after <= 0 {
		return next
	}
	return min(after, r.max)
}

func (d *Doer) backOff() *retryAfter {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.policy.BaseDelay
	exp.MaxInterval = d.policy.MaxDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryAfter{
		BackOff: backoff.WithMaxRetries(exp, uint64(d.policy.MaxRetries)),
		max:     d.policy.MaxDelay,
	}
}

// timer returns nil, the library's real timer, unless WithSleep is set.
func (d *Doer) timer(ctx context.Context) backoff.Timer {
	if d.sleep == nil {
		return nil
	}
	return &sleepTimer{ctx: ctx, sleep: d.sleep, c: make(chan time.Time, 1)}
}

// sleepTimer routes backoff waits through a sleep function.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

// Start waits through sleep, then fires. A failed sleep still fires; the
// backoff loop checks the context itself.
func (t *sleepTimer) Start(d time.Duration) {
	_ = t.sleep(t.ctx, d)
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

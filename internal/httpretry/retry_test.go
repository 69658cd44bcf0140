package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body), "body is re-sent on every attempt")
		assert.Equal(t, "Bearer x", r.Header.Get("Authorization"))
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	d := New(WithSleep(sleeps.sleep), WithPolicy(Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second}))
	resp, err := d.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"Authorization": {"Bearer x"}},
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps.delays)
}

func TestDo_ReturnsLastResponseWhenExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	d := New(WithSleep(sleeps.sleep), WithPolicy(Policy{MaxRetries: 2}))
	resp, err := d.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := New(WithSleep(func(context.Context, time.Duration) error { return nil }))
	resp, err := d.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_NotIdempotentRetriesOnlyRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	d := New(WithSleep(sleeps.sleep))
	resp, err := d.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, NotIdempotent: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load(), "the 429 is retried, the 502 is not")
	assert.Len(t, sleeps.delays, 1)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestDo_TransportErrors(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection reset")
	})}
	d := New(WithHTTPClient(client), WithSleep(func(context.Context, time.Duration) error { return nil }), WithPolicy(Policy{MaxRetries: 2}))

	_, err := d.Do(context.Background(), Request{Method: http.MethodGet, URL: "http://notion.test/v1/pages/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	_, err = d.Do(context.Background(), Request{Method: http.MethodPost, URL: "http://notion.test/v1/pages", NotIdempotent: true})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a create that may have landed is not re-sent")
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d := New(WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	_, err := d.Do(ctx, Request{Method: http.MethodGet, URL: srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackOff(t *testing.T) {
	d := New(WithPolicy(Policy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}))

	b := d.backOff()
	b.Reset()
	var got []time.Duration
	for range 6 {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		backoff.Stop,
	}, got)

	b.Reset()
	b.after = 30 * time.Second
	assert.Equal(t, time.Second, b.NextBackOff(), "a server-requested wait is capped")
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter(" 2 "))
	assert.Zero(t, parseRetryAfter("bogus"))
	assert.Zero(t, parseRetryAfter("-1"))
	assert.Zero(t, parseRetryAfter(""))
}

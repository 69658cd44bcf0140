package notion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/soimon/notion-todoist/internal/httpretry"
	"github.com/soimon/notion-todoist/internal/queue"
)

var (
	// ErrUnavailable marks an outage: retries exhausted on 429 or 5xx, or a
	// transport failure.
	ErrUnavailable = errors.New("notion unavailable")

	// ErrNoToken is returned when the client has no integration token.
	ErrNoToken = errors.New("notion token is empty")
)

// HTTPError is a non-2xx response. Client errors other than 429 unwrap to
// queue.ErrRejected so a refused write does not abort the commit.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion: status=%d message=%s", e.StatusCode, e.Message)
}

// Unwrap maps the status to ErrUnavailable or queue.ErrRejected.
func (e *HTTPError) Unwrap() error {
	switch {
	case httpretry.Retryable(e.StatusCode):
		return ErrUnavailable
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return queue.ErrRejected
	}
	return nil
}

// IsUnauthorized reports whether err is a rejected token.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden)
}

func newHTTPError(resp *httpretry.Response) *HTTPError {
	e := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &parsed) == nil {
		e.Code = parsed.Code
		if strings.TrimSpace(parsed.Message) != "" {
			e.Message = parsed.Message
		}
	}
	return e
}

package todoist

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/soimon/notion-todoist/internal/httpretry"
)

var (
	// ErrUnavailable marks an outage: retries exhausted, a maintenance page
	// or an empty body. Callers treat it as transient.
	ErrUnavailable = errors.New("todoist unavailable")

	// ErrNoToken is returned when the client has no API token.
	ErrNoToken = errors.New("todoist token is empty")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Tag        string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("todoist: status=%d tag=%s message=%s", e.StatusCode, e.Tag, e.Message)
	}
	return fmt.Sprintf("todoist: status=%d message=%s", e.StatusCode, e.Message)
}

// Is makes 429 and 5xx responses match ErrUnavailable.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnavailable && httpretry.Retryable(e.StatusCode)
}

// IsUnauthorized reports whether err is a rejected token.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden)
}

func newHTTPError(resp *httpretry.Response) *HTTPError {
	e := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	var parsed struct {
		Error    string `json:"error"`
		ErrorTag string `json:"error_tag"`
	}
	if json.Unmarshal(resp.Body, &parsed) == nil {
		e.Tag = parsed.ErrorTag
		if parsed.Error != "" {
			e.Message = parsed.Error
		}
	}
	return e
}
